package card

import "fmt"

// Type identifies the card family being emulated.
type Type uint8

// Card types.
const (
	TypeSD   Type = iota // SD memory (SDSC or SDHC/SDXC)
	TypeMMC              // MultiMediaCard / eMMC
	TypeSDIO             // SDIO without memory
)

// String returns the card family name.
func (t Type) String() string {
	switch t {
	case TypeSD:
		return "SD"
	case TypeMMC:
		return "MMC"
	case TypeSDIO:
		return "SDIO"
	default:
		return fmt.Sprintf("Unknown Type (%d)", t)
	}
}

// State is the card state as reported in bits 12:9 of the card status.
type State uint8

// Card states.
const (
	StateIdle       State = 0
	StateReady      State = 1
	StateIdent      State = 2
	StateStandby    State = 3
	StateTransfer   State = 4
	StateData       State = 5
	StateReceive    State = 6
	StateProgram    State = 7
	StateDisconnect State = 8
	StateBoot       State = 9
	StateInactive   State = 15
)

// String returns the state mnemonic.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateIdent:
		return "ident"
	case StateStandby:
		return "stby"
	case StateTransfer:
		return "tran"
	case StateData:
		return "data"
	case StateReceive:
		return "rcv"
	case StateProgram:
		return "prg"
	case StateDisconnect:
		return "dis"
	case StateBoot:
		return "boot"
	case StateInactive:
		return "ina"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Card status bits (R1).
const (
	StatusOutOfRange      = 1 << 31
	StatusAddressError    = 1 << 30
	StatusBlockLenError   = 1 << 29
	StatusEraseSeqError   = 1 << 28
	StatusEraseParam      = 1 << 27
	StatusWPViolation     = 1 << 26
	StatusCardIsLocked    = 1 << 25
	StatusLockUnlockFail  = 1 << 24
	StatusComCRCError     = 1 << 23
	StatusIllegalCommand  = 1 << 22
	StatusCardECCFailed   = 1 << 21
	StatusCCError         = 1 << 20
	StatusError           = 1 << 19
	StatusReadyForData    = 1 << 8
	StatusSwitchError     = 1 << 7
	StatusAppCmd          = 1 << 5
	StatusStateShift      = 9
	StatusStateMask       = 0xF << StatusStateShift
	StatusErrorMask       = 0xFDF80080 // CARD_IS_LOCKED is status, not error
	StatusR6ErrorBitsMask = StatusComCRCError | StatusIllegalCommand | StatusError
)

// SPI R1 bits.
const (
	SPIIdle          = 1 << 0
	SPIEraseReset    = 1 << 1
	SPIIllegal       = 1 << 2
	SPICommandCRC    = 1 << 3
	SPIEraseSequence = 1 << 4
	SPIAddressError  = 1 << 5
	SPIParameter     = 1 << 6
)

// OCR bits.
const (
	OCRBusy         = 1 << 31 // Power-up complete (active high)
	OCRCCS          = 1 << 30 // Card capacity status / HCS / sector mode
	OCRVoltageMask  = 0x00FF8000
	OCRSectorMode   = 0x40000000
	OCRMMCDualVolt  = 0x00FF8080
	IOOCRMemPresent = 1 << 27
	IOOCRFuncShift  = 28
)

// Magic CMD0 arguments.
const (
	ArgGoPreIdle  = 0xF0F0F0F0
	ArgBootInit   = 0xFFFFFFFA
	ArgGoIdle     = 0x00000000
	CheckPattern  = 0xAA
	VHS27to36     = 0x1
	VHSShift      = 8
	IfCondDefault = VHS27to36<<VHSShift | CheckPattern
)

// CMD42 lock/unlock flags.
const (
	LockSetPwd  = 0x01
	LockClrPwd  = 0x02
	LockUnlock  = 0x04
	LockErase   = 0x08
	MaxPassword = 16
)

// ExtCSD byte indices.
const (
	ExtCSDCmdqModeEn       = 15
	ExtCSDEraseGroupDef    = 175
	ExtCSDBootBusCond      = 177
	ExtCSDPartitionConfig  = 179
	ExtCSDBusWidth         = 183
	ExtCSDHSTiming         = 185
	ExtCSDRev              = 192
	ExtCSDCSDStructure     = 194
	ExtCSDDeviceType       = 196
	ExtCSDSecCount         = 212
	ExtCSDBootSizeMult     = 226
	ExtCSDCmdqDepth        = 307
	ExtCSDCmdqSupport      = 308
	ExtCSDSize             = 512
	ExtCSDModesSegmentSize = 192
)

// MMC CMD6 access modes.
const (
	SwitchAccessCommandSet = 0
	SwitchAccessSetBits    = 1
	SwitchAccessClearBits  = 2
	SwitchAccessWriteByte  = 3
)

// SD switch function status layout.
const (
	SwitchStatusSize = 64
	SwitchGroups     = 6
	SwitchModeSet    = 1 << 31
	SwitchNoChange   = 0xF
)

// SDIO register space.
const (
	CCCRRevision    = 0x00
	CCCRBusIfCtrl   = 0x07
	CCCRCapability  = 0x08
	CCCRCISPointer  = 0x09 // three bytes, little-endian
	CISBase         = 0x1000
	TupleNull       = 0x00
	TupleManfID     = 0x20
	TupleFuncID     = 0x21
	TupleFuncE      = 0x22
	TupleEnd        = 0xFF
	IORWWrite       = 1 << 31
	IORWFuncShift   = 28
	IORWRAW         = 1 << 27
	IORWAddrShift   = 9
	IORWAddrMask    = 0x1FFFF
	IORWDataMask    = 0xFF
	R5OutOfRange    = 1 << 8
	R5FunctionError = 1 << 9
	R5StateCmd      = 1 << 12
)
