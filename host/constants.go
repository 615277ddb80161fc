package host

import "fmt"

// Command indices.
const (
	CmdGoIdleState        = 0
	CmdSendOpCond         = 1 // MMC
	CmdAllSendCID         = 2
	CmdSendRelativeAddr   = 3
	CmdIOSendOpCond       = 5 // SDIO
	CmdSwitch             = 6
	CmdSelectCard         = 7
	CmdSendIfCond         = 8 // SD
	CmdSendExtCSD         = 8 // MMC
	CmdSendCSD            = 9
	CmdSendCID            = 10
	CmdStopTransmission   = 12
	CmdSendStatus         = 13
	CmdSetBlockLen        = 16
	CmdReadSingleBlock    = 17
	CmdReadMultipleBlock  = 18
	CmdSetBlockCount      = 23
	CmdWriteBlock         = 24
	CmdWriteMultipleBlock = 25
	CmdEraseWrBlkStart    = 32 // SD
	CmdEraseWrBlkEnd      = 33 // SD
	CmdEraseGroupStart    = 35 // MMC
	CmdEraseGroupEnd      = 36 // MMC
	CmdErase              = 38
	CmdLockUnlock         = 42
	CmdIORWDirect         = 52
	CmdAppCmd             = 55
)

// Application command indices, sent after CmdAppCmd.
const (
	ACmdSetBusWidth  = 6
	ACmdSDSendOpCond = 41
	ACmdSendSCR      = 51
)

// Stack limits.
const (
	MaxDevicesPerSlot = 1
	AuxBuffSize       = 1024
	CmdQueueTasks     = 32
	DefaultBlockSize  = 512
	SwitchStatusSize  = 64
	SCRSize           = 8
	ExtCSDSize        = 512
	MaxPasswordSize   = 16
	MMCInitialRCA     = 0x1000
	maxCISWalk        = 0x8000
)

// Card status (R1) bits.
const (
	CardStatusOutOfRange     = 1 << 31
	CardStatusAddressError   = 1 << 30
	CardStatusBlockLenError  = 1 << 29
	CardStatusEraseSeqError  = 1 << 28
	CardStatusWPViolation    = 1 << 26
	CardStatusCardIsLocked   = 1 << 25
	CardStatusLockUnlockFail = 1 << 24
	CardStatusIllegalCommand = 1 << 22
	CardStatusReadyForData   = 1 << 8
	CardStatusSwitchError    = 1 << 7
	CardStatusAppCmd         = 1 << 5
	CardStatusStateShift     = 9
	CardStatusErrorMask      = 0xFDF80080
	r6ErrorMask              = 0xE000
	spiR1ErrorMask           = 0x7E
	spiR1Idle                = 0x01
)

// Card states as reported in the card status.
const (
	CardStateIdle     = 0
	CardStateReady    = 1
	CardStateIdent    = 2
	CardStateStandby  = 3
	CardStateTransfer = 4
	CardStateData     = 5
	CardStateReceive  = 6
	CardStateProgram  = 7
)

// OCR bits and command arguments.
const (
	ocrBusy         = 1 << 31
	ocrHCS          = 1 << 30 // HCS (ACMD41), CCS (response), sector mode (CMD1)
	ocrVoltageMask  = 0x00FF8000
	ocrMMCDualVolt  = 0x00FF8080
	ioOCRFuncShift  = 28
	ioOCRMemPresent = 1 << 27
	ifCondPattern   = 0xAA
	ifCondArg       = 0x100 | ifCondPattern
	argGoPreIdle    = 0xF0F0F0F0
	argBootInit     = 0xFFFFFFFA
	switchModeSet   = 1 << 31
	switchNoChange  = 0xF
)

// ExtCSD byte indices.
const (
	ExtCSDCmdqModeEn      = 15
	ExtCSDPartitionConfig = 179
	ExtCSDBusWidth        = 183
	ExtCSDHSTiming        = 185
	ExtCSDRev             = 192
	ExtCSDDeviceType      = 196
	ExtCSDSecCount        = 212
	ExtCSDBootSizeMult    = 226
	ExtCSDCmdqDepth       = 307
	ExtCSDCmdqSupport     = 308
)

// ExtCSD BUS_WIDTH values.
const (
	extCSDBusWidth1    = 0
	extCSDBusWidth4    = 1
	extCSDBusWidth8    = 2
	extCSDBusWidth4DDR = 5
	extCSDBusWidth8DDR = 6
)

// MMC switch access modes (CMD6 argument bits 25:24).
const (
	MmcSwitchCommandSet = 0
	MmcSwitchSetBits    = 1
	MmcSwitchClearBits  = 2
	MmcSwitchWriteByte  = 3
)

// PARTITION_CONFIG fields.
const (
	PartitionUser  = 0
	PartitionBoot1 = 1
	PartitionBoot2 = 2
	PartitionRPMB  = 3

	bootEnableShift = 3
	bootEnableMask  = 0x38
	bootAckBit      = 0x40
	partAccessMask  = 0x07
)

// SDIO register space.
const (
	cccrBusIfCtrl  = 0x07
	cccrCISPointer = 0x09
	ioRWWrite      = 1 << 31
	ioRWFuncShift  = 28
	ioRWRAW        = 1 << 27
	ioRWAddrShift  = 9
	r5ErrorMask    = 0xCB00
	TupleNull      = 0x00
	TupleManfID    = 0x20
	TupleFuncID    = 0x21
	TupleFuncE     = 0x22
	TupleEnd       = 0xFF
)

// DeviceType identifies the card family of a device.
type DeviceType uint8

// Device types.
const (
	DeviceTypeNone DeviceType = iota
	DeviceTypeSDMemory
	DeviceTypeMMC
	DeviceTypeSDIO
	DeviceTypeCombo // SDIO with a memory portion
)

// String returns the device type name.
func (t DeviceType) String() string {
	switch t {
	case DeviceTypeNone:
		return "None"
	case DeviceTypeSDMemory:
		return "SD"
	case DeviceTypeMMC:
		return "MMC"
	case DeviceTypeSDIO:
		return "SDIO"
	case DeviceTypeCombo:
		return "Combo"
	default:
		return fmt.Sprintf("Unknown DeviceType (%d)", t)
	}
}

// HasMemory reports whether the device type carries block storage.
func (t DeviceType) HasMemory() bool {
	return t == DeviceTypeSDMemory || t == DeviceTypeMMC || t == DeviceTypeCombo
}

// Capacity is the addressing class of a memory device.
type Capacity uint8

// Capacity classes.
const (
	CapacityNormal Capacity = iota // Byte addressed (SDSC, MMC up to 2 GiB)
	CapacityHigh                   // Block addressed (SDHC/SDXC, sector-mode MMC)
)

// String returns the capacity class name.
func (c Capacity) String() string {
	if c == CapacityHigh {
		return "High"
	}
	return "Normal"
}

// DeviceState is the lifecycle state of a device.
type DeviceState uint8

// Device states.
const (
	DeviceStateUnattached DeviceState = iota // No card brought up
	DeviceStateAttached                      // Card identified and usable
	DeviceStateRemoved                       // Card pulled while attached
)

// String returns the device state name.
func (s DeviceState) String() string {
	switch s {
	case DeviceStateUnattached:
		return "Unattached"
	case DeviceStateAttached:
		return "Attached"
	case DeviceStateRemoved:
		return "Removed"
	default:
		return fmt.Sprintf("Unknown DeviceState (%d)", s)
	}
}

// SlotState is the command engine state of a slot.
type SlotState uint8

// Slot states.
const (
	SlotStateIdle SlotState = iota
	SlotStateCommandInFlight
)

// String returns the slot state name.
func (s SlotState) String() string {
	switch s {
	case SlotStateIdle:
		return "Idle"
	case SlotStateCommandInFlight:
		return "CommandInFlight"
	default:
		return fmt.Sprintf("Unknown SlotState (%d)", s)
	}
}

// Switch function groups (SD CMD6).
const (
	SwitchGroupAccessMode     = 1
	SwitchGroupCommandSystem  = 2
	SwitchGroupDriverStrength = 3
	SwitchGroupCurrentLimit   = 4
)

// DriverStrength selects the card output driver type.
type DriverStrength uint8

// Driver strengths.
const (
	DriverStrengthB DriverStrength = 0 // Default, 50 ohm
	DriverStrengthA DriverStrength = 1 // 33 ohm
	DriverStrengthC DriverStrength = 2 // 66 ohm
	DriverStrengthD DriverStrength = 3 // 100 ohm
)

// CurrentLimit selects the maximum card current in UHS modes.
type CurrentLimit uint8

// Current limits.
const (
	CurrentLimit200mA CurrentLimit = 0
	CurrentLimit400mA CurrentLimit = 1
	CurrentLimit600mA CurrentLimit = 2
	CurrentLimit800mA CurrentLimit = 3
)

// LockOp is the operation byte of a CMD42 data block.
type LockOp uint8

// Lock operations. LockSetPassword and LockLock may be combined.
const (
	LockUnlockCard    LockOp = 0x00
	LockSetPassword   LockOp = 0x01
	LockClearPassword LockOp = 0x02
	LockLock          LockOp = 0x04
	LockForceErase    LockOp = 0x08
)

// TaskState is the state of one command queue task slot.
type TaskState uint8

// Command queue task states.
const (
	TaskUnavailable TaskState = iota // Queue off, or beyond its depth
	TaskFree
)

// String returns the task state name.
func (t TaskState) String() string {
	if t == TaskFree {
		return "free"
	}
	return "unavailable"
}
