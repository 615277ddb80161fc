package hal

import (
	"context"
	"time"

	"github.com/ardnew/softsdio/pkg"
)

// BusMode selects the card interface protocol of a slot.
type BusMode uint8

// Bus mode constants.
const (
	BusModeSD  BusMode = iota // Native SD/MMC bus
	BusModeSPI                // SPI bus
)

// String returns a human-readable bus mode name.
func (m BusMode) String() string {
	switch m {
	case BusModeSD:
		return "SD"
	case BusModeSPI:
		return "SPI"
	default:
		return "Unknown"
	}
}

// BusWidth is the number of data lines in use.
type BusWidth uint8

// Bus width constants.
const (
	BusWidth1 BusWidth = 1
	BusWidth4 BusWidth = 4
	BusWidth8 BusWidth = 8
)

// Mask returns the bit used for the width in a supported-widths bitmask.
func (w BusWidth) Mask() uint8 {
	switch w {
	case BusWidth1:
		return 0x01
	case BusWidth4:
		return 0x04
	case BusWidth8:
		return 0x08
	default:
		return 0
	}
}

// AccessMode is the bus timing mode negotiated with the card.
type AccessMode uint8

// Access mode constants. SD and MMC modes share one space.
const (
	AccessModeDefault AccessMode = iota // SD default speed / MMC legacy
	AccessModeHS                        // SD high speed / MMC HS SDR
	AccessModeSDR12
	AccessModeSDR25
	AccessModeSDR50
	AccessModeSDR104
	AccessModeDDR50
	AccessModeHSDDR // MMC DDR52
	AccessModeHS200
	AccessModeHS400
)

// String returns a human-readable access mode name.
func (m AccessMode) String() string {
	switch m {
	case AccessModeDefault:
		return "Default"
	case AccessModeHS:
		return "HS"
	case AccessModeSDR12:
		return "SDR12"
	case AccessModeSDR25:
		return "SDR25"
	case AccessModeSDR50:
		return "SDR50"
	case AccessModeSDR104:
		return "SDR104"
	case AccessModeDDR50:
		return "DDR50"
	case AccessModeHSDDR:
		return "HS_DDR"
	case AccessModeHS200:
		return "HS200"
	case AccessModeHS400:
		return "HS400"
	default:
		return "Unknown"
	}
}

// IsUHS reports whether the mode belongs to the SD UHS-I family.
func (m AccessMode) IsUHS() bool {
	return m >= AccessModeSDR12 && m <= AccessModeDDR50
}

// DMAMode is the data transmission scheme used by the controller.
type DMAMode uint8

// DMA mode constants.
const (
	DMANone DMAMode = iota // Programmed I/O
	DMASDMA
	DMAADMA1
	DMAADMA2
	DMAADMA3
)

// ResponseType is the expected card response format.
type ResponseType uint8

// Response type constants.
const (
	ResponseNone ResponseType = iota
	ResponseR1
	ResponseR1B
	ResponseR2
	ResponseR3
	ResponseR4
	ResponseR5
	ResponseR5B
	ResponseR6
	ResponseR7
)

// String returns the response type name.
func (r ResponseType) String() string {
	switch r {
	case ResponseNone:
		return "none"
	case ResponseR1:
		return "R1"
	case ResponseR1B:
		return "R1b"
	case ResponseR2:
		return "R2"
	case ResponseR3:
		return "R3"
	case ResponseR4:
		return "R4"
	case ResponseR5:
		return "R5"
	case ResponseR5B:
		return "R5b"
	case ResponseR6:
		return "R6"
	case ResponseR7:
		return "R7"
	default:
		return "unknown"
	}
}

// HasBusy reports whether the response signals busy on DAT0.
func (r ResponseType) HasBusy() bool {
	return r == ResponseR1B || r == ResponseR5B
}

// CommandType distinguishes commands that terminate a data transfer.
type CommandType uint8

// Command type constants.
const (
	CommandTypeNormal CommandType = iota
	CommandTypeAbort              // Ends the open data transfer, if any
)

// Direction is the data transfer direction.
type Direction uint8

// Direction constants.
const (
	DirectionRead  Direction = iota // Card to host
	DirectionWrite                  // Host to card
)

// String returns the direction name.
func (d Direction) String() string {
	if d == DirectionWrite {
		return "write"
	}
	return "read"
}

// MaxCommands is the number of command fields in a Request.
// Only ADMA3 chaining uses more than one.
const MaxCommands = 8

// RequestFlags qualify a single command field.
type RequestFlags struct {
	DataPresent bool        // Command has a data phase
	Direction   Direction   // Data phase direction
	AutoCMD12   bool        // Controller issues CMD12 after the data phase
	AutoCMD23   bool        // Controller issues CMD23 before the command
	HwRespCheck bool        // Controller checks R1/R5 error bits itself
	Infinite    bool        // Open-ended transfer, stopped by Abort
	Continue    bool        // Re-arm an open-ended transfer with new buffers
	Type        CommandType // Normal or abort
}

// CommandField describes one command of a Request.
type CommandField struct {
	Index      uint8        // Command index (0-63)
	Argument   uint32       // Command argument
	Response   ResponseType // Expected response
	Flags      RequestFlags // Command qualifiers
	BlockCount uint32       // Blocks in the data phase
	BlockLen   uint32       // Bytes per block
	Buffers    [][]byte     // Scatter list for the data phase
}

// DataLen returns the total number of bytes in the data phase.
func (c *CommandField) DataLen() uint32 {
	return c.BlockCount * c.BlockLen
}

// Request is one submission to the host controller command engine.
//
// Status is ErrNotExecuted until ExecCardCommand accepts the request,
// ErrCurrentlyExecuted while it is in flight, and is written once more by
// CheckBusy with the final result.
//
// A controller that chains requests runs SubRequest after the request
// succeeds and writes its Status too. Otherwise SubRequest is left
// ErrNotExecuted for the caller to submit.
type Request struct {
	Commands      [MaxCommands]CommandField
	CmdCount      int
	Response      [4]uint32
	Status        pkg.Status
	DataRemaining uint32
	BufferPos     int
	SubRequest    *Request
}

// NewRequest returns a single-command request.
func NewRequest(index uint8, arg uint32, resp ResponseType) *Request {
	r := &Request{CmdCount: 1, Status: pkg.ErrNotExecuted}
	r.Commands[0] = CommandField{Index: index, Argument: arg, Response: resp}
	return r
}

// Command returns the first command field.
func (r *Request) Command() *CommandField {
	return &r.Commands[0]
}

// SetData attaches a data phase to the first command field.
// The blocks are laid out across bufs in order.
func (r *Request) SetData(dir Direction, blockCount, blockLen uint32, bufs ...[]byte) {
	c := &r.Commands[0]
	c.Flags.DataPresent = true
	c.Flags.Direction = dir
	c.BlockCount = blockCount
	c.BlockLen = blockLen
	c.Buffers = bufs
	r.DataRemaining = blockCount * blockLen
	r.BufferPos = 0
}

// R2 returns the 136-bit response as the 16 register bytes it carries,
// most significant byte first. The controller strips the CRC, so the
// last byte is always zero.
func (r *Request) R2() [16]byte {
	return UnpackR2(r.Response)
}

// UnpackR2 converts R2 response words to register bytes. Word 0 holds
// register bits 39:8, word 3 holds bits 127:104.
func UnpackR2(resp [4]uint32) [16]byte {
	var raw [16]byte
	for i := 0; i < 15; i++ {
		bit := 112 - 8*i
		raw[i] = byte(resp[bit/32] >> (bit % 32))
	}
	return raw
}

// PackR2 is the inverse of UnpackR2.
func PackR2(raw [16]byte) [4]uint32 {
	var resp [4]uint32
	for i := 0; i < 15; i++ {
		bit := 112 - 8*i
		resp[bit/32] |= uint32(raw[i]) << (bit % 32)
	}
	return resp
}

// Registers is raw 32-bit register access to a controller block.
type Registers interface {
	// ReadReg returns the register at the given byte offset.
	ReadReg(offset uint32) uint32

	// WriteReg writes the register at the given byte offset.
	WriteReg(offset uint32, value uint32)
}

// HostHAL defines the Hardware Abstraction Layer for SD/SDIO/eMMC host
// controllers.
//
// The stack builds a Request for every command, submits it with
// ExecCardCommand, and immediately blocks in CheckBusy until the
// controller has written Request.Status and Request.Response. The HAL
// owns command encoding, data movement, DMA and auto-command handling;
// all card protocol logic stays in the stack.
//
// Slots are numbered from 0. The stack never submits a second request on
// a slot while one is in flight there.
type HostHAL interface {
	// Initialization and Lifecycle

	// Init initializes the host controller hardware.
	// The context can be used to cancel initialization.
	Init(ctx context.Context) error

	// Start powers the slots and enables card detection.
	Start() error

	// Stop removes slot power and disables the controller.
	Stop() error

	// Slot State

	// NumSlots returns the number of card slots.
	NumSlots() int

	// CardInserted reports whether a card is physically present.
	CardInserted(slot int) bool

	// WriteProtected reports the state of the write-protect switch.
	WriteProtected(slot int) bool

	// Bus Configuration

	// SetClock sets the card clock frequency in Hz.
	SetClock(slot int, hz uint32) error

	// SetBusWidth sets the host side data bus width.
	SetBusWidth(slot int, width BusWidth) error

	// SetAccessMode sets the host side timing mode.
	SetAccessMode(slot int, mode AccessMode) error

	// Command Dispatch

	// ExecCardCommand submits req to the command engine of slot.
	// It returns once the controller has accepted the request.
	ExecCardCommand(slot int, req *Request) error

	// CheckBusy blocks until req completes, writing req.Status and
	// req.Response. It returns a context error if ctx ends first, in
	// which case req.Status is left at ErrCurrentlyExecuted.
	CheckBusy(ctx context.Context, slot int, req *Request) error

	// Abort terminates the transfer in progress on slot. It is meant
	// for stopping open-ended transfers, not for error recovery.
	Abort(slot int, synchronous bool) error

	// Delay suspends the caller for d or until ctx ends.
	Delay(ctx context.Context, d time.Duration) error
}
