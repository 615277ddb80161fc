package pkg

import (
	"errors"
	"fmt"
)

// Status is the 8-bit completion code reported by every stack operation.
//
// Zero means success. Codes 0x01-0x61 identify error kinds; codes
// 0xEC-0xFF are reserved for conditions internal to the driver.
// Status implements error so that non-zero codes flow through ordinary
// error returns and can be matched with errors.Is.
type Status uint8

// StatusNoError indicates successful completion.
const StatusNoError Status = 0x00

// Parameter errors.
const (
	ErrInvalidParameter Status = 0x01 // Invalid or out-of-range argument
	ErrDevNullPointer   Status = 0x02 // No device bound where one is required
	ErrBufferTooSmall   Status = 0x03 // Caller buffer cannot hold the result
)

// Card state errors.
const (
	ErrCardIsNotInserted  Status = 0x10 // Slot has no physical card
	ErrCardIsNotAttached  Status = 0x11 // Card present but not brought up
	ErrCardWriteProtected Status = 0x12 // Write to a write-protected card
	ErrCardLocked         Status = 0x13 // Card is password locked
	ErrInvalidState       Status = 0x14 // Operation illegal in the current state
	ErrCardUnusable       Status = 0x15 // Card rejected the operating voltage
	ErrMemAlloc           Status = 0x16 // Card-info pool exhausted
)

// Protocol errors.
const (
	ErrSwitchError         Status = 0x20 // CMD6 switch result mismatch
	ErrFunctionUnsupp      Status = 0x21 // Requested switch function unsupported
	ErrTupleNotFound       Status = 0x22 // CIS walk reached CISTPL_END
	ErrSettingExtCSDFailed Status = 0x23 // ExtCSD read-back differs from write
	ErrCardStatus          Status = 0x24 // Card status word reports an error
	ErrTimeout             Status = 0x25 // Polling loop exceeded its time limit
	ErrLockUnlockFailed    Status = 0x26 // CMD42 operation rejected by card
	ErrCheckPattern        Status = 0x27 // CMD8 echo pattern mismatch
	ErrBootAck             Status = 0x28 // Boot acknowledge not received
)

// Hardware and transport errors, reported verbatim by the controller.
const (
	ErrCommandTimeout Status = 0x40 // No response to command
	ErrCommandCRC     Status = 0x41 // Response CRC mismatch
	ErrCommandEndBit  Status = 0x42 // Response end bit not 1
	ErrCommandIndex   Status = 0x43 // Response index mismatch
	ErrDataTimeout    Status = 0x44 // Data phase timeout
	ErrDataCRC        Status = 0x45 // Data CRC mismatch
	ErrDataEndBit     Status = 0x46 // Data end bit not 1
	ErrCurrentLimit   Status = 0x47 // Bus power over-current
	ErrAutoCMD        Status = 0x48 // Auto CMD12/CMD23 failed
	ErrADMA           Status = 0x49 // ADMA descriptor fault
	ErrTuning         Status = 0x4A // Tuning procedure failed
	ErrResponse       Status = 0x4B // Hardware response check failed
	ErrHostBusy       Status = 0x4C // Command or data line inhibited
)

// Capability errors.
const (
	ErrUnsupportedOperation Status = 0x60 // Operation not supported by card or mode
	ErrUnsupportedBusWidth  Status = 0x61 // Bus width not supported
)

// Driver-internal conditions.
const (
	ErrNotExecuted       Status = 0xEC // Request was never submitted
	ErrUnknown           Status = 0xFD // Error without a status code
	ErrAborted           Status = 0xFE // Request aborted
	ErrCurrentlyExecuted Status = 0xFF // Request still in flight
)

// Error implements error.
func (s Status) Error() string {
	if text := statusText(s); text != "" {
		return text
	}
	return fmt.Sprintf("status 0x%02X", uint8(s))
}

// String returns the human-readable text for the status, or an empty
// string when the text table is compiled out.
func (s Status) String() string {
	return statusText(s)
}

// Err returns nil for StatusNoError and s otherwise.
func (s Status) Err() error {
	if s == StatusNoError {
		return nil
	}
	return s
}

// IsHardware reports whether the status was raised by the controller
// rather than by driver logic.
func (s Status) IsHardware() bool {
	return s >= ErrCommandTimeout && s <= ErrHostBusy
}

// StatusOf extracts the Status carried by err. It returns StatusNoError
// for nil and ErrUnknown for errors that carry no status.
func StatusOf(err error) Status {
	if err == nil {
		return StatusNoError
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return ErrUnknown
}
