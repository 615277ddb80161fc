package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusNoError, "no error"},
		{ErrInvalidParameter, "invalid parameter"},
		{ErrSwitchError, "switch function error"},
		{ErrTupleNotFound, "tuple not found"},
		{ErrAborted, "aborted"},
		{ErrCurrentlyExecuted, "currently executing"},
		{Status(0x9A), ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("0x%02X", uint8(tt.status)), func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatus_ErrorFallback(t *testing.T) {
	if got := Status(0x9A).Error(); got != "status 0x9A" {
		t.Errorf("Error() = %q, want %q", got, "status 0x9A")
	}
	if got := ErrDataCRC.Error(); got != "data CRC error" {
		t.Errorf("Error() = %q, want %q", got, "data CRC error")
	}
}

func TestStatus_Err(t *testing.T) {
	if err := StatusNoError.Err(); err != nil {
		t.Errorf("StatusNoError.Err() = %v, want nil", err)
	}
	if err := ErrTimeout.Err(); !errors.Is(err, ErrTimeout) {
		t.Errorf("ErrTimeout.Err() = %v, want ErrTimeout", err)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusNoError},
		{"direct", ErrCardIsNotAttached, ErrCardIsNotAttached},
		{"wrapped", fmt.Errorf("select: %w", ErrCommandTimeout), ErrCommandTimeout},
		{"foreign", errors.New("boom"), ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.want {
				t.Errorf("StatusOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_IsHardware(t *testing.T) {
	for _, s := range []Status{ErrCommandTimeout, ErrDataCRC, ErrHostBusy} {
		if !s.IsHardware() {
			t.Errorf("%v.IsHardware() = false, want true", s)
		}
	}
	for _, s := range []Status{ErrInvalidParameter, ErrSwitchError, ErrAborted} {
		if s.IsHardware() {
			t.Errorf("%v.IsHardware() = true, want false", s)
		}
	}
}

func TestStatusCodeRanges(t *testing.T) {
	assigned := []Status{
		ErrInvalidParameter, ErrDevNullPointer, ErrBufferTooSmall,
		ErrCardIsNotInserted, ErrCardIsNotAttached, ErrCardWriteProtected,
		ErrCardLocked, ErrInvalidState, ErrCardUnusable, ErrMemAlloc,
		ErrSwitchError, ErrFunctionUnsupp, ErrTupleNotFound,
		ErrSettingExtCSDFailed, ErrCardStatus, ErrTimeout,
		ErrLockUnlockFailed, ErrCheckPattern, ErrBootAck,
		ErrCommandTimeout, ErrCommandCRC, ErrCommandEndBit, ErrCommandIndex,
		ErrDataTimeout, ErrDataCRC, ErrDataEndBit, ErrCurrentLimit,
		ErrAutoCMD, ErrADMA, ErrTuning, ErrResponse, ErrHostBusy,
		ErrUnsupportedOperation, ErrUnsupportedBusWidth,
	}
	seen := make(map[Status]bool)
	for _, s := range assigned {
		if s < 0x01 || s > 0x61 {
			t.Errorf("%v = 0x%02X outside assigned range", s, uint8(s))
		}
		if seen[s] {
			t.Errorf("duplicate status 0x%02X", uint8(s))
		}
		seen[s] = true
	}

	for _, s := range []Status{ErrNotExecuted, ErrUnknown, ErrAborted, ErrCurrentlyExecuted} {
		if s < 0xEC {
			t.Errorf("internal status 0x%02X below reserved range", uint8(s))
		}
	}
}
