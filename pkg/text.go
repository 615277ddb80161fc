//go:build !sdio_notext

package pkg

var statusTexts = map[Status]string{
	StatusNoError:           "no error",
	ErrInvalidParameter:     "invalid parameter",
	ErrDevNullPointer:       "device is null",
	ErrBufferTooSmall:       "buffer too small",
	ErrCardIsNotInserted:    "card is not inserted",
	ErrCardIsNotAttached:    "card is not attached",
	ErrCardWriteProtected:   "card is write protected",
	ErrCardLocked:           "card is locked",
	ErrInvalidState:         "invalid state for operation",
	ErrCardUnusable:         "card unusable at host voltage",
	ErrMemAlloc:             "memory card pool exhausted",
	ErrSwitchError:          "switch function error",
	ErrFunctionUnsupp:       "function not supported",
	ErrTupleNotFound:        "tuple not found",
	ErrSettingExtCSDFailed:  "setting extended CSD failed",
	ErrCardStatus:           "card status error",
	ErrTimeout:              "timeout",
	ErrLockUnlockFailed:     "lock/unlock failed",
	ErrCheckPattern:         "check pattern mismatch",
	ErrBootAck:              "boot acknowledge error",
	ErrCommandTimeout:       "command timeout",
	ErrCommandCRC:           "command CRC error",
	ErrCommandEndBit:        "command end bit error",
	ErrCommandIndex:         "command index error",
	ErrDataTimeout:          "data timeout",
	ErrDataCRC:              "data CRC error",
	ErrDataEndBit:           "data end bit error",
	ErrCurrentLimit:         "current limit error",
	ErrAutoCMD:              "auto command error",
	ErrADMA:                 "ADMA error",
	ErrTuning:               "tuning error",
	ErrResponse:             "response error",
	ErrHostBusy:             "host busy",
	ErrUnsupportedOperation: "unsupported operation",
	ErrUnsupportedBusWidth:  "unsupported bus width",
	ErrNotExecuted:          "request not executed",
	ErrUnknown:              "unknown error",
	ErrAborted:              "aborted",
	ErrCurrentlyExecuted:    "currently executing",
}

// statusText returns the text for s, or "" for unassigned codes.
func statusText(s Status) string {
	return statusTexts[s]
}
