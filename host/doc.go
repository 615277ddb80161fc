// Package host implements a pure-Go SD/SDIO/eMMC host command stack.
//
// It is platform-agnostic and interacts with hardware via the [hal.HostHAL]
// interface defined in the github.com/ardnew/softsdio/host/hal package.
// The HAL owns command encoding, data movement and auto-command handling;
// the stack owns card protocol: identification, selection, register
// decoding, function switching and the choice of transfer commands.
//
// # Architecture
//
// The stack is organized into three entities:
//
//   - Host binds the stack to one controller and owns the card info pool
//   - Slot is one card slot and the unit of command serialization
//   - Device is the card in a slot, with its decoded registers
//
// Every command travels as a [hal.Request]: the stack submits it with
// ExecCardCommand and blocks in CheckBusy until the controller reports the
// final status. A slot never has more than one request in flight.
//
// # Slot Ownership
//
// Each Slot carries an ownership token. Exported operations hold it for
// their whole command sequence, so protocols such as the CMD6 check and
// switch pair or the erase start, end and execute triple are never
// interleaved with another caller's commands. DataXferNonBlock and
// InfXferStart keep the token until WaitTransfer or InfDataXferFinish.
//
// # Device Lifecycle
//
//   - Unattached: no card brought up; only bring-up commands are legal
//   - Attached: identified, selected and memory initialized
//   - Removed: the card was pulled while attached
//
// # Example
//
//	h := host.New(controller, host.DefaultConfig())
//	if err := h.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	slot := h.Slot(0)
//	dev, err := slot.AttachCard(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	buf := make([]byte, 4*512)
//	err = slot.DataXfer(ctx, 0, buf, hal.DirectionRead)
//
// A simulated controller with emulated cards is available in
// [github.com/ardnew/softsdio/host/hal/sim].
package host
