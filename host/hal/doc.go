// Package hal defines the Hardware Abstraction Layer for SD/SDIO/eMMC host
// controllers.
//
// The HAL provides a platform-agnostic interface between the host stack and
// the controller hardware. Platform vendors implement [HostHAL] to run the
// softsdio stack on their controller.
//
// # Design Principles
//
// The HAL is designed to be:
//   - Minimal: command submission, completion wait, bus configuration
//   - Generic: no register map or DMA descriptor layout leaks upward
//   - Blocking: CheckBusy is the single suspension point of every command
//
// The host stack implements all card protocol logic (bring-up sequencing,
// switch function, erase, block-length tracking), leaving the HAL to move
// commands and data.
//
// # Requests
//
// A [Request] carries up to [MaxCommands] command fields, a four word
// response buffer and a status byte. The stack fills it, calls
// ExecCardCommand, then CheckBusy:
//
//	req := hal.NewRequest(17, lba, hal.ResponseR1)
//	req.SetData(hal.DirectionRead, 1, 512, buf)
//	if err := h.ExecCardCommand(slot, req); err != nil {
//	    return err
//	}
//	if err := h.CheckBusy(ctx, slot, req); err != nil {
//	    return err
//	}
//	return req.Status.Err()
//
// # Register Access
//
// [Registers] exposes raw 32-bit register reads and writes for collaborators
// such as the PHY delay-line programmer in [github.com/ardnew/softsdio/phy].
//
// A simulated controller for testing is available in
// [github.com/ardnew/softsdio/host/hal/sim].
package hal
