// Package sim provides a simulated host controller for SD/SDIO/eMMC
// stacks.
//
// [HostHAL] implements [hal.HostHAL] over emulated cards from package
// card, one card per slot. It also implements [hal.Registers] for the PHY
// access register, so a phy.Controller can program delay lines against
// it.
//
// # Execution Model
//
// ExecCardCommand only accepts a request. The command runs when the stack
// calls CheckBusy, in controller order:
//
//  1. CMD23 when AutoCMD23 is set
//  2. the command itself, with the hardware response check if requested
//  3. the data phase, block by block across the scatter list
//  4. CMD12 when AutoCMD12 is set
//
// An Infinite request leaves the card streaming after its buffers are
// used. Continue requests move more data; Abort ends the stream with
// CMD12. A command of type hal.CommandTypeAbort also closes the stream
// before it reaches the card.
//
// Delay never sleeps. It advances a virtual clock reported by Elapsed, so
// polling loops in the stack run at full speed under test.
//
// # Test Support
//
// Every command that reaches a card is recorded in a per-slot log, with
// controller-issued commands marked Auto. InjectError makes the next
// command with a given index fail before it reaches the card.
//
//	c := card.New(card.Config{Type: card.TypeSD})
//	h := sim.New(c)
//	stack := host.New(h, host.DefaultConfig())
//	...
//	for _, cmd := range h.Log(0) {
//	    fmt.Println(cmd.Index, cmd.Arg, cmd.Auto)
//	}
package sim
