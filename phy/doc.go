// Package phy programs the delay lines of a combo PHY.
//
// Delay values are exchanged through one access register: the driver
// writes the delay address and value, raises the request bit, waits for
// the PHY to acknowledge, then drops the request and waits for the
// acknowledge to clear. Each wait is bounded by an acknowledge timeout and
// polled with an exponential backoff.
//
//	c := phy.New(regs, hal)
//	err := c.Apply(ctx, table[hal.AccessModeHS])
package phy
