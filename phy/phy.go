package phy

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// Access register layout. Delay values travel through a single register
// guarded by a request/acknowledge handshake.
const (
	RegAccess = 0x10 // Offset of the PHY access register

	AccessAddrMask   = 0x3F    // Delay address, bits 5:0
	AccessWDataShift = 8       // Write data, bits 15:8
	AccessRDataShift = 16      // Read data, bits 23:16
	AccessWrite      = 1 << 24 // Write request
	AccessRead       = 1 << 25 // Read request
	AccessAck        = 1 << 26 // Acknowledge from the PHY
)

// DelayType addresses one delay line.
type DelayType uint8

// Delay line addresses.
const (
	DelayInputHS        DelayType = 0x00
	DelayInputDefault   DelayType = 0x01
	DelayInputSDR12     DelayType = 0x02
	DelayInputSDR25     DelayType = 0x03
	DelayInputSDR50     DelayType = 0x04
	DelayInputDDR50     DelayType = 0x05
	DelayInputMMCLegacy DelayType = 0x06
	DelayInputMMCSDR    DelayType = 0x07
	DelayInputMMCDDR    DelayType = 0x08
	DelayDLLSDCLK       DelayType = 0x0B
	DelayDLLSDCLKHS     DelayType = 0x0C
	DelayDLLDATStrobe   DelayType = 0x0D
)

// Setting is one delay line value.
type Setting struct {
	Type  DelayType
	Value uint8
}

// Table maps an access mode to the delay settings it requires.
type Table map[hal.AccessMode][]Setting

// Sleeper suspends the caller. hal.HostHAL satisfies it.
type Sleeper interface {
	Delay(ctx context.Context, d time.Duration) error
}

// DefaultAckTimeout bounds a single handshake phase.
const DefaultAckTimeout = 10 * time.Millisecond

// Controller programs PHY delay lines through the access register.
type Controller struct {
	regs    hal.Registers
	sleep   Sleeper
	timeout time.Duration
}

// New creates a Controller over regs. sleep provides the polling delay.
func New(regs hal.Registers, sleep Sleeper) *Controller {
	return &Controller{regs: regs, sleep: sleep, timeout: DefaultAckTimeout}
}

// SetAckTimeout changes the handshake timeout.
func (c *Controller) SetAckTimeout(d time.Duration) {
	c.timeout = d
}

// WriteDelay programs one delay line.
func (c *Controller) WriteDelay(ctx context.Context, typ DelayType, value uint8) error {
	req := uint32(typ)&AccessAddrMask | uint32(value)<<AccessWDataShift
	c.regs.WriteReg(RegAccess, req)
	c.regs.WriteReg(RegAccess, req|AccessWrite)
	if err := c.waitAck(ctx, true); err != nil {
		c.regs.WriteReg(RegAccess, req)
		return err
	}
	c.regs.WriteReg(RegAccess, req)
	if err := c.waitAck(ctx, false); err != nil {
		return err
	}

	pkg.LogDebug(pkg.ComponentPHY, "delay written", "type", typ, "value", value)
	return nil
}

// ReadDelay returns the current value of one delay line.
func (c *Controller) ReadDelay(ctx context.Context, typ DelayType) (uint8, error) {
	req := uint32(typ) & AccessAddrMask
	c.regs.WriteReg(RegAccess, req)
	c.regs.WriteReg(RegAccess, req|AccessRead)
	if err := c.waitAck(ctx, true); err != nil {
		c.regs.WriteReg(RegAccess, req)
		return 0, err
	}
	value := uint8(c.regs.ReadReg(RegAccess) >> AccessRDataShift)
	c.regs.WriteReg(RegAccess, req)
	if err := c.waitAck(ctx, false); err != nil {
		return 0, err
	}
	return value, nil
}

// Apply writes every setting in order, stopping at the first failure.
func (c *Controller) Apply(ctx context.Context, settings []Setting) error {
	for _, s := range settings {
		if err := c.WriteDelay(ctx, s.Type, s.Value); err != nil {
			pkg.LogWarn(pkg.ComponentPHY, "delay programming failed",
				"type", s.Type,
				"error", err)
			return err
		}
	}
	return nil
}

// waitAck polls until the acknowledge bit equals want.
func (c *Controller) waitAck(ctx context.Context, want bool) error {
	b := &backoff.Backoff{
		Min:    time.Microsecond,
		Max:    time.Millisecond,
		Factor: 2,
	}
	var waited time.Duration
	for {
		if (c.regs.ReadReg(RegAccess)&AccessAck != 0) == want {
			return nil
		}
		if waited >= c.timeout {
			return pkg.ErrTimeout
		}
		d := b.Duration()
		if err := c.sleep.Delay(ctx, d); err != nil {
			return err
		}
		waited += d
	}
}
