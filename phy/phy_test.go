package phy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// =============================================================================
// Fake PHY
// =============================================================================

// fakePHY emulates the access register handshake.
type fakePHY struct {
	reg     uint32
	delays  [64]uint8
	deaf    bool // never acknowledge
	writes  int
	reqSeen int
}

func (f *fakePHY) ReadReg(offset uint32) uint32 {
	if offset != RegAccess {
		return 0
	}
	return f.reg
}

func (f *fakePHY) WriteReg(offset uint32, value uint32) {
	if offset != RegAccess {
		return
	}
	f.writes++
	addr := value & AccessAddrMask
	f.reg = value &^ AccessAck
	if f.deaf {
		return
	}
	switch {
	case value&AccessWrite != 0:
		f.reqSeen++
		f.delays[addr] = uint8(value >> AccessWDataShift)
		f.reg |= AccessAck
	case value&AccessRead != 0:
		f.reqSeen++
		f.reg = f.reg&^(0xFF<<AccessRDataShift) | uint32(f.delays[addr])<<AccessRDataShift | AccessAck
	}
}

var _ hal.Registers = (*fakePHY)(nil)

// countingSleeper records requested delays without sleeping.
type countingSleeper struct {
	calls int
	total time.Duration
}

func (s *countingSleeper) Delay(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.calls++
	s.total += d
	return nil
}

// =============================================================================
// Controller Tests
// =============================================================================

func TestController_WriteReadDelay(t *testing.T) {
	regs := &fakePHY{}
	c := New(regs, &countingSleeper{})
	ctx := context.Background()

	if err := c.WriteDelay(ctx, DelayInputSDR50, 0x2A); err != nil {
		t.Fatalf("WriteDelay failed: %v", err)
	}
	if regs.delays[DelayInputSDR50] != 0x2A {
		t.Errorf("delay = 0x%02X, want 0x2A", regs.delays[DelayInputSDR50])
	}

	got, err := c.ReadDelay(ctx, DelayInputSDR50)
	if err != nil {
		t.Fatalf("ReadDelay failed: %v", err)
	}
	if got != 0x2A {
		t.Errorf("ReadDelay() = 0x%02X, want 0x2A", got)
	}
	if regs.reg&(AccessWrite|AccessRead|AccessAck) != 0 {
		t.Errorf("handshake bits left set: 0x%08X", regs.reg)
	}
}

func TestController_Apply(t *testing.T) {
	regs := &fakePHY{}
	c := New(regs, &countingSleeper{})

	settings := []Setting{
		{DelayInputHS, 3},
		{DelayDLLSDCLK, 0x11},
		{DelayDLLDATStrobe, 0x22},
	}
	if err := c.Apply(context.Background(), settings); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	for _, s := range settings {
		if regs.delays[s.Type] != s.Value {
			t.Errorf("delay[0x%02X] = 0x%02X, want 0x%02X", s.Type, regs.delays[s.Type], s.Value)
		}
	}
	if regs.reqSeen != len(settings) {
		t.Errorf("requests = %d, want %d", regs.reqSeen, len(settings))
	}
}

func TestController_AckTimeout(t *testing.T) {
	regs := &fakePHY{deaf: true}
	sleeper := &countingSleeper{}
	c := New(regs, sleeper)
	c.SetAckTimeout(100 * time.Microsecond)

	err := c.WriteDelay(context.Background(), DelayInputDefault, 1)
	if !errors.Is(err, pkg.ErrTimeout) {
		t.Fatalf("WriteDelay error = %v, want ErrTimeout", err)
	}
	if sleeper.total < 100*time.Microsecond {
		t.Errorf("waited %v, want at least 100µs", sleeper.total)
	}
	if regs.reg&AccessWrite != 0 {
		t.Error("write request left raised after timeout")
	}
}

func TestController_Cancelled(t *testing.T) {
	regs := &fakePHY{deaf: true}
	c := New(regs, &countingSleeper{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ReadDelay(ctx, DelayInputHS)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ReadDelay error = %v, want context.Canceled", err)
	}
}
