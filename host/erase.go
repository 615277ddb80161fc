package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// DataErase erases count blocks starting at block start. A count of 0
// does nothing. The start, end and erase commands are sent while the
// slot is owned, so no other command lands between them.
func (s *Slot) DataErase(ctx context.Context, start, count uint32) error {
	if count == 0 {
		return nil
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.memoryDevice()
	if err != nil {
		return err
	}
	if err := s.checkWritable(hal.DirectionWrite); err != nil {
		return err
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	first, last := uint8(CmdEraseWrBlkStart), uint8(CmdEraseWrBlkEnd)
	if d.deviceType == DeviceTypeMMC {
		first, last = CmdEraseGroupStart, CmdEraseGroupEnd
	}
	if _, err := s.commandR1(ctx, first, d.blockAddress(start), hal.ResponseR1); err != nil {
		return err
	}
	if _, err := s.commandR1(ctx, last, d.blockAddress(start+count-1), hal.ResponseR1); err != nil {
		return err
	}
	if _, err := s.commandR1(ctx, CmdErase, 0, hal.ResponseR1B); err != nil {
		pkg.LogWarn(pkg.ComponentMemory, "erase failed",
			"slot", s.index,
			"start", start,
			"count", count,
			"error", err)
		return err
	}

	pkg.LogDebug(pkg.ComponentMemory, "blocks erased",
		"slot", s.index,
		"start", start,
		"count", count)
	return nil
}
