package host

import (
	"context"
	"time"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// infFinishDelay lets the last block of an open-ended write reach the
// card before the transfer is aborted.
const infFinishDelay = 300 * time.Microsecond

// totalLen returns the combined length of bufs.
func totalLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// checkWritable fails writes to a slot whose write-protect switch is on.
func (s *Slot) checkWritable(dir hal.Direction) error {
	if dir == hal.DirectionWrite && s.host.hal.WriteProtected(s.index) {
		return pkg.ErrCardWriteProtected
	}
	return nil
}

// PartialDataTransfer moves a sub-block sized buffer to or from the byte
// address addr. The length must be a multiple of 4 no larger than a
// block, and an empty buffer is a no-op. High capacity cards do not
// support partial transfers, and a transfer may only cross a block
// boundary when the card allows misaligned access in that direction.
func (s *Slot) PartialDataTransfer(ctx context.Context, addr uint32, buf []byte, dir hal.Direction) error {
	size := uint32(len(buf))
	if size == 0 {
		return nil
	}
	if size > DefaultBlockSize || size%4 != 0 {
		return pkg.ErrInvalidParameter
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.memoryDevice()
	if err != nil {
		return err
	}
	if d.capacity == CapacityHigh {
		return pkg.ErrUnsupportedOperation
	}
	if err := s.checkWritable(dir); err != nil {
		return err
	}

	info := d.memory
	allowed, misalign := info.PartialRead, info.ReadMisalign
	if dir == hal.DirectionWrite {
		allowed, misalign = info.PartialWrite, info.WriteMisalign
	}
	if !allowed {
		return pkg.ErrUnsupportedOperation
	}
	if !misalign && addr/DefaultBlockSize != (addr+size-1)/DefaultBlockSize {
		return pkg.ErrInvalidParameter
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	if info.BlockSize != size {
		if err := s.setBlockLength(ctx, d, info, size); err != nil {
			return err
		}
	}
	err = s.partialTransfer(ctx, addr, buf, dir)
	if rerr := s.setBlockLength(ctx, d, info, DefaultBlockSize); err == nil {
		err = rerr
	}
	return err
}

func (s *Slot) partialTransfer(ctx context.Context, addr uint32, buf []byte, dir hal.Direction) error {
	index := uint8(CmdReadSingleBlock)
	if dir == hal.DirectionWrite {
		index = CmdWriteBlock
	}
	req := hal.NewRequest(index, addr, hal.ResponseR1)
	req.SetData(dir, 1, uint32(len(buf)), buf)
	return s.dataResult(req, s.exec(ctx, req))
}

// xferPlan is the command sequence of one block transfer.
type xferPlan struct {
	req       *hal.Request
	manual23  bool // Send CMD23 before the transfer
	manualEnd bool // Send CMD12 after the transfer
}

// planXfer selects the transfer command and how the block count is
// conveyed: CMD23 (automatic unless the controller uses SDMA) when the
// card supports it, otherwise a stop command after the data.
func (s *Slot) planXfer(d *Device, lba, count uint32, bufs [][]byte, dir hal.Direction) xferPlan {
	var index uint8
	switch {
	case dir == hal.DirectionRead && count == 1:
		index = CmdReadSingleBlock
	case dir == hal.DirectionRead:
		index = CmdReadMultipleBlock
	case count == 1:
		index = CmdWriteBlock
	default:
		index = CmdWriteMultipleBlock
	}

	p := xferPlan{req: hal.NewRequest(index, d.blockAddress(lba), hal.ResponseR1)}
	p.req.SetData(dir, count, d.memory.BlockSize, bufs...)
	if count > 1 {
		flags := &p.req.Command().Flags
		switch {
		case d.cmd23 && s.host.cfg.DMAMode != hal.DMASDMA:
			flags.AutoCMD23 = true
		case d.cmd23:
			p.manual23 = true
		case s.host.cfg.AutoCommand:
			flags.AutoCMD12 = true
		default:
			p.manualEnd = true
		}
	}
	return p
}

// prepareXfer validates a block transfer and sends any CMD23 it needs.
func (s *Slot) prepareXfer(ctx context.Context, lba, count uint32, bufs [][]byte, dir hal.Direction) (*Device, xferPlan, error) {
	d, err := s.memoryDevice()
	if err != nil {
		return nil, xferPlan{}, err
	}
	if err := s.checkWritable(dir); err != nil {
		return nil, xferPlan{}, err
	}
	if uint64(totalLen(bufs)) < uint64(count)*uint64(d.memory.BlockSize) {
		return nil, xferPlan{}, pkg.ErrInvalidParameter
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return nil, xferPlan{}, err
	}

	p := s.planXfer(d, lba, count, bufs, dir)
	if p.manual23 {
		if _, err := s.commandR1(ctx, CmdSetBlockCount, count, hal.ResponseR1); err != nil {
			return nil, xferPlan{}, err
		}
	}
	return d, p, nil
}

// DataXfer transfers len(buf) bytes of whole blocks starting at block
// lba.
func (s *Slot) DataXfer(ctx context.Context, lba uint32, buf []byte, dir hal.Direction) error {
	if len(buf) == 0 {
		return nil
	}
	if len(buf)%DefaultBlockSize != 0 {
		return pkg.ErrInvalidParameter
	}
	return s.DataXfer2(ctx, lba, uint32(len(buf)/DefaultBlockSize), [][]byte{buf}, dir)
}

// DataXfer2 transfers count blocks starting at block lba, scattered
// across bufs in order. When the card lacks CMD23 and the controller is
// not configured to stop the transfer itself, CMD12 is sent once the data
// has moved.
func (s *Slot) DataXfer2(ctx context.Context, lba, count uint32, bufs [][]byte, dir hal.Direction) error {
	if count == 0 || totalLen(bufs) == 0 {
		return nil
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, p, err := s.prepareXfer(ctx, lba, count, bufs, dir)
	if err != nil {
		return err
	}
	if p.manualEnd {
		p.req.SubRequest = stopRequest(d, dir)
	}
	if err := s.dataResult(p.req, s.exec(ctx, p.req)); err != nil {
		pkg.LogWarn(pkg.ComponentMemory, "transfer failed",
			"slot", s.index,
			"lba", lba,
			"count", count,
			"dir", dir,
			"error", err)
		return err
	}

	if stop := p.req.SubRequest; stop != nil {
		if stop.Status == pkg.ErrNotExecuted {
			if err := s.exec(ctx, stop); err != nil {
				return err
			}
		} else if err := stop.Status.Err(); err != nil {
			return err
		}
		return s.checkR1(stop)
	}
	return nil
}

// stopRequest builds the CMD12 that ends an open-ended multiple block
// transfer.
func stopRequest(d *Device, dir hal.Direction) *hal.Request {
	resp := hal.ResponseR1B
	if d.deviceType == DeviceTypeMMC && dir == hal.DirectionRead {
		resp = hal.ResponseR1
	}
	req := hal.NewRequest(CmdStopTransmission, 0, resp)
	req.Command().Flags.Type = hal.CommandTypeAbort
	return req
}

// DataXferNonBlock starts a transfer of count blocks and returns once the
// controller has accepted it. The slot stays owned by the caller until
// WaitTransfer reports completion. Unlike DataXfer2, no CMD12 is sent for
// a card without CMD23 when automatic stop commands are disabled.
func (s *Slot) DataXferNonBlock(ctx context.Context, lba, count uint32, bufs [][]byte, dir hal.Direction) error {
	if count == 0 || totalLen(bufs) == 0 {
		return nil
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}

	_, p, err := s.prepareXfer(ctx, lba, count, bufs, dir)
	if err == nil {
		err = s.submit(p.req)
	}
	if err != nil {
		s.release()
		return err
	}

	s.mutex.Lock()
	s.pending = p.req
	s.abort = false
	s.mutex.Unlock()
	return nil
}

// WaitTransfer blocks until the transfer started by DataXferNonBlock
// completes, then releases the slot. If ctx ends first the transfer
// stays pending and WaitTransfer may be called again.
func (s *Slot) WaitTransfer(ctx context.Context) error {
	if s == nil {
		return pkg.ErrInvalidParameter
	}
	s.mutex.Lock()
	req := s.pending
	if req == nil {
		err := s.orphaned(true)
		s.mutex.Unlock()
		return err
	}
	s.mutex.Unlock()

	err := s.host.hal.CheckBusy(ctx, s.index, req)
	if err != nil && ctx.Err() != nil {
		return err
	}

	s.mutex.Lock()
	if s.pending != req {
		// Host.Stop aborted the transfer and took the token.
		err := s.orphaned(true)
		s.mutex.Unlock()
		return err
	}
	s.pending = nil
	s.mutex.Unlock()
	s.end()
	s.release()

	if err == nil {
		err = req.Status.Err()
	}
	return s.dataResult(req, err)
}

// InfXferStart starts an open-ended multi-block transfer at block lba
// with buf as the first data. The slot stays owned by the caller until
// InfDataXferFinish.
func (s *Slot) InfXferStart(ctx context.Context, lba uint32, buf []byte, dir hal.Direction) error {
	if len(buf) == 0 || len(buf)%DefaultBlockSize != 0 {
		return pkg.ErrInvalidParameter
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}

	req, err := s.startInfinite(ctx, lba, buf, dir)
	if err != nil {
		s.release()
		return err
	}
	s.mutex.Lock()
	s.infinite = req
	s.abort = false
	s.mutex.Unlock()
	return nil
}

func (s *Slot) startInfinite(ctx context.Context, lba uint32, buf []byte, dir hal.Direction) (*hal.Request, error) {
	d, err := s.memoryDevice()
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(dir); err != nil {
		return nil, err
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return nil, err
	}

	index := uint8(CmdReadMultipleBlock)
	if dir == hal.DirectionWrite {
		index = CmdWriteMultipleBlock
	}
	blockLen := d.memory.BlockSize
	req := hal.NewRequest(index, d.blockAddress(lba), hal.ResponseR1)
	req.SetData(dir, uint32(len(buf))/blockLen, blockLen, buf)
	req.Command().Flags.Infinite = true
	if err := s.dataResult(req, s.exec(ctx, req)); err != nil {
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentMemory, "open-ended transfer started",
		"slot", s.index,
		"lba", lba,
		"dir", dir)
	return req, nil
}

// InfXferContinue moves the next buffer of the open-ended transfer.
func (s *Slot) InfXferContinue(ctx context.Context, buf []byte) error {
	if s == nil {
		return pkg.ErrInvalidParameter
	}
	s.mutex.Lock()
	inf := s.infinite
	if inf == nil {
		err := s.orphaned(false)
		s.mutex.Unlock()
		return err
	}
	s.mutex.Unlock()

	first := inf.Command()
	if len(buf) == 0 || uint32(len(buf))%first.BlockLen != 0 {
		return pkg.ErrInvalidParameter
	}

	req := hal.NewRequest(first.Index, first.Argument, first.Response)
	req.SetData(first.Flags.Direction, uint32(len(buf))/first.BlockLen, first.BlockLen, buf)
	req.Command().Flags.Infinite = true
	req.Command().Flags.Continue = true
	return s.exec(ctx, req)
}

// InfDataXferFinish stops the open-ended transfer and releases the slot.
// Writes are given a fixed settling time before the abort.
func (s *Slot) InfDataXferFinish(ctx context.Context) error {
	if s == nil {
		return pkg.ErrInvalidParameter
	}
	s.mutex.Lock()
	inf := s.infinite
	if inf == nil {
		err := s.orphaned(true)
		s.mutex.Unlock()
		return err
	}
	s.infinite = nil
	s.mutex.Unlock()
	defer s.release()

	var err error
	if inf.Command().Flags.Direction == hal.DirectionWrite {
		err = s.host.hal.Delay(ctx, infFinishDelay)
	}
	if aerr := s.host.hal.Abort(s.index, true); err == nil {
		err = aerr
	}

	pkg.LogDebug(pkg.ComponentMemory, "open-ended transfer finished", "slot", s.index)
	return err
}
