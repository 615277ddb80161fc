package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// ioRWDirect issues CMD52 and returns the data byte of the R5 response.
func (s *Slot) ioRWDirect(ctx context.Context, arg uint32) (uint8, error) {
	req, err := s.command(ctx, CmdIORWDirect, arg, hal.ResponseR5)
	if err != nil {
		return 0, err
	}
	if req.Response[0]&r5ErrorMask != 0 {
		pkg.LogDebug(pkg.ComponentCard, "R5 error",
			"slot", s.index,
			"arg", arg,
			"response", req.Response[0])
		return 0, pkg.ErrCardStatus
	}
	return uint8(req.Response[0]), nil
}

// ioReadByte reads one byte of function fn's register space.
func (s *Slot) ioReadByte(ctx context.Context, fn uint8, addr uint32) (uint8, error) {
	return s.ioRWDirect(ctx, uint32(fn&0x7)<<ioRWFuncShift|addr<<ioRWAddrShift)
}

// ioWriteByte writes one byte of function fn's register space and returns
// the value read back after the write.
func (s *Slot) ioWriteByte(ctx context.Context, fn uint8, addr uint32, value uint8) (uint8, error) {
	arg := ioRWWrite | ioRWRAW | uint32(fn&0x7)<<ioRWFuncShift | addr<<ioRWAddrShift | uint32(value)
	return s.ioRWDirect(ctx, arg)
}

// GetTupleFromCIS searches the common CIS for the first tuple with code
// and copies its body into buf. It returns the body length.
func (s *Slot) GetTupleFromCIS(ctx context.Context, code uint8, buf []byte) (int, error) {
	if code == TupleNull || code == TupleEnd {
		return 0, pkg.ErrInvalidParameter
	}
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return 0, err
	}
	if d.deviceType != DeviceTypeSDIO && d.deviceType != DeviceTypeCombo {
		return 0, pkg.ErrUnsupportedOperation
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return 0, err
	}
	return s.getTuple(ctx, code, buf)
}

func (s *Slot) getTuple(ctx context.Context, code uint8, buf []byte) (int, error) {
	var ptr uint32
	for i := range uint32(3) {
		b, err := s.ioReadByte(ctx, 0, cccrCISPointer+i)
		if err != nil {
			return 0, err
		}
		ptr |= uint32(b) << (8 * i)
	}

	for addr := ptr; addr < ptr+maxCISWalk; {
		tuple, err := s.ioReadByte(ctx, 0, addr)
		if err != nil {
			return 0, err
		}
		switch tuple {
		case TupleEnd:
			return 0, pkg.ErrTupleNotFound
		case TupleNull:
			addr++
			continue
		}

		link, err := s.ioReadByte(ctx, 0, addr+1)
		if err != nil {
			return 0, err
		}
		if tuple == code {
			n := int(link)
			if n > len(buf) {
				return 0, pkg.ErrBufferTooSmall
			}
			for i := range n {
				if buf[i], err = s.ioReadByte(ctx, 0, addr+2+uint32(i)); err != nil {
					return 0, err
				}
			}
			pkg.LogDebug(pkg.ComponentCard, "CIS tuple found",
				"slot", s.index,
				"code", code,
				"addr", addr,
				"size", n)
			return n, nil
		}
		if link == 0xFF {
			return 0, pkg.ErrTupleNotFound
		}
		addr += 2 + uint32(link)
	}
	return 0, pkg.ErrTupleNotFound
}
