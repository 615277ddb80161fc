package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// Configure sends a CMD42 lock/unlock block with op and password. The
// password must be 1 to MaxPasswordSize bytes. Use ForceErase to clear a
// forgotten password.
func (s *Slot) Configure(ctx context.Context, op LockOp, password []byte) error {
	if len(password) == 0 || len(password) > MaxPasswordSize {
		return pkg.ErrInvalidParameter
	}
	if op&LockForceErase != 0 {
		return pkg.ErrInvalidParameter
	}

	var block [DefaultBlockSize]byte
	block[0] = uint8(op)
	block[1] = uint8(len(password))
	copy(block[2:], password)
	return s.lockUnlock(ctx, block[:])
}

// ForceErase clears the password of a locked card, erasing all of its
// data.
func (s *Slot) ForceErase(ctx context.Context) error {
	var block [DefaultBlockSize]byte
	block[0] = uint8(LockForceErase)
	return s.lockUnlock(ctx, block[:])
}

func (s *Slot) lockUnlock(ctx context.Context, block []byte) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.memoryDevice()
	if err != nil {
		return err
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	req := hal.NewRequest(CmdLockUnlock, 0, hal.ResponseR1)
	req.SetData(hal.DirectionWrite, 1, uint32(len(block)), block)
	if err := s.exec(ctx, req); err != nil {
		return err
	}
	if err := s.checkR1(req); err != nil {
		return err
	}

	status, err := s.readCardStatus(ctx, d)
	if err != nil {
		return err
	}
	if status&CardStatusLockUnlockFail != 0 {
		pkg.LogWarn(pkg.ComponentMemory, "lock operation rejected",
			"slot", s.index,
			"op", block[0])
		return pkg.ErrLockUnlockFailed
	}

	pkg.LogDebug(pkg.ComponentMemory, "lock operation done",
		"slot", s.index,
		"op", block[0],
		"locked", status&CardStatusCardIsLocked != 0)
	return nil
}
