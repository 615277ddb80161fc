package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// MemoryCardInfo describes the memory portion of an attached card, as
// derived from its CSD and ExtCSD.
type MemoryCardInfo struct {
	BlockSize        uint32 // Length last programmed with CMD16
	CommandClasses   uint16
	DeviceSizeMB     uint32
	PartialRead      bool
	PartialWrite     bool
	ReadMisalign     bool
	WriteMisalign    bool
	EraseBlockEnable bool
	SectorSize       uint32 // Erase unit, in blocks
}

// Initialize binds memory card info to the attached device. It is run by
// AttachCard and is only needed again after Deinitialize.
func (s *Slot) Initialize(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	if !d.deviceType.HasMemory() {
		return pkg.ErrUnsupportedOperation
	}
	if d.memory != nil {
		return nil
	}
	return s.initializeMemory(ctx, d)
}

func (s *Slot) initializeMemory(ctx context.Context, d *Device) error {
	info, err := s.host.acquireMemoryInfo()
	if err != nil {
		pkg.LogWarn(pkg.ComponentMemory, "card info pool exhausted", "slot", s.index)
		return err
	}
	if err := s.fillMemoryInfo(ctx, d, info); err != nil {
		s.host.releaseMemoryInfo(info)
		return err
	}
	d.memory = info

	pkg.LogInfo(pkg.ComponentMemory, "memory initialized",
		"slot", s.index,
		"sizeMB", info.DeviceSizeMB,
		"capacity", d.capacity)
	return nil
}

func (s *Slot) fillMemoryInfo(ctx context.Context, d *Device, info *MemoryCardInfo) error {
	if err := s.readCSD(ctx, d); err != nil {
		return err
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	csd := &d.csd
	*info = MemoryCardInfo{
		CommandClasses: csd.CommandClasses,
		DeviceSizeMB:   csd.DeviceSizeMB(d.deviceType, d.secCount),
		PartialRead:    csd.ReadBlPartial,
		PartialWrite:   csd.WriteBlPartial,
		ReadMisalign:   csd.ReadBlkMisalign,
		WriteMisalign:  csd.WriteBlkMisalign,
	}
	if d.deviceType == DeviceTypeMMC {
		info.SectorSize = (uint32(csd.EraseGroupSize) + 1) * (uint32(csd.EraseGroupMult) + 1)
		d.specVersion = csd.SpecVersion
		if d.specVersion < 4 {
			d.busWidths = hal.BusWidth1.Mask()
		} else {
			d.busWidths = hal.BusWidth1.Mask() | hal.BusWidth4.Mask() | hal.BusWidth8.Mask()
		}
	} else {
		info.EraseBlockEnable = csd.EraseBlkEnable
		info.SectorSize = uint32(csd.SectorSize) + 1
	}

	if err := s.setBlockLength(ctx, d, info, DefaultBlockSize); err != nil {
		return err
	}
	return nil
}

// Deinitialize returns the memory card info to the pool. It is a no-op
// when no info is bound.
func (s *Slot) Deinitialize(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.deinitializeMemory(s.device)
	return nil
}

func (s *Slot) deinitializeMemory(d *Device) {
	if d.memory == nil {
		return
	}
	s.host.releaseMemoryInfo(d.memory)
	d.memory = nil
	pkg.LogDebug(pkg.ComponentMemory, "memory deinitialized", "slot", s.index)
}

// SetBlockLength programs the block length used by data transfers. In
// HS_DDR mode CMD16 is illegal and only the default length is accepted.
func (s *Slot) SetBlockLength(ctx context.Context, length uint32) error {
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
	return s.setBlockLength(ctx, d, d.memory, length)
}

func (s *Slot) setBlockLength(ctx context.Context, d *Device, info *MemoryCardInfo, length uint32) error {
	if length == 0 || length > DefaultBlockSize {
		return pkg.ErrInvalidParameter
	}
	if s.accessMode == hal.AccessModeHSDDR {
		if length != DefaultBlockSize {
			return pkg.ErrUnsupportedOperation
		}
		info.BlockSize = length
		return nil
	}
	if _, err := s.commandR1(ctx, CmdSetBlockLen, length, hal.ResponseR1); err != nil {
		return err
	}
	info.BlockSize = length
	return nil
}
