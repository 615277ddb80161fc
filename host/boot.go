package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// MmcExecuteBoot reads the boot partition payload into buf, whose length
// must be a non-zero multiple of the block size. The card must not be
// attached: boot mode is entered from the pre-idle state, before
// identification.
func (s *Slot) MmcExecuteBoot(ctx context.Context, buf []byte) error {
	if len(buf) == 0 || len(buf)%DefaultBlockSize != 0 {
		return pkg.ErrInvalidParameter
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return err
	}
	if d.State() == DeviceStateAttached {
		return pkg.ErrInvalidState
	}

	if _, err := s.command(ctx, CmdGoIdleState, argGoPreIdle, hal.ResponseNone); err != nil {
		pkg.LogWarn(pkg.ComponentCard, "pre-idle failed", "slot", s.index, "error", err)
		return err
	}

	req := hal.NewRequest(CmdGoIdleState, argBootInit, hal.ResponseNone)
	req.SetData(hal.DirectionRead, uint32(len(buf)/DefaultBlockSize), DefaultBlockSize, buf)
	req.Command().Flags.HwRespCheck = true
	if err := s.exec(ctx, req); err != nil {
		pkg.LogWarn(pkg.ComponentCard, "boot read failed", "slot", s.index, "error", err)
		return err
	}

	pkg.LogInfo(pkg.ComponentCard, "boot payload read", "slot", s.index, "bytes", len(buf))
	return nil
}

// MmcSetBootPartition selects the partition the card boots from:
// 0 disables boot, 1 and 2 select the boot partitions and 7 the user
// area.
func (s *Slot) MmcSetBootPartition(ctx context.Context, partition uint8) error {
	switch partition {
	case 0, PartitionBoot1, PartitionBoot2, 7:
	default:
		return pkg.ErrInvalidParameter
	}
	return s.partitionConfig(ctx, partition<<bootEnableShift, bootEnableMask)
}

// MmcSetBootAck enables or disables the boot acknowledge pattern.
func (s *Slot) MmcSetBootAck(ctx context.Context, enable bool) error {
	var value uint8
	if enable {
		value = bootAckBit
	}
	return s.partitionConfig(ctx, value, bootAckBit)
}

// MmcSetPartitionAccess selects the partition addressed by data
// transfers.
func (s *Slot) MmcSetPartitionAccess(ctx context.Context, partition uint8) error {
	if partition > partAccessMask {
		return pkg.ErrInvalidParameter
	}
	return s.partitionConfig(ctx, partition, partAccessMask)
}

// partitionConfig updates the PARTITION_CONFIG bits under mask.
func (s *Slot) partitionConfig(ctx context.Context, value, mask uint8) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	if d.deviceType != DeviceTypeMMC || d.specVersion < 4 {
		return pkg.ErrUnsupportedOperation
	}
	return s.mmcSetExtCSD(ctx, d, ExtCSDPartitionConfig, value, mask)
}
