package host

import (
	"context"
	"errors"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// AttachCard identifies the card in the slot and brings it to the
// transfer state at the configured clock and bus width.
//
// Bring-up runs CMD0, the CMD5 SDIO check, CMD8, the ACMD41 (or MMC CMD1)
// power-up poll, CID, RCA and CSD reads, selection, SCR or ExtCSD reads
// and memory initialization. On failure the device is left unattached.
func (s *Slot) AttachCard(ctx context.Context) (*Device, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return nil, err
	}
	switch d.State() {
	case DeviceStateAttached:
		return nil, pkg.ErrInvalidState
	case DeviceStateRemoved:
		s.teardown(d)
	}

	if err := s.attach(ctx, d); err != nil {
		pkg.LogWarn(pkg.ComponentHost, "card bring-up failed",
			"slot", s.index,
			"error", err)
		s.teardown(d)
		return nil, err
	}
	if err := d.transition(DeviceStateAttached); err != nil {
		s.teardown(d)
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentHost, "card attached",
		"slot", s.index,
		"type", d.deviceType,
		"rca", d.rca,
		"capacity", d.capacity,
		"busWidth", s.busWidth)
	return d, nil
}

// DetachCard releases the device's resources and returns it to the
// unattached state. The card itself is not addressed.
func (s *Slot) DetachCard(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d := s.device
	if d.State() == DeviceStateUnattached {
		return pkg.ErrCardIsNotAttached
	}
	if err := d.transition(DeviceStateUnattached); err != nil {
		return err
	}
	s.teardown(d)

	pkg.LogInfo(pkg.ComponentHost, "card detached", "slot", s.index)
	return nil
}

// teardown drops every resource bound to d and resets the slot's bus
// settings.
func (s *Slot) teardown(d *Device) {
	s.deinitializeMemory(d)
	d.reset()

	s.mutex.Lock()
	s.infinite = nil
	s.pending = nil
	s.busWidth = hal.BusWidth1
	s.accessMode = hal.AccessModeDefault
	s.uhs = false
	s.cmdq = CommandQueue{}
	s.mutex.Unlock()
}

func (s *Slot) attach(ctx context.Context, d *Device) error {
	h := s.host
	if h.cfg.BusMode == hal.BusModeSPI {
		return pkg.ErrUnsupportedOperation
	}

	if err := h.hal.SetClock(s.index, h.cfg.IdentClock); err != nil {
		return err
	}
	if err := h.hal.SetBusWidth(s.index, hal.BusWidth1); err != nil {
		return err
	}
	if err := h.hal.SetAccessMode(s.index, hal.AccessModeDefault); err != nil {
		return err
	}
	s.mutex.Lock()
	s.busWidth = hal.BusWidth1
	s.accessMode = hal.AccessModeDefault
	s.mutex.Unlock()

	if err := s.resetCard(ctx, d); err != nil {
		return err
	}

	io, err := s.detectSDIO(ctx, d)
	if err != nil {
		return err
	}
	if io && d.deviceType == DeviceTypeSDIO {
		return s.attachSDIO(ctx, d)
	}

	v2, err := s.sendIfCond(ctx)
	if err != nil {
		return err
	}
	if err := s.powerUp(ctx, d, v2); err != nil {
		return err
	}

	if err := s.readCID(ctx, d); err != nil {
		return err
	}
	if err := s.readRCA(ctx, d); err != nil {
		return err
	}
	if err := s.readCSD(ctx, d); err != nil {
		return err
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	switch d.deviceType {
	case DeviceTypeMMC:
		d.specVersion = d.csd.SpecVersion
		if d.specVersion >= 4 {
			if _, err := s.readExtCSD(ctx, d); err != nil {
				return err
			}
			d.cmd23 = true
		}
	default:
		if err := s.readSCR(ctx, d); err != nil {
			return err
		}
	}

	if err := s.initializeMemory(ctx, d); err != nil {
		return err
	}
	return s.finishBringUp(ctx, d)
}

// detectSDIO issues CMD5. A card that answers is SDIO, or a combo card
// when it also reports memory. io is false for memory-only cards.
func (s *Slot) detectSDIO(ctx context.Context, d *Device) (io bool, err error) {
	req, err := s.command(ctx, CmdIOSendOpCond, 0, hal.ResponseR4)
	if errors.Is(err, pkg.ErrCommandTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ocr := req.Response[0]
	d.ioFunctions = uint8(ocr>>ioOCRFuncShift) & 0x7
	if ocr&ocrVoltageMask == 0 {
		return false, pkg.ErrCardUnusable
	}

	err = s.host.WaitFor(ctx, s.host.cfg.CommandTimeout, func() (bool, error) {
		req, err := s.command(ctx, CmdIOSendOpCond, ocr&ocrVoltageMask, hal.ResponseR4)
		if err != nil {
			return false, err
		}
		return req.Response[0]&ocrBusy != 0, nil
	})
	if err != nil {
		return false, err
	}

	d.deviceType = DeviceTypeSDIO
	if ocr&ioOCRMemPresent != 0 {
		d.deviceType = DeviceTypeCombo
	}
	pkg.LogDebug(pkg.ComponentHost, "SDIO card detected",
		"slot", s.index,
		"functions", d.ioFunctions,
		"memory", d.deviceType == DeviceTypeCombo)
	return true, nil
}

// attachSDIO completes bring-up of an I/O only card.
func (s *Slot) attachSDIO(ctx context.Context, d *Device) error {
	if err := s.readRCA(ctx, d); err != nil {
		return err
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}
	d.busWidths = hal.BusWidth1.Mask() | hal.BusWidth4.Mask()
	return s.finishBringUp(ctx, d)
}

// sendIfCond issues CMD8. v2 is false when the card does not answer,
// which is how SD 1.x cards and MMC respond.
func (s *Slot) sendIfCond(ctx context.Context) (v2 bool, err error) {
	req, err := s.command(ctx, CmdSendIfCond, ifCondArg, hal.ResponseR7)
	if errors.Is(err, pkg.ErrCommandTimeout) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if req.Response[0]&0xFFF != ifCondArg {
		pkg.LogWarn(pkg.ComponentHost, "CMD8 echo mismatch",
			"slot", s.index,
			"response", req.Response[0])
		return false, pkg.ErrCheckPattern
	}
	return true, nil
}

// powerUp polls ACMD41 until the card leaves the busy state. A card that
// ignores CMD55 is taken for MMC and polled with CMD1 instead.
func (s *Slot) powerUp(ctx context.Context, d *Device, v2 bool) error {
	inquiry := hal.NewRequest(ACmdSDSendOpCond, 0, hal.ResponseR3)
	err := s.appCommand(ctx, 0, inquiry)
	switch {
	case errors.Is(err, pkg.ErrCommandTimeout) && d.deviceType != DeviceTypeCombo:
		return s.powerUpMMC(ctx, d)
	case err != nil:
		return err
	}

	window := inquiry.Response[0] & ocrVoltageMask
	if window == 0 {
		return pkg.ErrCardUnusable
	}
	arg := window
	if v2 {
		arg |= ocrHCS
	}

	var ocr uint32
	err = s.host.WaitFor(ctx, s.host.cfg.CommandTimeout, func() (bool, error) {
		req := hal.NewRequest(ACmdSDSendOpCond, arg, hal.ResponseR3)
		if err := s.appCommand(ctx, 0, req); err != nil {
			return false, err
		}
		ocr = req.Response[0]
		return ocr&ocrBusy != 0, nil
	})
	if err != nil {
		return err
	}

	if d.deviceType != DeviceTypeCombo {
		d.deviceType = DeviceTypeSDMemory
	}
	if ocr&ocrHCS != 0 {
		d.capacity = CapacityHigh
	}
	pkg.LogDebug(pkg.ComponentHost, "SD card powered up",
		"slot", s.index,
		"v2", v2,
		"ocr", ocr)
	return nil
}

func (s *Slot) powerUpMMC(ctx context.Context, d *Device) error {
	inquiry, err := s.command(ctx, CmdSendOpCond, 0, hal.ResponseR3)
	if err != nil {
		return err
	}
	if inquiry.Response[0]&ocrVoltageMask == 0 {
		return pkg.ErrCardUnusable
	}

	var ocr uint32
	err = s.host.WaitFor(ctx, s.host.cfg.CommandTimeout, func() (bool, error) {
		req, err := s.command(ctx, CmdSendOpCond, ocrMMCDualVolt|ocrHCS, hal.ResponseR3)
		if err != nil {
			return false, err
		}
		ocr = req.Response[0]
		return ocr&ocrBusy != 0, nil
	})
	if err != nil {
		return err
	}

	d.deviceType = DeviceTypeMMC
	if ocr&ocrHCS != 0 {
		d.capacity = CapacityHigh
	}
	pkg.LogDebug(pkg.ComponentHost, "MMC powered up", "slot", s.index, "ocr", ocr)
	return nil
}

// finishBringUp raises the clock and widens the bus as far as both the
// card and the configuration allow.
func (s *Slot) finishBringUp(ctx context.Context, d *Device) error {
	if err := s.host.hal.SetClock(s.index, s.host.cfg.TransferClock); err != nil {
		return err
	}
	for _, w := range []hal.BusWidth{hal.BusWidth8, hal.BusWidth4} {
		if w > s.host.cfg.BusWidth || d.busWidths&w.Mask() == 0 {
			continue
		}
		return s.setBusWidth(ctx, d, w)
	}
	return nil
}
