package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// ResetCard sends CMD0. The card is not asked to confirm the reset, so
// only controller failures are reported.
func (s *Slot) ResetCard(ctx context.Context) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return err
	}
	return s.resetCard(ctx, d)
}

func (s *Slot) resetCard(ctx context.Context, d *Device) error {
	resp := hal.ResponseNone
	if s.host.cfg.BusMode == hal.BusModeSPI {
		resp = hal.ResponseR1
	}
	if _, err := s.command(ctx, CmdGoIdleState, 0, resp); err != nil {
		return err
	}
	d.selected = false
	return nil
}

// SelectCard selects the card with rca, or deselects every card when rca
// is 0. No command is sent when the card is already in the requested
// state.
func (s *Slot) SelectCard(ctx context.Context, rca uint16) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return err
	}
	if d.State() != DeviceStateAttached {
		return pkg.ErrCardIsNotAttached
	}
	return s.selectCard(ctx, d, rca)
}

func (s *Slot) selectCard(ctx context.Context, d *Device, rca uint16) error {
	if rca != 0 && rca != d.rca {
		return pkg.ErrInvalidParameter
	}
	selecting := rca != 0
	if d.selected == selecting {
		return nil
	}
	if s.host.cfg.BusMode == hal.BusModeSPI {
		d.selected = selecting
		return nil
	}

	resp := hal.ResponseNone
	switch {
	case d.deviceType == DeviceTypeMMC:
		resp = hal.ResponseR1
	case selecting:
		resp = hal.ResponseR1B
	}
	if _, err := s.commandR1(ctx, CmdSelectCard, uint32(rca)<<16, resp); err != nil {
		return err
	}
	d.selected = selecting
	return nil
}

// ReadRCA obtains the relative card address. SD and SDIO cards publish
// their own address; MMC is assigned the next local candidate.
func (s *Slot) ReadRCA(ctx context.Context) (uint16, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return 0, err
	}
	if err := s.readRCA(ctx, d); err != nil {
		return 0, err
	}
	return d.rca, nil
}

func (s *Slot) readRCA(ctx context.Context, d *Device) error {
	if d.deviceType == DeviceTypeMMC {
		rca := s.host.allocateRCA()
		if _, err := s.command(ctx, CmdSendRelativeAddr, uint32(rca)<<16, hal.ResponseR1); err != nil {
			// Some MMC devices report an error even though the address
			// was taken. Errors from the stack or the controller itself
			// still fail.
			if st := pkg.StatusOf(err); !st.IsHardware() || st == pkg.ErrHostBusy {
				return err
			}
			pkg.LogDebug(pkg.ComponentCard, "ignoring CMD3 error",
				"slot", s.index,
				"rca", rca,
				"error", err)
		}
		d.rca = rca
		return nil
	}

	req, err := s.command(ctx, CmdSendRelativeAddr, 0, hal.ResponseR6)
	if err != nil {
		return err
	}
	if req.Response[0]&r6ErrorMask != 0 {
		return pkg.ErrCardStatus
	}
	d.rca = uint16(req.Response[0] >> 16)
	return nil
}

// ReadCID reads and decodes the card identification register.
func (s *Slot) ReadCID(ctx context.Context) (CID, error) {
	if err := s.acquire(ctx); err != nil {
		return CID{}, err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return CID{}, err
	}
	if err := s.readCID(ctx, d); err != nil {
		return CID{}, err
	}
	return d.cid, nil
}

func (s *Slot) readCID(ctx context.Context, d *Device) error {
	var (
		raw [16]byte
		err error
	)
	switch {
	case s.host.cfg.BusMode == hal.BusModeSPI:
		raw, err = s.readRegisterSPI(ctx, CmdSendCID)
	case d.rca == 0:
		raw, err = s.readRegister(ctx, d, CmdAllSendCID)
	default:
		raw, err = s.readRegister(ctx, d, CmdSendCID)
	}
	if err != nil {
		return err
	}
	d.cid = DecodeCID(raw, d.deviceType)
	return nil
}

// ReadCSD reads and decodes the card specific data register.
func (s *Slot) ReadCSD(ctx context.Context) (CSD, error) {
	if err := s.acquire(ctx); err != nil {
		return CSD{}, err
	}
	defer s.release()

	d, err := s.presentDevice()
	if err != nil {
		return CSD{}, err
	}
	if err := s.readCSD(ctx, d); err != nil {
		return CSD{}, err
	}
	return d.csd, nil
}

func (s *Slot) readCSD(ctx context.Context, d *Device) error {
	var (
		raw [16]byte
		err error
	)
	if s.host.cfg.BusMode == hal.BusModeSPI {
		raw, err = s.readRegisterSPI(ctx, CmdSendCSD)
	} else {
		raw, err = s.readRegister(ctx, d, CmdSendCSD)
	}
	if err != nil {
		return err
	}
	d.csd = DecodeCSD(raw, d.deviceType)
	return nil
}

// readRegister reads CID or CSD over the command line. The card must be
// in standby, so it is deselected first.
func (s *Slot) readRegister(ctx context.Context, d *Device, index uint8) ([16]byte, error) {
	if err := s.selectCard(ctx, d, 0); err != nil {
		return [16]byte{}, err
	}
	arg := uint32(d.rca) << 16
	if index == CmdAllSendCID {
		arg = 0
	}
	req, err := s.command(ctx, index, arg, hal.ResponseR2)
	if err != nil {
		return [16]byte{}, err
	}
	return req.R2(), nil
}

// readRegisterSPI reads CID or CSD as a 16-byte data block.
func (s *Slot) readRegisterSPI(ctx context.Context, index uint8) ([16]byte, error) {
	var raw [16]byte
	buf := s.aux[:len(raw)]
	req := hal.NewRequest(index, 0, hal.ResponseR1)
	req.SetData(hal.DirectionRead, 1, uint32(len(buf)), buf)
	if err := s.dataResult(req, s.exec(ctx, req)); err != nil {
		return raw, err
	}
	copy(raw[:], buf)
	return raw, nil
}

// ReadSCR reads the SD configuration register and updates the device's
// version, bus width and command support from it.
func (s *Slot) ReadSCR(ctx context.Context) (SCR, error) {
	if err := s.acquire(ctx); err != nil {
		return SCR{}, err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return SCR{}, err
	}
	if err := s.readSCR(ctx, d); err != nil {
		return SCR{}, err
	}
	return d.scr, nil
}

func (s *Slot) readSCR(ctx context.Context, d *Device) error {
	if d.deviceType != DeviceTypeSDMemory && d.deviceType != DeviceTypeCombo {
		return pkg.ErrUnsupportedOperation
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	buf := s.aux[:SCRSize]
	req := hal.NewRequest(ACmdSendSCR, 0, hal.ResponseR1)
	req.SetData(hal.DirectionRead, 1, SCRSize, buf)
	if err := s.dataResult(req, s.appCommand(ctx, d.rca, req)); err != nil {
		return err
	}

	var raw [SCRSize]byte
	copy(raw[:], buf)
	d.scr = DecodeSCR(raw)
	d.specVersion = d.scr.Version()
	d.busWidths = d.scr.BusWidths
	d.cmd23 = d.scr.CMD23
	d.cmd20 = d.scr.CMD20

	pkg.LogDebug(pkg.ComponentCard, "SCR read",
		"slot", s.index,
		"version", d.specVersion,
		"busWidths", d.busWidths,
		"cmd23", d.cmd23)
	return nil
}

// ReadExtCSD reads the MMC extended CSD into buf, which must hold
// ExtCSDSize bytes.
func (s *Slot) ReadExtCSD(ctx context.Context, buf []byte) error {
	if len(buf) < ExtCSDSize {
		return pkg.ErrBufferTooSmall
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	ext, err := s.readExtCSD(ctx, d)
	if err != nil {
		return err
	}
	copy(buf, ext)
	return nil
}

// readExtCSD reads the extended CSD into the aux buffer and refreshes the
// device fields derived from it. The returned slice aliases the aux
// buffer.
func (s *Slot) readExtCSD(ctx context.Context, d *Device) ([]byte, error) {
	if d.deviceType != DeviceTypeMMC {
		return nil, pkg.ErrUnsupportedOperation
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return nil, err
	}

	ext := s.aux[:ExtCSDSize]
	req := hal.NewRequest(CmdSendExtCSD, 0, hal.ResponseR1)
	req.SetData(hal.DirectionRead, 1, ExtCSDSize, ext)
	if err := s.dataResult(req, s.exec(ctx, req)); err != nil {
		return nil, err
	}

	d.extRev = ext[ExtCSDRev]
	d.secCount = uint32(ext[ExtCSDSecCount]) |
		uint32(ext[ExtCSDSecCount+1])<<8 |
		uint32(ext[ExtCSDSecCount+2])<<16 |
		uint32(ext[ExtCSDSecCount+3])<<24
	d.bootSizeMult = ext[ExtCSDBootSizeMult]
	d.cmdqDepth = 0
	if ext[ExtCSDCmdqSupport]&1 != 0 {
		d.cmdqDepth = ext[ExtCSDCmdqDepth]&0x1F + 1
	}
	return ext, nil
}

// SetBusWidth changes the data bus width on both card and host. SD uses
// ACMD6, MMC writes ExtCSD BUS_WIDTH, and SDIO writes the CCCR bus
// interface control register.
func (s *Slot) SetBusWidth(ctx context.Context, width hal.BusWidth) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	return s.setBusWidth(ctx, d, width)
}

func (s *Slot) setBusWidth(ctx context.Context, d *Device, width hal.BusWidth) error {
	if width.Mask() == 0 || d.busWidths&width.Mask() == 0 {
		return pkg.ErrUnsupportedBusWidth
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	switch d.deviceType {
	case DeviceTypeMMC:
		value := uint8(extCSDBusWidth1)
		switch width {
		case hal.BusWidth4:
			value = extCSDBusWidth4
		case hal.BusWidth8:
			value = extCSDBusWidth8
		}
		if s.accessMode == hal.AccessModeHSDDR {
			switch width {
			case hal.BusWidth4:
				value = extCSDBusWidth4DDR
			case hal.BusWidth8:
				value = extCSDBusWidth8DDR
			default:
				return pkg.ErrUnsupportedBusWidth
			}
		}
		// BUS_WIDTH is write-only, so there is no read-back to verify.
		if err := s.mmcSwitch(ctx, d, MmcSwitchWriteByte, ExtCSDBusWidth, value); err != nil {
			return err
		}

	case DeviceTypeSDIO:
		var value uint8
		if width == hal.BusWidth4 {
			value = 0x02
		}
		if _, err := s.ioWriteByte(ctx, 0, cccrBusIfCtrl, value); err != nil {
			return err
		}

	default:
		var arg uint32
		switch width {
		case hal.BusWidth4:
			arg = 2
		case hal.BusWidth8:
			return pkg.ErrUnsupportedBusWidth
		}
		req := hal.NewRequest(ACmdSetBusWidth, arg, hal.ResponseR1)
		if err := s.appCommand(ctx, d.rca, req); err != nil {
			return err
		}
		if err := s.checkR1(req); err != nil {
			return err
		}
	}

	if err := s.host.hal.SetBusWidth(s.index, width); err != nil {
		return err
	}
	s.mutex.Lock()
	s.busWidth = width
	s.mutex.Unlock()

	pkg.LogDebug(pkg.ComponentCard, "bus width set", "slot", s.index, "width", width)
	return nil
}
