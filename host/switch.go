package host

import (
	"context"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// ExecCMD6Command issues SD CMD6 with arg and returns the decoded switch
// status. When the card reports a version 1 status block with a target
// function still busy, the command is reissued until the function
// settles or the command timeout runs out.
func (s *Slot) ExecCMD6Command(ctx context.Context, arg uint32) (SwitchStatus, error) {
	if err := s.acquire(ctx); err != nil {
		return SwitchStatus{}, err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return SwitchStatus{}, err
	}
	return s.execCMD6(ctx, d, arg)
}

func (s *Slot) execCMD6(ctx context.Context, d *Device, arg uint32) (SwitchStatus, error) {
	if d.deviceType != DeviceTypeSDMemory && d.deviceType != DeviceTypeCombo {
		return SwitchStatus{}, pkg.ErrUnsupportedOperation
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return SwitchStatus{}, err
	}

	var st SwitchStatus
	err := s.host.WaitFor(ctx, s.host.cfg.CommandTimeout, func() (bool, error) {
		buf := s.aux[:SwitchStatusSize]
		req := hal.NewRequest(CmdSwitch, arg, hal.ResponseR1)
		req.SetData(hal.DirectionRead, 1, SwitchStatusSize, buf)
		if err := s.dataResult(req, s.exec(ctx, req)); err != nil {
			return false, err
		}
		st = DecodeSwitchStatus(buf)
		return !switchBusy(&st, arg), nil
	})
	return st, err
}

// switchBusy reports whether any function requested by arg is still
// busy in st.
func switchBusy(st *SwitchStatus, arg uint32) bool {
	for g := uint8(1); g <= 6; g++ {
		fn := uint8(arg>>(4*(g-1))) & 0xF
		if fn != switchNoChange && st.IsBusy(g, fn) {
			return true
		}
	}
	return false
}

// switchArg builds a CMD6 argument that leaves every group unchanged
// except group, which selects fn.
func switchArg(group, fn uint8, set bool) uint32 {
	shift := 4 * uint32(group-1)
	arg := uint32(0x00FFFFFF)&^(0xF<<shift) | uint32(fn)<<shift
	if set {
		arg |= switchModeSet
	}
	return arg
}

// SwitchFunction selects function fn of SD function group (1-6). The
// function is first checked for support; the switch must then report fn
// as the group's result.
func (s *Slot) SwitchFunction(ctx context.Context, group, fn uint8) error {
	if group < 1 || group > 6 || fn >= switchNoChange {
		return pkg.ErrInvalidParameter
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	return s.switchFunction(ctx, d, group, fn)
}

func (s *Slot) switchFunction(ctx context.Context, d *Device, group, fn uint8) error {
	st, err := s.execCMD6(ctx, d, switchArg(group, fn, false))
	if err != nil {
		return err
	}
	if st.Result[group-1] == switchNoChange {
		return pkg.ErrFunctionUnsupp
	}

	st, err = s.execCMD6(ctx, d, switchArg(group, fn, true))
	if err != nil {
		return err
	}
	if st.Result[group-1] != fn {
		pkg.LogWarn(pkg.ComponentCard, "switch function mismatch",
			"slot", s.index,
			"group", group,
			"want", fn,
			"got", st.Result[group-1])
		return pkg.ErrSwitchError
	}

	pkg.LogDebug(pkg.ComponentCard, "function switched",
		"slot", s.index,
		"group", group,
		"function", fn)
	return nil
}

// SetDriverStrength selects the card output driver type.
func (s *Slot) SetDriverStrength(ctx context.Context, ds DriverStrength) error {
	if ds > DriverStrengthD {
		return pkg.ErrInvalidParameter
	}
	return s.SwitchFunction(ctx, SwitchGroupDriverStrength, uint8(ds))
}

// SetCurrentLimit selects the maximum card current.
func (s *Slot) SetCurrentLimit(ctx context.Context, limit CurrentLimit) error {
	if limit > CurrentLimit800mA {
		return pkg.ErrInvalidParameter
	}
	return s.SwitchFunction(ctx, SwitchGroupCurrentLimit, uint8(limit))
}

// sdAccessFunction maps an access mode to its SD group 1 function.
func sdAccessFunction(mode hal.AccessMode) (uint8, bool) {
	switch mode {
	case hal.AccessModeDefault, hal.AccessModeSDR12:
		return 0, true
	case hal.AccessModeHS, hal.AccessModeSDR25:
		return 1, true
	case hal.AccessModeSDR50:
		return 2, true
	case hal.AccessModeSDR104:
		return 3, true
	case hal.AccessModeDDR50:
		return 4, true
	}
	return 0, false
}

// mmcTiming maps an access mode to its ExtCSD HS_TIMING value.
func mmcTiming(mode hal.AccessMode) (uint8, bool) {
	switch mode {
	case hal.AccessModeDefault:
		return 0, true
	case hal.AccessModeHS, hal.AccessModeHSDDR:
		return 1, true
	case hal.AccessModeHS200:
		return 2, true
	case hal.AccessModeHS400:
		return 3, true
	}
	return 0, false
}

// clockFor returns the card clock used in mode.
func (h *Host) clockFor(mode hal.AccessMode) uint32 {
	switch mode {
	case hal.AccessModeDefault, hal.AccessModeSDR12:
		return h.cfg.TransferClock
	case hal.AccessModeSDR50:
		return 100_000_000
	case hal.AccessModeSDR104:
		return 208_000_000
	case hal.AccessModeHS200, hal.AccessModeHS400:
		return 200_000_000
	}
	return h.cfg.HighSpeedClock
}

// SetHighSpeed switches to high speed timing.
func (s *Slot) SetHighSpeed(ctx context.Context) error {
	return s.SetAccessMode(ctx, hal.AccessModeHS)
}

// SetAccessMode negotiates the timing mode with the card, then retunes
// the host clock and PHY delay lines for it. SD uses function group 1,
// MMC writes ExtCSD HS_TIMING.
func (s *Slot) SetAccessMode(ctx context.Context, mode hal.AccessMode) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	return s.setAccessMode(ctx, d, mode)
}

func (s *Slot) setAccessMode(ctx context.Context, d *Device, mode hal.AccessMode) error {
	switch d.deviceType {
	case DeviceTypeSDMemory, DeviceTypeCombo:
		fn, ok := sdAccessFunction(mode)
		if !ok {
			return pkg.ErrUnsupportedOperation
		}
		if err := s.switchFunction(ctx, d, SwitchGroupAccessMode, fn); err != nil {
			return err
		}

	case DeviceTypeMMC:
		timing, ok := mmcTiming(mode)
		if !ok || d.specVersion < 4 {
			return pkg.ErrUnsupportedOperation
		}
		if mode == hal.AccessModeHSDDR {
			var width uint8
			switch s.busWidth {
			case hal.BusWidth4:
				width = extCSDBusWidth4DDR
			case hal.BusWidth8:
				width = extCSDBusWidth8DDR
			default:
				return pkg.ErrUnsupportedBusWidth
			}
			if err := s.mmcSwitch(ctx, d, MmcSwitchWriteByte, ExtCSDBusWidth, width); err != nil {
				return err
			}
		}
		if err := s.mmcSwitch(ctx, d, MmcSwitchWriteByte, ExtCSDHSTiming, timing); err != nil {
			return err
		}

	default:
		return pkg.ErrUnsupportedOperation
	}

	if err := s.host.hal.SetAccessMode(s.index, mode); err != nil {
		return err
	}
	if err := s.host.hal.SetClock(s.index, s.host.clockFor(mode)); err != nil {
		return err
	}
	if s.host.phy != nil {
		if settings, ok := s.host.cfg.PHY[mode]; ok {
			if err := s.host.phy.Apply(ctx, settings); err != nil {
				return err
			}
		}
	}

	s.mutex.Lock()
	s.accessMode = mode
	s.uhs = mode.IsUHS()
	s.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentCard, "access mode set", "slot", s.index, "mode", mode)
	return nil
}

// MmcSwitch issues MMC CMD6 to modify ExtCSD byte index with value using
// the given access mode, then waits for the card to leave the busy
// state.
func (s *Slot) MmcSwitch(ctx context.Context, access, index, value uint8) error {
	if access > MmcSwitchWriteByte {
		return pkg.ErrInvalidParameter
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	return s.mmcSwitch(ctx, d, access, index, value)
}

func (s *Slot) mmcSwitch(ctx context.Context, d *Device, access, index, value uint8) error {
	if d.deviceType != DeviceTypeMMC {
		return pkg.ErrUnsupportedOperation
	}
	if err := s.selectCard(ctx, d, d.rca); err != nil {
		return err
	}

	arg := uint32(access)<<24 | uint32(index)<<16 | uint32(value)<<8
	req, err := s.command(ctx, CmdSwitch, arg, hal.ResponseR1B)
	if err != nil {
		return err
	}
	if req.Response[0]&CardStatusSwitchError != 0 {
		return pkg.ErrSwitchError
	}
	if err := s.checkR1(req); err != nil {
		return err
	}
	return s.waitReady(ctx, d)
}

// MmcSetExtCsd replaces the bits of ExtCSD byte byteNr selected by mask
// with newValue, then reads the register back. A write the card accepted
// but did not apply is reported as pkg.ErrSettingExtCSDFailed.
func (s *Slot) MmcSetExtCsd(ctx context.Context, byteNr, newValue, mask uint8) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	return s.mmcSetExtCSD(ctx, d, byteNr, newValue, mask)
}

func (s *Slot) mmcSetExtCSD(ctx context.Context, d *Device, byteNr, newValue, mask uint8) error {
	ext, err := s.readExtCSD(ctx, d)
	if err != nil {
		return err
	}
	want := ext[byteNr]&^mask | newValue

	if err := s.mmcSwitch(ctx, d, MmcSwitchWriteByte, byteNr, want); err != nil {
		return err
	}

	ext, err = s.readExtCSD(ctx, d)
	if err != nil {
		return err
	}
	if ext[byteNr] != want {
		pkg.LogWarn(pkg.ComponentCard, "ExtCSD write not applied",
			"slot", s.index,
			"index", byteNr,
			"want", want,
			"got", ext[byteNr])
		return pkg.ErrSettingExtCSDFailed
	}
	return nil
}

// MmcSetBusWidth sets the MMC data bus width through ExtCSD BUS_WIDTH.
func (s *Slot) MmcSetBusWidth(ctx context.Context, width hal.BusWidth) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	if d.deviceType != DeviceTypeMMC {
		return pkg.ErrUnsupportedOperation
	}
	return s.setBusWidth(ctx, d, width)
}

// MmcEnableCommandQueue turns the MMC command queue on or off.
func (s *Slot) MmcEnableCommandQueue(ctx context.Context, enable bool) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return err
	}
	if d.deviceType != DeviceTypeMMC || d.cmdqDepth == 0 {
		return pkg.ErrUnsupportedOperation
	}

	var value uint8
	if enable {
		value = 1
	}
	if err := s.mmcSetExtCSD(ctx, d, ExtCSDCmdqModeEn, value, 0x01); err != nil {
		return err
	}

	s.mutex.Lock()
	s.cmdq = CommandQueue{Enabled: enable}
	if enable {
		s.cmdq.Depth = d.cmdqDepth
		for i := range min(int(d.cmdqDepth), CmdQueueTasks) {
			s.cmdq.Tasks[i] = TaskFree
		}
	}
	s.mutex.Unlock()

	pkg.LogInfo(pkg.ComponentCard, "command queue configured",
		"slot", s.index,
		"enabled", enable,
		"depth", d.cmdqDepth)
	return nil
}
