package host

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/semaphore"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// CommandQueue is the MMC command queue configuration of a slot. Tasks
// holds one entry per task ID the controller can address.
type CommandQueue struct {
	Enabled bool
	Depth   uint8
	Tasks   [CmdQueueTasks]TaskState
}

// FreeTasks returns the number of task IDs ready for use.
func (q CommandQueue) FreeTasks() int {
	n := 0
	for _, t := range q.Tasks {
		if t == TaskFree {
			n++
		}
	}
	return n
}

// Slot is one card slot of the host controller.
//
// Every exported operation holds the slot's ownership token for its whole
// protocol sequence, so multi-command sequences (switch check then set,
// erase start/end/execute) never interleave with another caller. The
// non-blocking and open-ended transfer operations keep the token until
// WaitTransfer or InfDataXferFinish.
//
// Operations on a nil *Slot fail with ErrInvalidParameter. The accessors
// require a valid slot.
type Slot struct {
	host  *Host
	index int
	sem   *semaphore.Weighted

	// Guards the fields read by accessors from other goroutines.
	mutex sync.Mutex

	state   SlotState
	current *hal.Request

	devices [MaxDevicesPerSlot]Device
	device  *Device

	busWidth   hal.BusWidth
	accessMode hal.AccessMode
	uhs        bool

	// Set when Host.Stop aborted the outstanding transfer, until its
	// owner observes it.
	abort bool

	// Transfers that outlive the call that started them.
	pending  *hal.Request
	infinite *hal.Request

	// Scratch area for register reads. Contents do not survive across
	// operations.
	aux [AuxBuffSize]byte

	cmdq CommandQueue
}

func newSlot(h *Host, index int) *Slot {
	s := &Slot{
		host:     h,
		index:    index,
		sem:      semaphore.NewWeighted(1),
		busWidth: hal.BusWidth1,
	}
	for i := range s.devices {
		s.devices[i].slot = s
	}
	s.device = &s.devices[0]
	return s
}

// Index returns the slot number.
func (s *Slot) Index() int {
	return s.index
}

// State returns the command engine state.
func (s *Slot) State() SlotState {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

// Device returns the slot's current device. It is never nil; check its
// State to see whether a card is attached.
func (s *Slot) Device() *Device {
	return s.device
}

// BusWidth returns the negotiated data bus width.
func (s *Slot) BusWidth() hal.BusWidth {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.busWidth
}

// AccessMode returns the negotiated timing mode.
func (s *Slot) AccessMode() hal.AccessMode {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.accessMode
}

// CommandQueue returns a copy of the command queue configuration.
func (s *Slot) CommandQueue() CommandQueue {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.cmdq
}

// CardInserted reports whether the slot holds a card.
func (s *Slot) CardInserted() bool {
	return s.host.hal.CardInserted(s.index)
}

// acquire takes the slot ownership token.
func (s *Slot) acquire(ctx context.Context) error {
	if s == nil {
		return pkg.ErrInvalidParameter
	}
	if !s.host.IsRunning() {
		return pkg.ErrInvalidState
	}
	return s.sem.Acquire(ctx, 1)
}

// release returns the slot ownership token.
func (s *Slot) release() {
	s.sem.Release(1)
}

// shutdown takes the slot back from its owner and drops all per-card
// state. A transfer left running by DataXferNonBlock or InfXferStart is
// aborted and its token reclaimed; any other owner is waited for.
func (s *Slot) shutdown() {
	b := s.host.newBackoff()
	for !s.reclaim() && !s.sem.TryAcquire(1) {
		time.Sleep(b.Duration())
	}
	s.forget()
	s.release()
}

// reclaim aborts an outstanding transfer. It reports whether one was
// found, in which case the token it held now belongs to the caller.
func (s *Slot) reclaim() bool {
	s.mutex.Lock()
	pending, inf := s.pending, s.infinite
	s.pending, s.infinite = nil, nil
	found := pending != nil || inf != nil
	if found {
		s.abort = true
	}
	s.mutex.Unlock()
	if !found {
		return false
	}

	if err := s.host.hal.Abort(s.index, true); err != nil {
		pkg.LogWarn(pkg.ComponentSlot, "abort failed", "slot", s.index, "error", err)
	}
	pkg.LogWarn(pkg.ComponentSlot, "outstanding transfer aborted", "slot", s.index)
	return true
}

// orphaned returns the error for an operation on a transfer that is not
// outstanding. s.mutex must be held; consume clears the abort mark.
func (s *Slot) orphaned(consume bool) error {
	if !s.abort {
		return pkg.ErrInvalidState
	}
	if consume {
		s.abort = false
	}
	return pkg.ErrAborted
}

// forget drops all per-card state. The caller holds the token.
func (s *Slot) forget() {
	s.mutex.Lock()
	s.pending = nil
	s.infinite = nil
	s.current = nil
	s.state = SlotStateIdle
	s.busWidth = hal.BusWidth1
	s.accessMode = hal.AccessModeDefault
	s.uhs = false
	s.cmdq = CommandQueue{}
	s.mutex.Unlock()

	for i := range s.devices {
		d := &s.devices[i]
		s.host.releaseMemoryInfo(d.memory)
		d.reset()
	}
}

// begin marks req in flight.
func (s *Slot) begin(req *hal.Request) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.state != SlotStateIdle {
		return pkg.ErrHostBusy
	}
	s.state = SlotStateCommandInFlight
	s.current = req
	return nil
}

// end marks the slot idle.
func (s *Slot) end() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.state = SlotStateIdle
	s.current = nil
}

// submit hands req to the controller and leaves it in flight.
func (s *Slot) submit(req *hal.Request) error {
	if err := s.begin(req); err != nil {
		return err
	}
	if err := s.host.hal.ExecCardCommand(s.index, req); err != nil {
		s.end()
		return err
	}
	return nil
}

// complete waits for the in-flight request and returns its status.
func (s *Slot) complete(ctx context.Context, req *hal.Request) error {
	defer s.end()
	if err := s.host.hal.CheckBusy(ctx, s.index, req); err != nil {
		return err
	}
	return req.Status.Err()
}

// exec submits req and blocks until it completes.
func (s *Slot) exec(ctx context.Context, req *hal.Request) error {
	if err := s.submit(req); err != nil {
		return err
	}
	err := s.complete(ctx, req)
	if err != nil {
		pkg.LogDebug(pkg.ComponentSlot, "command failed",
			"slot", s.index,
			pkg.CommandAttr(req.Command().Index, req.Command().Argument),
			"error", err)
	}
	return err
}

// command executes a single command without data.
func (s *Slot) command(ctx context.Context, index uint8, arg uint32, resp hal.ResponseType) (*hal.Request, error) {
	req := hal.NewRequest(index, arg, resp)
	return req, s.exec(ctx, req)
}

// commandR1 executes a command and checks the card status it returns.
func (s *Slot) commandR1(ctx context.Context, index uint8, arg uint32, resp hal.ResponseType) (*hal.Request, error) {
	req, err := s.command(ctx, index, arg, resp)
	if err != nil {
		return req, err
	}
	return req, s.checkR1(req)
}

// appCommand issues CMD55 followed by the application command index.
func (s *Slot) appCommand(ctx context.Context, rca uint16, req *hal.Request) error {
	if _, err := s.command(ctx, CmdAppCmd, uint32(rca)<<16, hal.ResponseR1); err != nil {
		return err
	}
	return s.exec(ctx, req)
}

// checkR1 inspects the card status in an R1 response.
func (s *Slot) checkR1(req *hal.Request) error {
	cmd := req.Command()
	if cmd.Response != hal.ResponseR1 && cmd.Response != hal.ResponseR1B {
		return nil
	}
	status := req.Response[0]
	mask := uint32(CardStatusErrorMask)
	if s.host.cfg.BusMode == hal.BusModeSPI {
		mask = spiR1ErrorMask
	}
	if status&mask == 0 {
		return nil
	}
	pkg.LogDebug(pkg.ComponentSlot, "card status error",
		"slot", s.index,
		pkg.CommandAttr(cmd.Index, cmd.Argument),
		"status", fmt.Sprintf("0x%08X", status))
	return pkg.ErrCardStatus
}

// dataResult interprets the outcome of a data-bearing request. A card
// that refuses the command leaves no data phase for the controller, so
// the card status explains a failed request better than the controller
// status does.
func (s *Slot) dataResult(req *hal.Request, err error) error {
	if err == nil {
		return s.checkR1(req)
	}
	if req.Response[0]&CardStatusCardIsLocked != 0 && s.host.cfg.BusMode == hal.BusModeSD {
		return pkg.ErrCardLocked
	}
	if rerr := s.checkR1(req); rerr != nil {
		return rerr
	}
	return err
}

// newBackoff returns the polling schedule of the host.
func (h *Host) newBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    h.cfg.PollMin,
		Max:    h.cfg.PollMax,
		Factor: 2,
	}
}

// waitReady polls CMD13 until the card is back in the transfer state and
// ready for data. A SWITCH_ERROR in the status fails the wait.
func (s *Slot) waitReady(ctx context.Context, d *Device) error {
	if s.host.cfg.BusMode == hal.BusModeSPI {
		return nil
	}
	return s.host.WaitFor(ctx, s.host.cfg.CommandTimeout, func() (bool, error) {
		status, err := s.readCardStatus(ctx, d)
		if err != nil {
			return false, err
		}
		if status&CardStatusSwitchError != 0 {
			return false, pkg.ErrSwitchError
		}
		state := (status >> CardStatusStateShift) & 0xF
		return state == CardStateTransfer && status&CardStatusReadyForData != 0, nil
	})
}

// readCardStatus issues CMD13 and returns the raw card status.
func (s *Slot) readCardStatus(ctx context.Context, d *Device) (uint32, error) {
	req, err := s.command(ctx, CmdSendStatus, uint32(d.rca)<<16, hal.ResponseR1)
	if err != nil {
		return 0, err
	}
	return req.Response[0], nil
}

// ReadCardStatus returns the card status word (CMD13).
func (s *Slot) ReadCardStatus(ctx context.Context) (uint32, error) {
	if err := s.acquire(ctx); err != nil {
		return 0, err
	}
	defer s.release()

	d, err := s.attachedDevice()
	if err != nil {
		return 0, err
	}
	return s.readCardStatus(ctx, d)
}

// presentDevice returns the slot's device if a card is inserted,
// whatever its lifecycle state.
func (s *Slot) presentDevice() (*Device, error) {
	if !s.host.hal.CardInserted(s.index) {
		if s.device.State() == DeviceStateAttached {
			s.device.transition(DeviceStateRemoved)
		}
		return nil, pkg.ErrCardIsNotInserted
	}
	return s.device, nil
}

// attachedDevice returns the slot's device if it is inserted and
// attached.
func (s *Slot) attachedDevice() (*Device, error) {
	d, err := s.presentDevice()
	if err != nil {
		return nil, err
	}
	if d.State() != DeviceStateAttached {
		return nil, pkg.ErrCardIsNotAttached
	}
	return d, nil
}

// memoryDevice returns the attached device if it has an initialized
// memory portion.
func (s *Slot) memoryDevice() (*Device, error) {
	d, err := s.attachedDevice()
	if err != nil {
		return nil, err
	}
	if !d.deviceType.HasMemory() {
		return nil, pkg.ErrUnsupportedOperation
	}
	if d.memory == nil {
		return nil, pkg.ErrCardIsNotAttached
	}
	return d, nil
}
