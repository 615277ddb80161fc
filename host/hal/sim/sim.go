package sim

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/softsdio/card"
	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/phy"
	"github.com/ardnew/softsdio/pkg"
)

// Command is one command seen on a slot's CMD line.
type Command struct {
	Index uint8
	Arg   uint32
	Auto  bool // Issued by the controller rather than the stack
}

// stream is an open-ended transfer waiting for Continue or Abort.
type stream struct {
	dir      hal.Direction
	blockLen uint32
}

type slot struct {
	card         *card.Card
	writeProtect bool

	clock  uint32
	width  hal.BusWidth
	mode   hal.AccessMode
	faults map[uint8]pkg.Status

	pending *hal.Request
	stream  *stream
	aborts  int
	log     []Command
}

// HostHAL is a simulated host controller. Each slot holds at most one
// emulated card. Commands run synchronously inside CheckBusy, and Delay
// advances a virtual clock instead of sleeping.
type HostHAL struct {
	slots   []*slot
	running bool
	elapsed time.Duration
	mutex   sync.Mutex

	phyReg    uint32
	phyDelays [phy.AccessAddrMask + 1]uint8
}

// New creates a controller with one slot per card. A nil card leaves the
// slot empty.
func New(cards ...*card.Card) *HostHAL {
	h := &HostHAL{}
	for _, c := range cards {
		h.slots = append(h.slots, &slot{card: c, width: hal.BusWidth1})
	}
	return h
}

var (
	_ hal.HostHAL   = (*HostHAL)(nil)
	_ hal.Registers = (*HostHAL)(nil)
)

// Init initializes the simulated controller.
func (h *HostHAL) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentSim, "simulated controller initialized", "slots", len(h.slots))
	return nil
}

// Start powers the slots.
func (h *HostHAL) Start() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.running = true
	return nil
}

// Stop removes slot power. Inserted cards return to idle.
func (h *HostHAL) Stop() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.running = false
	for _, s := range h.slots {
		s.pending = nil
		s.stream = nil
		if s.card != nil {
			s.card.PowerCycle()
		}
	}
	return nil
}

// NumSlots returns the number of slots.
func (h *HostHAL) NumSlots() int {
	return len(h.slots)
}

func (h *HostHAL) slot(n int) (*slot, error) {
	if n < 0 || n >= len(h.slots) {
		return nil, pkg.ErrInvalidParameter
	}
	return h.slots[n], nil
}

// CardInserted reports whether slot holds a card.
func (h *HostHAL) CardInserted(n int) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	return err == nil && s.card != nil
}

// WriteProtected reports the write-protect switch of slot.
func (h *HostHAL) WriteProtected(n int) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	return err == nil && s.writeProtect
}

// SetClock sets the card clock.
func (h *HostHAL) SetClock(n int, hz uint32) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return err
	}
	s.clock = hz
	pkg.LogDebug(pkg.ComponentSim, "clock set", "slot", n, "hz", hz)
	return nil
}

// SetBusWidth sets the host side bus width.
func (h *HostHAL) SetBusWidth(n int, width hal.BusWidth) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return err
	}
	if width.Mask() == 0 {
		return pkg.ErrUnsupportedBusWidth
	}
	s.width = width
	return nil
}

// SetAccessMode sets the host side timing mode.
func (h *HostHAL) SetAccessMode(n int, mode hal.AccessMode) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return err
	}
	s.mode = mode
	return nil
}

// ExecCardCommand accepts req for execution on slot.
func (h *HostHAL) ExecCardCommand(n int, req *hal.Request) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return err
	}
	if !h.running {
		return pkg.ErrInvalidState
	}
	if s.pending != nil {
		return pkg.ErrHostBusy
	}
	req.Status = pkg.ErrCurrentlyExecuted
	s.pending = req
	return nil
}

// CheckBusy runs req to completion and stores its status.
func (h *HostHAL) CheckBusy(ctx context.Context, n int, req *hal.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return err
	}
	if s.pending != req {
		return pkg.ErrInvalidState
	}
	s.pending = nil

	status := s.run(req)
	req.Status = status
	if sub := req.SubRequest; sub != nil && status == pkg.StatusNoError {
		sub.Status = s.run(sub)
	}
	if status != pkg.StatusNoError {
		pkg.LogDebug(pkg.ComponentSim, "request failed",
			"slot", n,
			"cmd", req.Commands[0].Index,
			"status", status)
	}
	return nil
}

// run executes the commands of req in order, stopping at the first
// failure.
func (s *slot) run(req *hal.Request) pkg.Status {
	status := pkg.StatusNoError
	for i := 0; i < req.CmdCount && status == pkg.StatusNoError; i++ {
		status = s.execute(req, &req.Commands[i])
	}
	return status
}

// Abort stops the open-ended transfer on slot with CMD12.
func (h *HostHAL) Abort(n int, synchronous bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return err
	}
	s.aborts++
	if s.pending != nil {
		s.pending.Status = pkg.ErrAborted
		s.pending = nil
	}
	if s.stream != nil {
		s.stream = nil
		if s.card != nil {
			s.issue(12, 0, true)
		}
	}
	pkg.LogDebug(pkg.ComponentSim, "transfer aborted", "slot", n, "synchronous", synchronous)
	return nil
}

// Delay advances the virtual clock by d.
func (h *HostHAL) Delay(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mutex.Lock()
	h.elapsed += d
	h.mutex.Unlock()
	return nil
}

// issue sends one command to the card and records it.
func (s *slot) issue(index uint8, arg uint32, auto bool) card.Response {
	s.log = append(s.log, Command{Index: index, Arg: arg, Auto: auto})
	return s.card.Command(index, arg)
}

func (s *slot) execute(req *hal.Request, cmd *hal.CommandField) pkg.Status {
	if s.card == nil {
		return pkg.ErrCommandTimeout
	}

	if cmd.Flags.Continue {
		if s.stream == nil || s.stream.dir != cmd.Flags.Direction {
			return pkg.ErrInvalidState
		}
		return s.moveData(req, cmd, true)
	}
	if cmd.Flags.Type == hal.CommandTypeAbort {
		s.stream = nil
	}

	if st, ok := s.faults[cmd.Index]; ok {
		delete(s.faults, cmd.Index)
		return st
	}

	if cmd.Flags.AutoCMD23 {
		if r := s.issue(23, cmd.BlockCount, true); r.Status != pkg.StatusNoError ||
			r.Words[0]&card.StatusErrorMask != 0 {
			return pkg.ErrAutoCMD
		}
	}

	r := s.issue(cmd.Index, cmd.Argument, false)
	if cmd.Response != hal.ResponseNone {
		req.Response = r.Words
	}
	if r.Status != pkg.StatusNoError {
		return r.Status
	}
	if cmd.Flags.HwRespCheck && hasErrorBits(cmd.Response, r.Words[0]) {
		return pkg.ErrResponse
	}

	if !cmd.Flags.DataPresent {
		return pkg.StatusNoError
	}
	if !s.card.DataPending() {
		return pkg.ErrDataTimeout
	}

	if cmd.Flags.Infinite {
		s.stream = &stream{dir: cmd.Flags.Direction, blockLen: cmd.BlockLen}
		return s.moveData(req, cmd, true)
	}
	if st := s.moveData(req, cmd, false); st != pkg.StatusNoError {
		return st
	}

	switch {
	case cmd.Flags.AutoCMD12:
		if r := s.issue(12, 0, true); r.Status != pkg.StatusNoError {
			return pkg.ErrAutoCMD
		}
	case cmd.Index == 0 && s.card.DataPending():
		s.issue(0, card.ArgGoIdle, true)
	}
	return pkg.StatusNoError
}

// hasErrorBits reports whether a response carries card error flags.
func hasErrorBits(resp hal.ResponseType, word uint32) bool {
	switch resp {
	case hal.ResponseR1, hal.ResponseR1B:
		return word&card.StatusErrorMask != 0
	case hal.ResponseR5, hal.ResponseR5B:
		return word&(card.R5OutOfRange|card.R5FunctionError) != 0
	}
	return false
}

// moveData runs the data phase of cmd over its scatter list. An open-ended
// transfer moves as many whole blocks as the buffers hold.
func (s *slot) moveData(req *hal.Request, cmd *hal.CommandField, open bool) pkg.Status {
	blockLen := int(cmd.BlockLen)
	if blockLen == 0 {
		return pkg.ErrInvalidParameter
	}
	total := 0
	for _, b := range cmd.Buffers {
		total += len(b)
	}
	blocks := total / blockLen
	if !open {
		blocks = min(blocks, int(cmd.BlockCount))
	}

	req.BufferPos = 0
	req.DataRemaining = uint32(blocks * blockLen)
	tmp := make([]byte, blockLen)
	for i := 0; i < blocks; i++ {
		off := i * blockLen
		var st pkg.Status
		if cmd.Flags.Direction == hal.DirectionWrite {
			gather(cmd.Buffers, off, tmp)
			st = s.card.WriteBlock(tmp)
		} else {
			st = s.card.ReadBlock(tmp)
			scatter(cmd.Buffers, off, tmp)
		}
		if st != pkg.StatusNoError {
			return st
		}
		req.BufferPos = off + blockLen
		req.DataRemaining -= uint32(blockLen)
	}
	return pkg.StatusNoError
}

// gather copies len(dst) bytes starting at offset off of the scatter list.
func gather(bufs [][]byte, off int, dst []byte) {
	for _, b := range bufs {
		if off >= len(b) {
			off -= len(b)
			continue
		}
		n := copy(dst, b[off:])
		dst = dst[n:]
		off = 0
		if len(dst) == 0 {
			return
		}
	}
}

// scatter copies src into the scatter list at offset off.
func scatter(bufs [][]byte, off int, src []byte) {
	for _, b := range bufs {
		if off >= len(b) {
			off -= len(b)
			continue
		}
		n := copy(b[off:], src)
		src = src[n:]
		off = 0
		if len(src) == 0 {
			return
		}
	}
}

// ReadReg implements the PHY access register.
func (h *HostHAL) ReadReg(offset uint32) uint32 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if offset != phy.RegAccess {
		return 0
	}
	return h.phyReg
}

// WriteReg implements the PHY access register. Requests are acknowledged
// immediately; clearing the request bit drops the acknowledge.
func (h *HostHAL) WriteReg(offset uint32, value uint32) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if offset != phy.RegAccess {
		return
	}
	addr := value & phy.AccessAddrMask
	h.phyReg = value &^ phy.AccessAck
	switch {
	case value&phy.AccessWrite != 0:
		h.phyDelays[addr] = uint8(value >> phy.AccessWDataShift)
		h.phyReg |= phy.AccessAck
	case value&phy.AccessRead != 0:
		h.phyReg = h.phyReg&^(0xFF<<phy.AccessRDataShift) |
			uint32(h.phyDelays[addr])<<phy.AccessRDataShift | phy.AccessAck
	}
}
