package host

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/softsdio/card"
	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/host/hal/sim"
	"github.com/ardnew/softsdio/pkg"
)

// =============================================================================
// Mock HAL
// =============================================================================

// mockHAL is a scripted controller. Every command is answered by respond
// and recorded.
type mockHAL struct {
	mu       sync.Mutex
	slots    int
	inserted bool
	running  bool
	initErr  error
	respond  func(cmd *hal.CommandField) ([4]uint32, pkg.Status)
	commands []hal.CommandField
	elapsed  time.Duration
	aborts   int
}

var _ hal.HostHAL = (*mockHAL)(nil)

func newMockHAL() *mockHAL {
	return &mockHAL{slots: 1, inserted: true}
}

func (m *mockHAL) Init(ctx context.Context) error { return m.initErr }

func (m *mockHAL) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

func (m *mockHAL) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

func (m *mockHAL) NumSlots() int                                     { return m.slots }
func (m *mockHAL) CardInserted(slot int) bool                        { return m.inserted }
func (m *mockHAL) WriteProtected(slot int) bool                      { return false }
func (m *mockHAL) SetClock(slot int, hz uint32) error                { return nil }
func (m *mockHAL) SetBusWidth(slot int, width hal.BusWidth) error    { return nil }
func (m *mockHAL) SetAccessMode(slot int, mode hal.AccessMode) error { return nil }

func (m *mockHAL) ExecCardCommand(slot int, req *hal.Request) error {
	req.Status = pkg.ErrCurrentlyExecuted
	return nil
}

func (m *mockHAL) CheckBusy(ctx context.Context, slot int, req *hal.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := req.Command()
	m.commands = append(m.commands, *cmd)
	if m.respond == nil {
		req.Status = pkg.ErrCommandTimeout
		return nil
	}
	resp, status := m.respond(cmd)
	if cmd.Response != hal.ResponseNone {
		req.Response = resp
	}
	req.Status = status
	return nil
}

func (m *mockHAL) Abort(slot int, synchronous bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborts++
	return nil
}

func (m *mockHAL) Delay(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed += d
	return nil
}

func (m *mockHAL) indices() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint8, len(m.commands))
	for i, c := range m.commands {
		out[i] = c.Index
	}
	return out
}

// script answers commands by index; unknown commands time out.
func script(table map[uint8]func(arg uint32) ([4]uint32, pkg.Status)) func(*hal.CommandField) ([4]uint32, pkg.Status) {
	return func(cmd *hal.CommandField) ([4]uint32, pkg.Status) {
		if f, ok := table[cmd.Index]; ok {
			return f(cmd.Argument)
		}
		return [4]uint32{}, pkg.ErrCommandTimeout
	}
}

func word(w uint32) func(uint32) ([4]uint32, pkg.Status) {
	return func(uint32) ([4]uint32, pkg.Status) {
		return [4]uint32{w}, pkg.StatusNoError
	}
}

func newMockHost(t *testing.T, m *mockHAL, cfg Config) *Host {
	t.Helper()
	h := New(m, cfg)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	t.Cleanup(func() { h.Stop() })
	return h
}

// =============================================================================
// Simulator Helpers
// =============================================================================

func newSimHost(t *testing.T, cfg Config, cards ...*card.Card) (*Host, *sim.HostHAL) {
	t.Helper()
	ctrl := sim.New(cards...)
	h := New(ctrl, cfg)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	t.Cleanup(func() { h.Stop() })
	return h, ctrl
}

// attachSim starts a host over one emulated card and attaches it. The
// command log is cleared before returning.
func attachSim(t *testing.T, cfg Config, cc card.Config) (*Slot, *sim.HostHAL, *card.Card) {
	t.Helper()
	c := card.New(cc)
	h, ctrl := newSimHost(t, cfg, c)
	s := h.Slot(0)
	if _, err := s.AttachCard(context.Background()); err != nil {
		t.Fatalf("AttachCard() = %v", err)
	}
	ctrl.ClearLog(0)
	return s, ctrl, c
}

func countIndex(indices []uint8, index uint8) int {
	n := 0
	for _, i := range indices {
		if i == index {
			n++
		}
	}
	return n
}

func equalIndices(a, b []uint8) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// pattern returns n bytes of a repeating, non-block-aligned sequence.
func pattern(n int, seed byte) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i%251) + seed
	}
	return buf
}

// =============================================================================
// Host Lifecycle Tests
// =============================================================================

func TestNew(t *testing.T) {
	m := newMockHAL()
	m.slots = 3
	h := New(m, Config{})

	if h.NumSlots() != 3 {
		t.Errorf("NumSlots() = %d, want 3", h.NumSlots())
	}
	if h.IsRunning() {
		t.Error("host running before Start")
	}
	if h.phy != nil {
		t.Error("PHY bound for a controller without registers")
	}

	cfg := h.Config()
	def := DefaultConfig()
	if cfg.CommandTimeout != def.CommandTimeout {
		t.Errorf("CommandTimeout = %v, want %v", cfg.CommandTimeout, def.CommandTimeout)
	}
	if cfg.IdentClock != def.IdentClock || cfg.TransferClock != def.TransferClock {
		t.Errorf("clocks = %d/%d", cfg.IdentClock, cfg.TransferClock)
	}
	if cfg.BusWidth != hal.BusWidth1 {
		t.Errorf("BusWidth = %d, want 1", cfg.BusWidth)
	}

	for i := 0; i < 3; i++ {
		s := h.Slot(i)
		if s == nil || s.Index() != i {
			t.Fatalf("Slot(%d) = %v", i, s)
		}
		if s.Device().State() != DeviceStateUnattached {
			t.Errorf("slot %d device state = %v", i, s.Device().State())
		}
	}
	if h.Slot(-1) != nil || h.Slot(3) != nil {
		t.Error("Slot() out of range returned a slot")
	}
}

func TestSlot_OutOfRange(t *testing.T) {
	h := newMockHost(t, newMockHAL(), DefaultConfig())
	s := h.Slot(h.NumSlots())
	ctx := context.Background()

	ops := map[string]func() error{
		"AttachCard": func() error {
			_, err := s.AttachCard(ctx)
			return err
		},
		"ReadCardStatus": func() error {
			_, err := s.ReadCardStatus(ctx)
			return err
		},
		"DataXfer": func() error {
			return s.DataXfer(ctx, 0, make([]byte, DefaultBlockSize), hal.DirectionRead)
		},
		"WaitTransfer":      func() error { return s.WaitTransfer(ctx) },
		"InfXferContinue":   func() error { return s.InfXferContinue(ctx, make([]byte, DefaultBlockSize)) },
		"InfDataXferFinish": func() error { return s.InfDataXferFinish(ctx) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("%s() on nil slot = %v, want %v", name, err, pkg.ErrInvalidParameter)
		}
	}
}

func TestNew_PHY(t *testing.T) {
	h := New(sim.New(nil), DefaultConfig())
	if h.phy == nil {
		t.Error("PHY not bound for a controller with registers")
	}
}

func TestHost_StartStop(t *testing.T) {
	m := newMockHAL()
	h := New(m, DefaultConfig())
	ctx := context.Background()

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if !h.IsRunning() || !m.running {
		t.Error("host not running after Start")
	}
	if err := h.Start(ctx); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("second Start() = %v, want %v", err, pkg.ErrInvalidState)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if h.IsRunning() || m.running {
		t.Error("host running after Stop")
	}
	if err := h.Stop(); err != nil {
		t.Errorf("second Stop() = %v", err)
	}
}

func TestHost_StartInitError(t *testing.T) {
	m := newMockHAL()
	m.initErr = pkg.ErrHostBusy
	h := New(m, DefaultConfig())

	if err := h.Start(context.Background()); !errors.Is(err, pkg.ErrHostBusy) {
		t.Errorf("Start() = %v, want %v", err, pkg.ErrHostBusy)
	}
	if h.IsRunning() {
		t.Error("host running after failed Start")
	}
}

func TestSlot_RequiresRunningHost(t *testing.T) {
	h := New(newMockHAL(), DefaultConfig())
	s := h.Slot(0)
	ctx := context.Background()

	if _, err := s.AttachCard(ctx); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("AttachCard() = %v, want %v", err, pkg.ErrInvalidState)
	}
	if err := s.ResetCard(ctx); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("ResetCard() = %v, want %v", err, pkg.ErrInvalidState)
	}
}

func TestHost_StopDetaches(t *testing.T) {
	s, _, _ := attachSim(t, DefaultConfig(), card.Config{Type: card.TypeSD})
	h := s.host

	if h.memoryInUse() != 1 {
		t.Fatalf("memoryInUse() = %d, want 1", h.memoryInUse())
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if s.Device().State() != DeviceStateUnattached {
		t.Errorf("device state = %v, want Unattached", s.Device().State())
	}
	if h.memoryInUse() != 0 {
		t.Errorf("memoryInUse() = %d after Stop, want 0", h.memoryInUse())
	}
	if _, err := s.ReadCardStatus(context.Background()); !errors.Is(err, pkg.ErrInvalidState) {
		t.Errorf("ReadCardStatus() = %v, want %v", err, pkg.ErrInvalidState)
	}
}

// =============================================================================
// Polling Tests
// =============================================================================

func TestHost_WaitFor(t *testing.T) {
	m := newMockHAL()
	h := newMockHost(t, m, DefaultConfig())
	ctx := context.Background()

	polls := 0
	err := h.WaitFor(ctx, time.Second, func() (bool, error) {
		polls++
		return polls == 4, nil
	})
	if err != nil {
		t.Fatalf("WaitFor() = %v", err)
	}
	if polls != 4 {
		t.Errorf("polls = %d, want 4", polls)
	}
	if m.elapsed == 0 {
		t.Error("WaitFor did not delay between polls")
	}
}

func TestHost_WaitForTimeout(t *testing.T) {
	m := newMockHAL()
	h := newMockHost(t, m, DefaultConfig())

	err := h.WaitFor(context.Background(), time.Millisecond, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("WaitFor() = %v, want %v", err, pkg.ErrTimeout)
	}
	if m.elapsed < time.Millisecond {
		t.Errorf("elapsed = %v, want at least 1ms", m.elapsed)
	}
}

func TestHost_WaitForError(t *testing.T) {
	h := newMockHost(t, newMockHAL(), DefaultConfig())

	err := h.WaitFor(context.Background(), time.Second, func() (bool, error) {
		return false, pkg.ErrCommandCRC
	})
	if !errors.Is(err, pkg.ErrCommandCRC) {
		t.Errorf("WaitFor() = %v, want %v", err, pkg.ErrCommandCRC)
	}
}

func TestHost_WaitForCancelled(t *testing.T) {
	h := newMockHost(t, newMockHAL(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.WaitFor(ctx, time.Second, func() (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitFor() = %v, want %v", err, context.Canceled)
	}
}

// =============================================================================
// Resource Tests
// =============================================================================

func TestHost_AllocateRCA(t *testing.T) {
	h := New(newMockHAL(), DefaultConfig())

	for _, want := range []uint16{0x1000, 0x0FFF, 0x0FFE} {
		if got := h.allocateRCA(); got != want {
			t.Errorf("allocateRCA() = 0x%04X, want 0x%04X", got, want)
		}
	}
}

func TestHost_MemoryArena(t *testing.T) {
	m := newMockHAL()
	m.slots = 2
	h := New(m, DefaultConfig())

	a, err := h.acquireMemoryInfo()
	if err != nil {
		t.Fatalf("acquireMemoryInfo() = %v", err)
	}
	b, err := h.acquireMemoryInfo()
	if err != nil {
		t.Fatalf("acquireMemoryInfo() = %v", err)
	}
	if a == b {
		t.Error("arena handed out the same entry twice")
	}
	if _, err := h.acquireMemoryInfo(); !errors.Is(err, pkg.ErrMemAlloc) {
		t.Errorf("acquireMemoryInfo() on full arena = %v, want %v", err, pkg.ErrMemAlloc)
	}
	if h.memoryInUse() != 2 {
		t.Errorf("memoryInUse() = %d, want 2", h.memoryInUse())
	}

	a.DeviceSizeMB = 99
	h.releaseMemoryInfo(a)
	h.releaseMemoryInfo(nil)
	h.releaseMemoryInfo(&MemoryCardInfo{})
	if h.memoryInUse() != 1 {
		t.Errorf("memoryInUse() = %d, want 1", h.memoryInUse())
	}

	c, err := h.acquireMemoryInfo()
	if err != nil {
		t.Fatalf("acquireMemoryInfo() after release = %v", err)
	}
	if c.DeviceSizeMB != 0 {
		t.Error("reused entry was not cleared")
	}
}

// =============================================================================
// Device State Tests
// =============================================================================

func TestDevice_Transitions(t *testing.T) {
	tests := []struct {
		from, to DeviceState
		ok       bool
	}{
		{DeviceStateUnattached, DeviceStateAttached, true},
		{DeviceStateUnattached, DeviceStateRemoved, false},
		{DeviceStateUnattached, DeviceStateUnattached, false},
		{DeviceStateAttached, DeviceStateUnattached, true},
		{DeviceStateAttached, DeviceStateRemoved, true},
		{DeviceStateAttached, DeviceStateAttached, false},
		{DeviceStateRemoved, DeviceStateUnattached, true},
		{DeviceStateRemoved, DeviceStateAttached, false},
	}

	h := New(newMockHAL(), DefaultConfig())
	for _, tt := range tests {
		d := &Device{slot: h.Slot(0), state: tt.from}
		err := d.transition(tt.to)
		if tt.ok && err != nil {
			t.Errorf("%v -> %v = %v, want nil", tt.from, tt.to, err)
		}
		if !tt.ok && !errors.Is(err, pkg.ErrInvalidState) {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, err, pkg.ErrInvalidState)
		}
		if !tt.ok && d.State() != tt.from {
			t.Errorf("rejected transition changed state to %v", d.State())
		}
	}
}

func TestDevice_ResetUnderReaders(t *testing.T) {
	h := New(newMockHAL(), DefaultConfig())
	s := h.Slot(0)
	d := s.Device()
	d.deviceType = DeviceTypeSDMemory
	d.rca = 0x1234
	d.memory = &MemoryCardInfo{BlockSize: DefaultBlockSize}
	d.state = DeviceStateAttached

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = d.State()
				}
			}
		}()
	}
	d.reset()
	close(done)
	wg.Wait()

	if d.State() != DeviceStateUnattached {
		t.Errorf("State() = %v, want Unattached", d.State())
	}
	if d.Slot() != s {
		t.Error("reset dropped the slot link")
	}
	if d.Type() != DeviceTypeNone || d.RCA() != 0 || d.MemoryInfo() != nil {
		t.Errorf("reset left type=%v rca=0x%04X memory=%v", d.Type(), d.RCA(), d.MemoryInfo())
	}
	// The lock still works after the reset.
	if err := d.transition(DeviceStateAttached); err != nil {
		t.Errorf("transition() after reset = %v", err)
	}
}

func TestDevice_BlockAddress(t *testing.T) {
	d := &Device{capacity: CapacityNormal}
	if got := d.blockAddress(3); got != 3*DefaultBlockSize {
		t.Errorf("byte addressed blockAddress(3) = %d", got)
	}
	d.capacity = CapacityHigh
	if got := d.blockAddress(3); got != 3 {
		t.Errorf("block addressed blockAddress(3) = %d", got)
	}
}

// =============================================================================
// Scripted Command Tests
// =============================================================================

// cidFixture is an R2 response as the controller stores it: word 3 holds
// register bits 127:104, so the manufacturer ID is bits 23:16 of word 3.
var cidFixture = [4]uint32{0x12345600, 0x00ABCDEF, 0x5344534D, 0x00275344}

func TestSlot_ReadCIDFixture(t *testing.T) {
	m := newMockHAL()
	m.respond = script(map[uint8]func(uint32) ([4]uint32, pkg.Status){
		CmdAllSendCID: func(uint32) ([4]uint32, pkg.Status) {
			return cidFixture, pkg.StatusNoError
		},
	})
	h := newMockHost(t, m, DefaultConfig())

	cid, err := h.Slot(0).ReadCID(context.Background())
	if err != nil {
		t.Fatalf("ReadCID() = %v", err)
	}
	if want := uint8(cidFixture[3] >> 16); cid.ManufacturerID != want {
		t.Errorf("ManufacturerID = 0x%02X, want 0x%02X", cid.ManufacturerID, want)
	}
	if cid.OEMID != 0x5344 {
		t.Errorf("OEMID = 0x%04X, want 0x5344", cid.OEMID)
	}
	if cid.Raw != hal.UnpackR2(cidFixture) {
		t.Error("Raw does not match the response")
	}
	if !equalIndices(m.indices(), []uint8{CmdAllSendCID}) {
		t.Errorf("commands = %v, want [2]", m.indices())
	}
	if m.commands[0].Argument != 0 || m.commands[0].Response != hal.ResponseR2 {
		t.Errorf("CMD2 sent as %+v", m.commands[0])
	}
}

func TestSlot_ReadRCAFixture(t *testing.T) {
	m := newMockHAL()
	m.respond = script(map[uint8]func(uint32) ([4]uint32, pkg.Status){
		CmdSendRelativeAddr: word(0xB3680500),
	})
	h := newMockHost(t, m, DefaultConfig())

	rca, err := h.Slot(0).ReadRCA(context.Background())
	if err != nil {
		t.Fatalf("ReadRCA() = %v", err)
	}
	if rca != 0xB368 {
		t.Errorf("ReadRCA() = 0x%04X, want 0xB368", rca)
	}
	if h.Slot(0).Device().RCA() != 0xB368 {
		t.Errorf("device RCA = 0x%04X", h.Slot(0).Device().RCA())
	}
}

func TestSlot_ReadRCAStatusError(t *testing.T) {
	m := newMockHAL()
	m.respond = script(map[uint8]func(uint32) ([4]uint32, pkg.Status){
		CmdSendRelativeAddr: word(0xB3688500), // COM_CRC_ERROR
	})
	h := newMockHost(t, m, DefaultConfig())

	if _, err := h.Slot(0).ReadRCA(context.Background()); !errors.Is(err, pkg.ErrCardStatus) {
		t.Errorf("ReadRCA() = %v, want %v", err, pkg.ErrCardStatus)
	}
}

func TestSlot_ReadRCAMMCErrors(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		status pkg.Status
		err    error
	}{
		{"bad response CRC", context.Background(), pkg.ErrCommandCRC, nil},
		{"no response", context.Background(), pkg.ErrCommandTimeout, nil},
		{"line inhibited", context.Background(), pkg.ErrHostBusy, pkg.ErrHostBusy},
		{"cancelled", cancelled, pkg.StatusNoError, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMockHAL()
			m.respond = func(*hal.CommandField) ([4]uint32, pkg.Status) {
				return [4]uint32{}, tt.status
			}
			s := newMockHost(t, m, DefaultConfig()).Slot(0)
			d := s.device
			d.deviceType = DeviceTypeMMC

			err := s.readRCA(tt.ctx, d)
			if tt.err == nil {
				if err != nil {
					t.Fatalf("readRCA() = %v, want nil", err)
				}
				if d.rca == 0 {
					t.Error("RCA not assigned")
				}
				return
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("readRCA() = %v, want %v", err, tt.err)
			}
			if d.rca != 0 {
				t.Errorf("RCA = 0x%04X after failure, want 0", d.rca)
			}
		})
	}
}

func TestSlot_ZeroLengthNoCommands(t *testing.T) {
	m := newMockHAL()
	m.respond = script(nil)
	h := newMockHost(t, m, DefaultConfig())
	s := h.Slot(0)
	ctx := context.Background()

	if err := s.DataErase(ctx, 100, 0); err != nil {
		t.Errorf("DataErase(100, 0) = %v", err)
	}
	if err := s.DataXfer(ctx, 0, nil, hal.DirectionRead); err != nil {
		t.Errorf("DataXfer(nil) = %v", err)
	}
	if err := s.DataXfer2(ctx, 0, 0, [][]byte{make([]byte, 512)}, hal.DirectionWrite); err != nil {
		t.Errorf("DataXfer2(count 0) = %v", err)
	}
	if err := s.DataXfer2(ctx, 0, 4, nil, hal.DirectionRead); err != nil {
		t.Errorf("DataXfer2(no buffers) = %v", err)
	}
	if err := s.DataXferNonBlock(ctx, 0, 0, nil, hal.DirectionRead); err != nil {
		t.Errorf("DataXferNonBlock(count 0) = %v", err)
	}
	if err := s.PartialDataTransfer(ctx, 0, nil, hal.DirectionRead); err != nil {
		t.Errorf("PartialDataTransfer(nil) = %v", err)
	}

	if n := len(m.indices()); n != 0 {
		t.Errorf("%d commands issued, want 0", n)
	}
}

func TestSlot_PartialTooLarge(t *testing.T) {
	for _, inserted := range []bool{true, false} {
		m := newMockHAL()
		m.inserted = inserted
		h := newMockHost(t, m, DefaultConfig())

		err := h.Slot(0).PartialDataTransfer(context.Background(), 0, make([]byte, 600), hal.DirectionRead)
		if !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("inserted=%v: PartialDataTransfer(600) = %v, want %v",
				inserted, err, pkg.ErrInvalidParameter)
		}
		if n := len(m.indices()); n != 0 {
			t.Errorf("inserted=%v: %d commands issued, want 0", inserted, n)
		}
	}
}

func TestAttachCard_CheckPattern(t *testing.T) {
	m := newMockHAL()
	m.respond = script(map[uint8]func(uint32) ([4]uint32, pkg.Status){
		CmdGoIdleState: word(0),
		CmdSendIfCond:  word(0x1AB),
	})
	h := newMockHost(t, m, DefaultConfig())
	s := h.Slot(0)

	if _, err := s.AttachCard(context.Background()); !errors.Is(err, pkg.ErrCheckPattern) {
		t.Errorf("AttachCard() = %v, want %v", err, pkg.ErrCheckPattern)
	}
	if s.Device().State() != DeviceStateUnattached {
		t.Errorf("device state = %v, want Unattached", s.Device().State())
	}
	if h.memoryInUse() != 0 {
		t.Errorf("memoryInUse() = %d, want 0", h.memoryInUse())
	}
}

func TestAttachCard_NoVoltageWindow(t *testing.T) {
	m := newMockHAL()
	m.respond = script(map[uint8]func(uint32) ([4]uint32, pkg.Status){
		CmdGoIdleState:   word(0),
		CmdAppCmd:        word(CardStatusAppCmd),
		ACmdSDSendOpCond: word(0),
	})
	h := newMockHost(t, m, DefaultConfig())

	if _, err := h.Slot(0).AttachCard(context.Background()); !errors.Is(err, pkg.ErrCardUnusable) {
		t.Errorf("AttachCard() = %v, want %v", err, pkg.ErrCardUnusable)
	}
}

func TestAttachCard_HardwareError(t *testing.T) {
	m := newMockHAL()
	m.respond = func(cmd *hal.CommandField) ([4]uint32, pkg.Status) {
		return [4]uint32{}, pkg.ErrCommandCRC
	}
	h := newMockHost(t, m, DefaultConfig())

	_, err := h.Slot(0).AttachCard(context.Background())
	if !errors.Is(err, pkg.ErrCommandCRC) {
		t.Fatalf("AttachCard() = %v, want %v", err, pkg.ErrCommandCRC)
	}
	if !pkg.StatusOf(err).IsHardware() {
		t.Error("controller status not reported as hardware error")
	}
}

func TestAttachCard_NotInserted(t *testing.T) {
	m := newMockHAL()
	m.inserted = false
	h := newMockHost(t, m, DefaultConfig())

	if _, err := h.Slot(0).AttachCard(context.Background()); !errors.Is(err, pkg.ErrCardIsNotInserted) {
		t.Errorf("AttachCard() = %v, want %v", err, pkg.ErrCardIsNotInserted)
	}
	if len(m.indices()) != 0 {
		t.Error("commands issued to an empty slot")
	}
}

func TestAttachCard_SPIUnsupported(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BusMode = hal.BusModeSPI
	h := newMockHost(t, newMockHAL(), cfg)

	if _, err := h.Slot(0).AttachCard(context.Background()); !errors.Is(err, pkg.ErrUnsupportedOperation) {
		t.Errorf("AttachCard() = %v, want %v", err, pkg.ErrUnsupportedOperation)
	}
}
