package host

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/phy"
	"github.com/ardnew/softsdio/pkg"
)

// Config holds the host stack settings.
type Config struct {
	BusMode hal.BusMode // Native SD bus or SPI
	DMAMode hal.DMAMode // Data transmission scheme

	// AutoCommand lets the controller issue CMD12 after open-ended
	// multi-block transfers when the card lacks CMD23.
	AutoCommand bool

	// CommandTimeout bounds every polling loop (power-up, CMD6 busy,
	// CMD13 ready).
	CommandTimeout time.Duration

	// PollMin and PollMax bound the backoff between polls.
	PollMin time.Duration
	PollMax time.Duration

	IdentClock     uint32 // Clock during identification, Hz
	TransferClock  uint32 // Default speed clock, Hz
	HighSpeedClock uint32 // High speed clock, Hz

	// BusWidth is the widest data bus to negotiate at attach.
	BusWidth hal.BusWidth

	// PHY holds delay line settings applied on access mode changes.
	PHY phy.Table
}

// DefaultConfig returns the recommended settings. New substitutes these
// values for zero durations and clocks in its cfg.
func DefaultConfig() Config {
	return Config{
		BusMode:        hal.BusModeSD,
		DMAMode:        hal.DMAADMA2,
		AutoCommand:    true,
		CommandTimeout: time.Second,
		PollMin:        10 * time.Microsecond,
		PollMax:        10 * time.Millisecond,
		IdentClock:     400_000,
		TransferClock:  25_000_000,
		HighSpeedClock: 50_000_000,
		BusWidth:       hal.BusWidth4,
	}
}

// Host is an SD/SDIO/eMMC host stack bound to one controller.
type Host struct {
	hal hal.HostHAL
	cfg Config
	phy *phy.Controller

	slots []*Slot

	// Memory card info arena, MaxDevicesPerSlot entries per slot.
	memCards []MemoryCardInfo
	memUsed  []bool
	memMutex sync.Mutex

	// Next MMC RCA candidate
	nextRCA uint16

	running bool
	mutex   sync.RWMutex
}

// New creates a host stack over h. The PHY is programmed when h also
// implements hal.Registers.
func New(h hal.HostHAL, cfg Config) *Host {
	def := DefaultConfig()
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.PollMin == 0 {
		cfg.PollMin = def.PollMin
	}
	if cfg.PollMax == 0 {
		cfg.PollMax = def.PollMax
	}
	if cfg.IdentClock == 0 {
		cfg.IdentClock = def.IdentClock
	}
	if cfg.TransferClock == 0 {
		cfg.TransferClock = def.TransferClock
	}
	if cfg.HighSpeedClock == 0 {
		cfg.HighSpeedClock = def.HighSpeedClock
	}
	if cfg.BusWidth == 0 {
		cfg.BusWidth = hal.BusWidth1
	}

	host := &Host{
		hal:     h,
		cfg:     cfg,
		nextRCA: MMCInitialRCA,
	}
	if regs, ok := h.(hal.Registers); ok {
		host.phy = phy.New(regs, h)
	}

	n := h.NumSlots()
	host.slots = make([]*Slot, n)
	for i := range host.slots {
		host.slots[i] = newSlot(host, i)
	}
	host.memCards = make([]MemoryCardInfo, MaxDevicesPerSlot*n)
	host.memUsed = make([]bool, MaxDevicesPerSlot*n)
	return host
}

// Start initializes the controller and powers the slots.
func (h *Host) Start(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.running {
		return pkg.ErrInvalidState
	}

	if err := h.hal.Init(ctx); err != nil {
		return err
	}
	if err := h.hal.Start(); err != nil {
		return err
	}
	h.running = true

	pkg.LogInfo(pkg.ComponentHost, "host started",
		"slots", len(h.slots),
		"busMode", h.cfg.BusMode)
	return nil
}

// Stop removes slot power. Attached devices return to Unattached. Stop
// waits for in-progress operations and aborts transfers left open by
// DataXferNonBlock or InfXferStart; their WaitTransfer or
// InfDataXferFinish then returns ErrAborted.
func (h *Host) Stop() error {
	h.mutex.Lock()
	if !h.running {
		h.mutex.Unlock()
		return nil
	}
	h.running = false
	h.mutex.Unlock()

	for _, s := range h.slots {
		s.shutdown()
	}
	if err := h.hal.Stop(); err != nil {
		return err
	}

	pkg.LogInfo(pkg.ComponentHost, "host stopped")
	return nil
}

// IsRunning returns true if the host is running.
func (h *Host) IsRunning() bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.running
}

// Config returns the stack settings.
func (h *Host) Config() Config {
	return h.cfg
}

// NumSlots returns the number of slots.
func (h *Host) NumSlots() int {
	return len(h.slots)
}

// Slot returns slot n, or nil when n is out of range. Operations on the
// nil slot return ErrInvalidParameter.
func (h *Host) Slot(n int) *Slot {
	if n < 0 || n >= len(h.slots) {
		return nil
	}
	return h.slots[n]
}

// AttachAll brings up every slot holding a card, concurrently. It returns
// the attached devices in slot order and the first error encountered.
func (h *Host) AttachAll(ctx context.Context) ([]*Device, error) {
	devices := make([]*Device, len(h.slots))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range h.slots {
		if !h.hal.CardInserted(i) {
			continue
		}
		g.Go(func() error {
			dev, err := s.AttachCard(ctx)
			if err != nil {
				pkg.LogWarn(pkg.ComponentHost, "attach failed", "slot", i, "error", err)
				return err
			}
			devices[i] = dev
			return nil
		})
	}
	err := g.Wait()

	result := make([]*Device, 0, len(devices))
	for _, d := range devices {
		if d != nil {
			result = append(result, d)
		}
	}
	return result, err
}

// WaitFor polls cond until it reports done, backing off between polls
// with the host's PollMin/PollMax schedule. It returns pkg.ErrTimeout
// once timeout has been spent waiting, or the context error if ctx ends.
// The delay itself is provided by the HAL.
func (h *Host) WaitFor(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	b := h.newBackoff()
	var waited time.Duration
	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if waited >= timeout {
			return pkg.ErrTimeout
		}
		d := b.Duration()
		if err := h.hal.Delay(ctx, d); err != nil {
			return err
		}
		waited += d
	}
}

// allocateRCA returns the next MMC RCA candidate. Candidates start at
// MMCInitialRCA and decrease by one per call.
func (h *Host) allocateRCA() uint16 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	rca := h.nextRCA
	h.nextRCA--
	if h.nextRCA == 0 {
		h.nextRCA = MMCInitialRCA
	}
	return rca
}

// acquireMemoryInfo takes a free entry from the arena.
func (h *Host) acquireMemoryInfo() (*MemoryCardInfo, error) {
	h.memMutex.Lock()
	defer h.memMutex.Unlock()
	for i := range h.memCards {
		if !h.memUsed[i] {
			h.memUsed[i] = true
			h.memCards[i] = MemoryCardInfo{}
			return &h.memCards[i], nil
		}
	}
	return nil, pkg.ErrMemAlloc
}

// releaseMemoryInfo returns info to the arena. Unknown pointers are
// ignored.
func (h *Host) releaseMemoryInfo(info *MemoryCardInfo) {
	if info == nil {
		return
	}
	h.memMutex.Lock()
	defer h.memMutex.Unlock()
	for i := range h.memCards {
		if &h.memCards[i] == info {
			h.memUsed[i] = false
			return
		}
	}
}

// memoryInUse returns the number of arena entries held.
func (h *Host) memoryInUse() int {
	h.memMutex.Lock()
	defer h.memMutex.Unlock()
	n := 0
	for _, used := range h.memUsed {
		if used {
			n++
		}
	}
	return n
}
