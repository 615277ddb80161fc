package sim

import (
	"time"

	"github.com/ardnew/softsdio/card"
	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/phy"
	"github.com/ardnew/softsdio/pkg"
)

// Insert places c in slot n, replacing any card already there.
func (h *HostHAL) Insert(n int, c *card.Card) {
	if c == nil {
		h.Remove(n)
		return
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		s.card = c
		s.stream = nil
		pkg.LogInfo(pkg.ComponentSim, "card inserted", "slot", n, "type", c.Type())
	}
}

// Remove empties slot n.
func (h *HostHAL) Remove(n int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		s.card = nil
		s.stream = nil
		pkg.LogInfo(pkg.ComponentSim, "card removed", "slot", n)
	}
}

// Card returns the card in slot n, or nil.
func (h *HostHAL) Card(n int) *card.Card {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		return s.card
	}
	return nil
}

// SetWriteProtect sets the write-protect switch of slot n.
func (h *HostHAL) SetWriteProtect(n int, on bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		s.writeProtect = on
	}
}

// InjectError makes the next command with index on slot n fail with
// status before it reaches the card.
func (h *HostHAL) InjectError(n int, index uint8, status pkg.Status) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		if s.faults == nil {
			s.faults = make(map[uint8]pkg.Status)
		}
		s.faults[index] = status
	}
}

// Log returns a copy of the commands issued on slot n.
func (h *HostHAL) Log(n int) []Command {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	s, err := h.slot(n)
	if err != nil {
		return nil
	}
	return append([]Command(nil), s.log...)
}

// ClearLog empties the command log of slot n.
func (h *HostHAL) ClearLog(n int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		s.log = s.log[:0]
	}
}

// Indices returns the command indices issued on slot n. Controller
// issued commands are included when auto is true.
func (h *HostHAL) Indices(n int, auto bool) []uint8 {
	var out []uint8
	for _, c := range h.Log(n) {
		if auto || !c.Auto {
			out = append(out, c.Index)
		}
	}
	return out
}

// Aborts returns how many times Abort was called on slot n.
func (h *HostHAL) Aborts(n int) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		return s.aborts
	}
	return 0
}

// Clock returns the card clock of slot n.
func (h *HostHAL) Clock(n int) uint32 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		return s.clock
	}
	return 0
}

// BusWidth returns the host side bus width of slot n.
func (h *HostHAL) BusWidth(n int) hal.BusWidth {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		return s.width
	}
	return 0
}

// AccessMode returns the host side timing mode of slot n.
func (h *HostHAL) AccessMode(n int) hal.AccessMode {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if s, err := h.slot(n); err == nil {
		return s.mode
	}
	return hal.AccessModeDefault
}

// Elapsed returns the virtual time spent in Delay.
func (h *HostHAL) Elapsed() time.Duration {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.elapsed
}

// PhyDelay returns the value last written to a PHY delay line.
func (h *HostHAL) PhyDelay(typ phy.DelayType) uint8 {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.phyDelays[uint32(typ)&phy.AccessAddrMask]
}
