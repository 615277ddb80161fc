package host

import (
	"slices"
	"sync"

	"github.com/ardnew/softsdio/pkg"
)

// deviceTransitions lists the states reachable from each device state.
var deviceTransitions = map[DeviceState][]DeviceState{
	DeviceStateUnattached: {DeviceStateAttached},
	DeviceStateAttached:   {DeviceStateUnattached, DeviceStateRemoved},
	DeviceStateRemoved:    {DeviceStateUnattached},
}

// Device is the card attached to a slot.
//
// Fields other than the state are written only by the slot owner; read
// them while no operation on the slot is in progress.
type Device struct {
	slot *Slot

	deviceType  DeviceType
	capacity    Capacity
	rca         uint16
	specVersion uint8
	busWidths   uint8 // Bitmask of hal.BusWidth.Mask values
	selected    bool
	cmd23       bool
	cmd20       bool
	cmdqDepth   uint8
	ioFunctions uint8

	cid CID
	csd CSD
	scr SCR

	// MMC ExtCSD fields of interest
	extRev       uint8
	secCount     uint32
	bootSizeMult uint8

	memory *MemoryCardInfo

	state DeviceState
	mutex sync.RWMutex
}

// reset returns the device to its zero, unattached form. The slot link
// and the mutex itself are kept.
func (d *Device) reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.deviceType = DeviceTypeNone
	d.capacity = CapacityNormal
	d.rca = 0
	d.specVersion = 0
	d.busWidths = 0
	d.selected = false
	d.cmd23 = false
	d.cmd20 = false
	d.cmdqDepth = 0
	d.ioFunctions = 0
	d.cid = CID{}
	d.csd = CSD{}
	d.scr = SCR{}
	d.extRev = 0
	d.secCount = 0
	d.bootSizeMult = 0
	d.memory = nil
	d.state = DeviceStateUnattached
}

// transition moves the device to state to if the transition table
// allows it.
func (d *Device) transition(to DeviceState) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if !slices.Contains(deviceTransitions[d.state], to) {
		pkg.LogWarn(pkg.ComponentHost, "invalid device transition",
			"from", d.state,
			"to", to)
		return pkg.ErrInvalidState
	}
	pkg.LogDebug(pkg.ComponentHost, "device transition",
		"slot", d.slot.index,
		"from", d.state,
		"to", to)
	d.state = to
	return nil
}

// State returns the lifecycle state.
func (d *Device) State() DeviceState {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	return d.state
}

// Slot returns the owning slot.
func (d *Device) Slot() *Slot {
	return d.slot
}

// Type returns the card family.
func (d *Device) Type() DeviceType {
	return d.deviceType
}

// Capacity returns the addressing class.
func (d *Device) Capacity() Capacity {
	return d.capacity
}

// RCA returns the relative card address, 0 before assignment.
func (d *Device) RCA() uint16 {
	return d.rca
}

// SpecVersion returns the SD physical layer version (from the SCR) or
// the MMC system specification version (from the CSD).
func (d *Device) SpecVersion() uint8 {
	return d.specVersion
}

// BusWidths returns the supported bus widths as a bitmask of
// hal.BusWidth.Mask values.
func (d *Device) BusWidths() uint8 {
	return d.busWidths
}

// IsSelected reports whether the card is in the transfer state.
func (d *Device) IsSelected() bool {
	return d.selected
}

// SupportsCMD23 reports whether the card accepts SET_BLOCK_COUNT.
func (d *Device) SupportsCMD23() bool {
	return d.cmd23
}

// SupportsCMD20 reports whether the card accepts SPEED_CLASS_CONTROL.
func (d *Device) SupportsCMD20() bool {
	return d.cmd20
}

// CommandQueueDepth returns the MMC command queue depth, 0 if none.
func (d *Device) CommandQueueDepth() uint8 {
	return d.cmdqDepth
}

// IOFunctions returns the number of SDIO functions.
func (d *Device) IOFunctions() uint8 {
	return d.ioFunctions
}

// CID returns the decoded card identification register.
func (d *Device) CID() CID {
	return d.cid
}

// CSD returns the decoded card specific data register.
func (d *Device) CSD() CSD {
	return d.csd
}

// SCR returns the decoded SD configuration register.
func (d *Device) SCR() SCR {
	return d.scr
}

// MemoryInfo returns the memory card info, or nil when the device has no
// initialized memory portion.
func (d *Device) MemoryInfo() *MemoryCardInfo {
	return d.memory
}

// blockAddress converts a block number to a command argument.
func (d *Device) blockAddress(lba uint32) uint32 {
	if d.capacity == CapacityNormal {
		return lba * DefaultBlockSize
	}
	return lba
}
