package card

import (
	"bytes"
	"sync"

	"github.com/ardnew/softsdio/host/hal"
	"github.com/ardnew/softsdio/pkg"
)

// Config describes the card to emulate. Zero values select sensible
// defaults for the card type.
type Config struct {
	Type         Type
	HighCapacity bool   // SDHC/SDXC or sector-addressed MMC
	Blocks       uint64 // Capacity in 512-byte blocks
	Storage      Storage
	SPI          bool // Card answers in SPI framing

	CID [16]byte // Raw CID; generated when zero
	RCA uint16   // Card-published RCA (SD/SDIO)

	// SD configuration register.
	SDSpec     uint8 // SCR SD_SPEC field (0, 1 or 2)
	SDSpec3    bool  // SCR SD_SPEC3 bit
	BusWidths  uint8 // SCR SD_BUS_WIDTHS (bit 0: 1-bit, bit 2: 4-bit)
	CMD23      bool  // SCR CMD_SUPPORT: CMD23
	CMD20      bool  // SCR CMD_SUPPORT: CMD20
	EraseValue byte  // Fill byte after erase (DATA_STAT_AFTER_ERASE)

	// MMC.
	MMCSpecVersion uint8 // CSD SPEC_VERS (4 enables ExtCSD)
	CmdqDepth      uint8 // Command queue depth, 0 when unsupported
	BootData       []byte

	// CSD transfer capabilities.
	PartialRead      bool
	PartialWrite     bool
	ReadMisalign     bool
	WriteMisalign    bool
	EraseBlockEnable bool
	PermWriteProtect bool

	// Switch function behaviour (SD).
	SwitchSupport   [SwitchGroups]uint16 // Per-group support mask; group 1 first
	SwitchStatusV0  bool                 // Report status structure version 0 (no busy field)
	SwitchBusyPolls int                  // CMD6 reports busy this many times

	// SDIO.
	IOFunctions uint8
	CIS         []byte // Tuple chain at the common CIS pointer

	// Quirks.
	PowerUpPolls       int  // ACMD41/CMD1 polls answered busy before ready
	SpuriousRCAError   bool // MMC CMD3 reports a CRC error but succeeds
	IgnoreExtCSDWrites bool // MMC CMD6 write byte is accepted and dropped
}

// Response is the outcome of a command phase as seen by the controller.
type Response struct {
	Words  [4]uint32
	Status pkg.Status
}

type dataKind uint8

const (
	dataNone dataKind = iota
	dataReadMem
	dataWriteMem
	dataReadReg
	dataWriteLock
	dataBoot
)

type dataOp struct {
	kind      dataKind
	addr      uint64 // Byte address for memory operations
	remaining int    // Blocks left, -1 when open-ended
	reg       []byte
	pos       int
}

// Card is an emulated SD, MMC or SDIO card.
//
// Card is safe for concurrent use. The controller drives it one command
// at a time through Command, then moves any data phase with ReadBlock and
// WriteBlock.
type Card struct {
	cfg     Config
	storage Storage
	mutex   sync.Mutex

	state      State
	rca        uint16
	appCmd     bool
	preBoot    bool
	blockLen   uint32
	preBlocks  uint32
	powerPolls int
	busWidth   uint8

	cid [16]byte
	csd [16]byte
	scr [8]byte
	ext [ExtCSDSize]byte

	funcs      [SwitchGroups]uint8
	switchBusy int

	eraseStart int64
	eraseEnd   int64

	locked   bool
	password []byte
	pending  uint32 // Error bits reported by the next status response

	cccr [256]byte
	data dataOp
}

// New creates a card in the idle state.
func New(cfg Config) *Card {
	if cfg.Blocks == 0 {
		cfg.Blocks = 8192
	}
	if cfg.RCA == 0 {
		cfg.RCA = 0xB368
	}
	if cfg.BusWidths == 0 {
		cfg.BusWidths = 0x05
	}
	if cfg.Type == TypeSD && cfg.SDSpec == 0 {
		cfg.SDSpec = 2
	}
	if cfg.Type == TypeMMC && cfg.MMCSpecVersion == 0 {
		cfg.MMCSpecVersion = 4
	}
	if cfg.Type == TypeSDIO && cfg.IOFunctions == 0 {
		cfg.IOFunctions = 1
	}
	defaults := [SwitchGroups]uint16{0x8003, 0x8001, 0x800F, 0x800F, 0x8001, 0x8001}
	for g := range cfg.SwitchSupport {
		if cfg.SwitchSupport[g] == 0 {
			cfg.SwitchSupport[g] = defaults[g]
		}
	}
	if cfg.CIS == nil {
		cfg.CIS = DefaultCIS()
	}

	c := &Card{cfg: cfg, storage: cfg.Storage}
	if c.storage == nil && cfg.Type != TypeSDIO {
		c.storage = NewMemoryStorage(cfg.Blocks)
	}
	c.cid = cfg.CID
	if c.cid == ([16]byte{}) {
		c.cid = DefaultCID(cfg.Type)
	}
	c.csd = buildCSD(&c.cfg)
	c.scr = buildSCR(&c.cfg)
	c.ext = buildExtCSD(&c.cfg)
	c.cccr = buildCCCR(&c.cfg)
	c.reset()
	return c
}

// reset returns the card to the idle state without touching storage.
func (c *Card) reset() {
	c.state = StateIdle
	c.rca = 0
	c.appCmd = false
	c.preBoot = false
	c.blockLen = BlockSize
	c.preBlocks = 0
	c.powerPolls = 0
	c.busWidth = 1
	c.funcs = [SwitchGroups]uint8{}
	c.switchBusy = c.cfg.SwitchBusyPolls
	c.eraseStart = -1
	c.eraseEnd = -1
	c.data = dataOp{}
	c.ext[ExtCSDBusWidth] = 0
	c.ext[ExtCSDHSTiming] = 0
}

// Type returns the emulated card family.
func (c *Card) Type() Type {
	return c.cfg.Type
}

// State returns the current card state.
func (c *Card) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// RCA returns the relative card address, or 0 before CMD3.
func (c *Card) RCA() uint16 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.rca
}

// CID returns the raw card identification register.
func (c *Card) CID() [16]byte {
	return c.cid
}

// CSD returns the raw card specific data register.
func (c *Card) CSD() [16]byte {
	return c.csd
}

// ExtCSD returns a copy of the extended CSD.
func (c *Card) ExtCSD() [ExtCSDSize]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ext
}

// BusWidth returns the card side bus width.
func (c *Card) BusWidth() uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busWidth
}

// Function returns the active switch function of group (1-6).
func (c *Card) Function(group int) uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if group < 1 || group > SwitchGroups {
		return SwitchNoChange
	}
	return c.funcs[group-1]
}

// Locked reports whether the card is password locked.
func (c *Card) Locked() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.locked
}

// Storage returns the block backend.
func (c *Card) Storage() Storage {
	return c.storage
}

// DataPending reports whether a data phase is outstanding.
func (c *Card) DataPending() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.data.kind != dataNone
}

// noResponse models a card that ignores the command.
func noResponse() Response {
	return Response{Status: pkg.ErrCommandTimeout}
}

// r1 builds a card status response in the current state.
func (c *Card) r1(flags uint32) Response {
	w := flags | c.pending | uint32(c.state)<<StatusStateShift
	c.pending = 0
	if c.state == StateTransfer {
		w |= StatusReadyForData
	}
	if c.locked {
		w |= StatusCardIsLocked
	}
	if c.cfg.SPI {
		w = spiR1(w, c.state)
	}
	return Response{Words: [4]uint32{w}}
}

// spiR1 folds a native card status into the one-byte SPI R1 format.
func spiR1(w uint32, state State) uint32 {
	var r uint32
	if state == StateIdle {
		r |= SPIIdle
	}
	if w&StatusIllegalCommand != 0 {
		r |= SPIIllegal
	}
	if w&StatusEraseSeqError != 0 {
		r |= SPIEraseSequence
	}
	if w&(StatusAddressError|StatusBlockLenError) != 0 {
		r |= SPIAddressError
	}
	if w&(StatusOutOfRange|StatusEraseParam) != 0 {
		r |= SPIParameter
	}
	return r
}

// r2 builds a 136-bit register response.
func r2(raw [16]byte) Response {
	return Response{Words: hal.PackR2(raw)}
}

// Command executes the command phase of index with argument arg.
func (c *Card) Command(index uint8, arg uint32) Response {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.state == StateInactive {
		return noResponse()
	}

	app := c.appCmd
	c.appCmd = false
	if app {
		if r, ok := c.appCommand(index, arg); ok {
			return r
		}
	}

	switch index {
	case 0:
		return c.goIdle(arg)
	case 1:
		return c.sendOpCond(arg)
	case 2:
		return c.allSendCID()
	case 3:
		return c.relativeAddr(arg)
	case 5:
		return c.ioSendOpCond(arg)
	case 6:
		return c.switchFunc(arg)
	case 7:
		return c.selectCard(arg)
	case 8:
		return c.sendIfCondOrExtCSD(arg)
	case 9:
		return c.sendRegister(arg, c.csd)
	case 10:
		return c.sendRegister(arg, c.cid)
	case 12:
		return c.stopTransmission()
	case 13:
		if c.cfg.SPI || uint16(arg>>16) == c.rca {
			return c.r1(0)
		}
		return noResponse()
	case 16:
		return c.setBlockLen(arg)
	case 17, 18:
		return c.startMemory(index, arg, dataReadMem)
	case 23:
		return c.setBlockCount(arg)
	case 24, 25:
		return c.startMemory(index, arg, dataWriteMem)
	case 32, 33:
		if c.cfg.Type != TypeSD {
			return noResponse()
		}
		return c.eraseBound(index == 32, arg)
	case 35, 36:
		if c.cfg.Type != TypeMMC {
			return noResponse()
		}
		return c.eraseBound(index == 35, arg)
	case 38:
		return c.erase()
	case 42:
		return c.lockUnlock()
	case 52:
		return c.ioRWDirect(arg)
	case 55:
		return c.appPrefix(arg)
	}
	return noResponse()
}

func (c *Card) goIdle(arg uint32) Response {
	switch {
	case c.cfg.Type == TypeMMC && arg == ArgGoPreIdle:
		c.reset()
		c.preBoot = true
		return Response{}
	case c.cfg.Type == TypeMMC && arg == ArgBootInit:
		if !c.preBoot || len(c.cfg.BootData) == 0 {
			return noResponse()
		}
		c.state = StateBoot
		c.data = dataOp{kind: dataBoot, remaining: -1, reg: c.cfg.BootData}
		return Response{}
	}
	c.reset()
	if c.cfg.SPI {
		return Response{Words: [4]uint32{0x01}}
	}
	return Response{}
}

func (c *Card) sendOpCond(arg uint32) Response {
	if c.cfg.Type != TypeMMC || (c.state != StateIdle && c.state != StateReady) {
		return noResponse()
	}
	ocr := uint32(OCRMMCDualVolt)
	if c.cfg.HighCapacity {
		ocr |= OCRSectorMode
	}
	if arg&OCRVoltageMask == 0 {
		return Response{Words: [4]uint32{ocr}}
	}
	if c.powerPolls < c.cfg.PowerUpPolls {
		c.powerPolls++
		return Response{Words: [4]uint32{ocr}}
	}
	c.state = StateReady
	return Response{Words: [4]uint32{ocr | OCRBusy}}
}

func (c *Card) allSendCID() Response {
	if c.cfg.Type == TypeSDIO || c.state != StateReady {
		return noResponse()
	}
	c.state = StateIdent
	return r2(c.cid)
}

func (c *Card) relativeAddr(arg uint32) Response {
	if c.cfg.Type == TypeMMC {
		if c.state != StateIdent {
			return noResponse()
		}
		resp := c.r1(0)
		c.rca = uint16(arg >> 16)
		c.state = StateStandby
		if c.cfg.SpuriousRCAError {
			resp.Status = pkg.ErrCommandCRC
		}
		return resp
	}

	switch c.state {
	case StateIdent, StateStandby:
	case StateReady:
		if c.cfg.Type != TypeSDIO {
			return noResponse()
		}
	default:
		return noResponse()
	}
	prev := c.state
	c.rca = c.cfg.RCA
	c.state = StateStandby
	status := uint32(prev) << StatusStateShift
	w := uint32(c.rca)<<16 | status&0x1FFF
	return Response{Words: [4]uint32{w}}
}

func (c *Card) ioSendOpCond(arg uint32) Response {
	if c.cfg.Type != TypeSDIO {
		return noResponse()
	}
	ocr := uint32(OCRVoltageMask) | uint32(c.cfg.IOFunctions&0x7)<<IOOCRFuncShift
	if arg&OCRVoltageMask == 0 {
		return Response{Words: [4]uint32{ocr}}
	}
	c.state = StateReady
	return Response{Words: [4]uint32{ocr | OCRBusy}}
}

func (c *Card) selectCard(arg uint32) Response {
	rca := uint16(arg >> 16)
	if rca != 0 && rca == c.rca {
		if c.state != StateStandby && c.state != StateDisconnect {
			return noResponse()
		}
		resp := c.r1(0)
		c.state = StateTransfer
		return resp
	}
	switch c.state {
	case StateTransfer, StateData, StateReceive, StateProgram:
		c.state = StateStandby
		c.data = dataOp{}
	}
	return Response{}
}

func (c *Card) sendIfCondOrExtCSD(arg uint32) Response {
	switch c.cfg.Type {
	case TypeSD:
		if c.state != StateIdle || c.cfg.SDSpec < 2 {
			return noResponse()
		}
		if (arg>>VHSShift)&0xF != VHS27to36 {
			return noResponse()
		}
		return Response{Words: [4]uint32{arg & 0xFFF}}
	case TypeMMC:
		if c.state != StateTransfer {
			return noResponse()
		}
		resp := c.r1(0)
		ext := c.ext
		ext[ExtCSDBusWidth] = 0 // Write-only
		c.stageRegister(ext[:])
		return resp
	}
	return noResponse()
}

func (c *Card) sendRegister(arg uint32, raw [16]byte) Response {
	if c.cfg.Type == TypeSDIO {
		return noResponse()
	}
	if c.cfg.SPI {
		c.stageRegister(raw[:])
		return Response{}
	}
	if c.state != StateStandby || uint16(arg>>16) != c.rca {
		return noResponse()
	}
	return r2(raw)
}

// stageRegister queues a single-block register read.
func (c *Card) stageRegister(payload []byte) {
	c.data = dataOp{kind: dataReadReg, remaining: 1, reg: payload}
	if !c.cfg.SPI {
		c.state = StateData
	}
}

func (c *Card) stopTransmission() Response {
	resp := c.r1(0)
	switch c.data.kind {
	case dataReadMem, dataWriteMem, dataBoot:
		c.data = dataOp{}
		if c.state == StateBoot {
			c.state = StateIdle
		} else {
			c.state = StateTransfer
		}
	}
	return resp
}

func (c *Card) setBlockLen(arg uint32) Response {
	if c.state != StateTransfer {
		return noResponse()
	}
	if arg == 0 || arg > BlockSize {
		return c.r1(StatusBlockLenError)
	}
	c.blockLen = arg
	return c.r1(0)
}

func (c *Card) setBlockCount(arg uint32) Response {
	if c.state != StateTransfer {
		return noResponse()
	}
	if c.cfg.Type == TypeSD && !c.cfg.CMD23 {
		return noResponse()
	}
	c.preBlocks = arg & 0xFFFF
	return c.r1(0)
}

// capacityBytes returns the card size in bytes.
func (c *Card) capacityBytes() uint64 {
	return c.storage.BlockCount() * BlockSize
}

func (c *Card) startMemory(index uint8, arg uint32, kind dataKind) Response {
	if c.state != StateTransfer || c.storage == nil {
		return noResponse()
	}
	if c.locked {
		return c.r1(StatusCardIsLocked)
	}

	addr := uint64(arg)
	length := c.blockLen
	if c.cfg.HighCapacity {
		addr *= BlockSize
		length = BlockSize
	}
	if addr+uint64(length) > c.capacityBytes() {
		return c.r1(StatusOutOfRange)
	}

	crosses := addr/BlockSize != (addr+uint64(length)-1)/BlockSize
	if kind == dataReadMem {
		if length < BlockSize && !c.cfg.PartialRead {
			return c.r1(StatusBlockLenError)
		}
		if crosses && !c.cfg.ReadMisalign {
			return c.r1(StatusAddressError)
		}
	} else {
		if c.cfg.PermWriteProtect {
			return c.r1(StatusWPViolation)
		}
		if length < BlockSize && !c.cfg.PartialWrite {
			return c.r1(StatusBlockLenError)
		}
		if crosses && !c.cfg.WriteMisalign {
			return c.r1(StatusAddressError)
		}
	}

	remaining := 1
	if index == 18 || index == 25 {
		remaining = -1
		if c.preBlocks != 0 {
			remaining = int(c.preBlocks)
		}
	}
	c.preBlocks = 0

	resp := c.r1(0)
	c.data = dataOp{kind: kind, addr: addr, remaining: remaining}
	if kind == dataReadMem {
		c.state = StateData
	} else {
		c.state = StateReceive
	}
	return resp
}

func (c *Card) eraseBound(start bool, arg uint32) Response {
	if c.state != StateTransfer {
		return noResponse()
	}
	lba := int64(arg)
	if !c.cfg.HighCapacity {
		lba = int64(arg / BlockSize)
	}
	if start {
		c.eraseStart = lba
		c.eraseEnd = -1
	} else {
		if c.eraseStart < 0 {
			c.eraseStart, c.eraseEnd = -1, -1
			return c.r1(StatusEraseSeqError)
		}
		c.eraseEnd = lba
	}
	return c.r1(0)
}

func (c *Card) erase() Response {
	if c.state != StateTransfer {
		return noResponse()
	}
	start, end := c.eraseStart, c.eraseEnd
	c.eraseStart, c.eraseEnd = -1, -1
	if start < 0 || end < 0 {
		return c.r1(StatusEraseSeqError)
	}
	if end < start || uint64(end) >= c.storage.BlockCount() {
		return c.r1(StatusEraseParam)
	}
	if c.cfg.PermWriteProtect {
		return c.r1(StatusWPViolation)
	}
	if err := c.storage.Erase(uint64(start), uint64(end), c.cfg.EraseValue); err != nil {
		return c.r1(StatusError)
	}
	return c.r1(0)
}

func (c *Card) lockUnlock() Response {
	if c.state != StateTransfer || c.cfg.Type == TypeSDIO {
		return noResponse()
	}
	resp := c.r1(0)
	c.data = dataOp{kind: dataWriteLock, remaining: 1}
	c.state = StateReceive
	return resp
}

func (c *Card) appPrefix(arg uint32) Response {
	if c.cfg.Type != TypeSD {
		return noResponse()
	}
	if c.state != StateIdle && uint16(arg>>16) != c.rca {
		return noResponse()
	}
	c.appCmd = true
	return c.r1(StatusAppCmd)
}

// appCommand handles application specific commands. ok is false when
// index is not an ACMD, in which case it runs as a regular command.
func (c *Card) appCommand(index uint8, arg uint32) (Response, bool) {
	switch index {
	case 6:
		if c.state != StateTransfer {
			return noResponse(), true
		}
		switch arg & 0x3 {
		case 0:
			c.busWidth = 1
		case 2:
			if c.cfg.BusWidths&0x04 == 0 {
				return c.r1(StatusError | StatusAppCmd), true
			}
			c.busWidth = 4
		default:
			return c.r1(StatusError | StatusAppCmd), true
		}
		return c.r1(StatusAppCmd), true

	case 41:
		if c.state != StateIdle && c.state != StateReady {
			return noResponse(), true
		}
		ocr := uint32(OCRVoltageMask)
		if arg&OCRVoltageMask == 0 {
			return Response{Words: [4]uint32{ocr}}, true
		}
		if c.cfg.HighCapacity && arg&OCRCCS == 0 {
			return Response{Words: [4]uint32{ocr}}, true
		}
		if c.powerPolls < c.cfg.PowerUpPolls {
			c.powerPolls++
			return Response{Words: [4]uint32{ocr}}, true
		}
		if c.cfg.HighCapacity {
			ocr |= OCRCCS
		}
		c.state = StateReady
		return Response{Words: [4]uint32{ocr | OCRBusy}}, true

	case 51:
		if c.state != StateTransfer {
			return noResponse(), true
		}
		resp := c.r1(StatusAppCmd)
		c.stageRegister(c.scr[:])
		return resp, true
	}
	return Response{}, false
}

// ReadBlock moves the next block of the pending read into buf.
func (c *Card) ReadBlock(buf []byte) pkg.Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.data.kind {
	case dataReadReg, dataBoot:
		n := copy(buf, c.data.reg[min(c.data.pos, len(c.data.reg)):])
		clear(buf[n:])
		c.data.pos += len(buf)
	case dataReadMem:
		if c.data.addr+uint64(len(buf)) > c.capacityBytes() {
			c.endData()
			return pkg.ErrDataTimeout
		}
		if err := c.readAt(c.data.addr, buf); err != nil {
			c.endData()
			return pkg.ErrDataTimeout
		}
		c.data.addr += uint64(len(buf))
	default:
		return pkg.ErrDataTimeout
	}
	c.blockDone()
	return pkg.StatusNoError
}

// WriteBlock delivers the next block of the pending write.
func (c *Card) WriteBlock(buf []byte) pkg.Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	switch c.data.kind {
	case dataWriteMem:
		if c.data.addr+uint64(len(buf)) > c.capacityBytes() {
			c.endData()
			return pkg.ErrDataCRC
		}
		if err := c.writeAt(c.data.addr, buf); err != nil {
			c.endData()
			return pkg.ErrDataCRC
		}
		c.data.addr += uint64(len(buf))
	case dataWriteLock:
		c.applyLock(buf)
	default:
		return pkg.ErrDataTimeout
	}
	c.blockDone()
	return pkg.StatusNoError
}

func (c *Card) blockDone() {
	if c.data.remaining < 0 {
		return
	}
	c.data.remaining--
	if c.data.remaining == 0 {
		c.endData()
	}
}

func (c *Card) endData() {
	c.data = dataOp{}
	if c.state == StateData || c.state == StateReceive || c.state == StateProgram {
		c.state = StateTransfer
	}
}

// readAt reads len(buf) bytes at a byte address through whole blocks.
func (c *Card) readAt(addr uint64, buf []byte) error {
	first := addr / BlockSize
	last := (addr + uint64(len(buf)) - 1) / BlockSize
	tmp := make([]byte, (last-first+1)*BlockSize)
	if err := c.storage.ReadBlocks(first, tmp); err != nil {
		return err
	}
	copy(buf, tmp[addr-first*BlockSize:])
	return nil
}

// writeAt writes len(buf) bytes at a byte address, merging partial blocks.
func (c *Card) writeAt(addr uint64, buf []byte) error {
	first := addr / BlockSize
	last := (addr + uint64(len(buf)) - 1) / BlockSize
	tmp := make([]byte, (last-first+1)*BlockSize)
	if err := c.storage.ReadBlocks(first, tmp); err != nil {
		return err
	}
	copy(tmp[addr-first*BlockSize:], buf)
	return c.storage.WriteBlocks(first, tmp)
}

// applyLock processes a CMD42 data block. A rejected operation is
// reported as LOCK_UNLOCK_FAILED in the next card status.
func (c *Card) applyLock(buf []byte) {
	if !c.lockOp(buf) {
		c.pending |= StatusLockUnlockFail
	}
}

func (c *Card) lockOp(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	flags := buf[0]
	if flags&LockErase != 0 {
		if !c.locked {
			return false
		}
		c.storage.Erase(0, c.storage.BlockCount()-1, c.cfg.EraseValue)
		c.locked = false
		c.password = nil
		return true
	}

	if len(buf) < 2 {
		return false
	}
	n := int(buf[1])
	if n == 0 || n > MaxPassword || 2+n > len(buf) {
		return false
	}
	pwd := buf[2 : 2+n]
	set := len(c.password) != 0
	matches := bytes.Equal(pwd, c.password)

	switch {
	case flags&LockClrPwd != 0:
		if !set || !matches {
			return false
		}
		c.password = nil
		c.locked = false
	case flags&LockSetPwd != 0:
		if set && !matches {
			return false
		}
		c.password = append([]byte(nil), pwd...)
		c.locked = flags&LockUnlock != 0
	case flags&LockUnlock != 0:
		if !set || !matches {
			return false
		}
		c.locked = true
	default:
		if !set || !matches {
			return false
		}
		c.locked = false
	}
	return true
}

// Inactive puts the card in the inactive state, where it ignores every
// command until the next power cycle.
func (c *Card) Inactive() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.state = StateInactive
}

// PowerCycle restores an inactive card to idle.
func (c *Card) PowerCycle() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.reset()
	c.locked = len(c.password) != 0
}
