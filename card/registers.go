package card

import "encoding/binary"

// setBits stores value in bits hi:lo of a big-endian register image,
// where bit 0 is the least significant bit of the last byte.
func setBits(raw []byte, hi, lo int, value uint32) {
	n := len(raw)
	for b := lo; b <= hi; b++ {
		idx := n - 1 - b/8
		mask := byte(1) << (b % 8)
		if value&(1<<(b-lo)) != 0 {
			raw[idx] |= mask
		} else {
			raw[idx] &^= mask
		}
	}
}

// DefaultCID returns a plausible CID for the card family.
func DefaultCID(t Type) [16]byte {
	var raw [16]byte
	switch t {
	case TypeMMC:
		raw[0] = 0x15 // MID
		raw[1] = 0x01 // CBX: BGA
		raw[2] = 0x00 // OID
		copy(raw[3:9], "SIMMMC")
		raw[9] = 0x10 // PRV 1.0
		binary.BigEndian.PutUint32(raw[10:14], 0x0BADCAFE)
		raw[14] = 0x7A // MDT
	default:
		raw[0] = 0x03 // MID
		copy(raw[1:3], "SD")
		copy(raw[3:8], "SIM01")
		raw[8] = 0x10 // PRV 1.0
		binary.BigEndian.PutUint32(raw[9:13], 0x12345678)
		raw[13] = 0x01 // MDT year
		raw[14] = 0x8A // MDT year low nibble, month
	}
	return raw
}

// legacySize picks C_SIZE and C_SIZE_MULT for a block count with a
// 512-byte READ_BL_LEN. ok is false when the count exceeds 2 GiB.
func legacySize(blocks uint64) (cSize, mult uint32, ok bool) {
	for m := uint32(7); ; m-- {
		unit := uint64(1) << (m + 2)
		if blocks >= unit || m == 0 {
			c := blocks/unit - 1
			if blocks < unit {
				c = 0
			}
			if c > 0xFFE {
				return 0xFFF, 7, false
			}
			return uint32(c), m, true
		}
	}
}

func buildCSD(cfg *Config) [16]byte {
	var raw [16]byte
	r := raw[:]

	setBits(r, 119, 112, 0x0E) // TAAC
	setBits(r, 103, 96, 0x32)  // TRAN_SPEED 25 MHz
	setBits(r, 83, 80, 9)      // READ_BL_LEN
	setBits(r, 25, 22, 9)      // WRITE_BL_LEN
	setBits(r, 28, 26, 2)      // R2W_FACTOR
	if cfg.PartialRead {
		setBits(r, 79, 79, 1)
	}
	if cfg.WriteMisalign {
		setBits(r, 78, 78, 1)
	}
	if cfg.ReadMisalign {
		setBits(r, 77, 77, 1)
	}
	if cfg.PartialWrite {
		setBits(r, 21, 21, 1)
	}
	if cfg.PermWriteProtect {
		setBits(r, 13, 13, 1)
	}

	switch cfg.Type {
	case TypeMMC:
		setBits(r, 127, 126, 3)
		setBits(r, 125, 122, uint32(cfg.MMCSpecVersion))
		setBits(r, 95, 84, 0x8F5)
		cSize, mult, ok := legacySize(cfg.Blocks)
		if cfg.HighCapacity || !ok {
			cSize, mult = 0xFFF, 7
		}
		setBits(r, 73, 62, cSize)
		setBits(r, 49, 47, mult)
		setBits(r, 46, 42, 31) // ERASE_GRP_SIZE
		setBits(r, 41, 37, 31) // ERASE_GRP_MULT
	case TypeSD:
		setBits(r, 95, 84, 0x5B5)
		setBits(r, 45, 39, 0x7F) // SECTOR_SIZE
		if cfg.EraseBlockEnable {
			setBits(r, 46, 46, 1)
		}
		if cfg.HighCapacity {
			setBits(r, 127, 126, 1)
			setBits(r, 69, 48, uint32(max(cfg.Blocks/1024, 1)-1))
		} else {
			cSize, mult, _ := legacySize(cfg.Blocks)
			setBits(r, 73, 62, cSize)
			setBits(r, 49, 47, mult)
		}
	}
	return raw
}

func buildSCR(cfg *Config) [8]byte {
	var raw [8]byte
	r := raw[:]
	setBits(r, 59, 56, uint32(cfg.SDSpec))
	if cfg.EraseValue != 0 {
		setBits(r, 55, 55, 1)
	}
	setBits(r, 51, 48, uint32(cfg.BusWidths))
	if cfg.SDSpec3 {
		setBits(r, 47, 47, 1)
	}
	if cfg.CMD23 {
		setBits(r, 33, 33, 1)
	}
	if cfg.CMD20 {
		setBits(r, 32, 32, 1)
	}
	return raw
}

func buildExtCSD(cfg *Config) [ExtCSDSize]byte {
	var ext [ExtCSDSize]byte
	if cfg.Type != TypeMMC || cfg.MMCSpecVersion < 4 {
		return ext
	}
	ext[ExtCSDRev] = 8
	ext[ExtCSDCSDStructure] = 2
	ext[ExtCSDDeviceType] = 0x17
	if cfg.HighCapacity {
		binary.LittleEndian.PutUint32(ext[ExtCSDSecCount:], uint32(cfg.Blocks))
	}
	if n := len(cfg.BootData); n > 0 {
		ext[ExtCSDBootSizeMult] = byte((n + 128*1024 - 1) / (128 * 1024))
	}
	if cfg.CmdqDepth > 0 {
		ext[ExtCSDCmdqSupport] = 1
		ext[ExtCSDCmdqDepth] = cfg.CmdqDepth - 1
	}
	return ext
}

// switchFunc handles CMD6 for SD (switch function) and MMC (switch).
func (c *Card) switchFunc(arg uint32) Response {
	switch c.cfg.Type {
	case TypeSD:
		return c.sdSwitch(arg)
	case TypeMMC:
		return c.mmcSwitch(arg)
	}
	return noResponse()
}

func (c *Card) sdSwitch(arg uint32) Response {
	if c.state != StateTransfer {
		return noResponse()
	}
	set := arg&SwitchModeSet != 0

	status := make([]byte, SwitchStatusSize)
	binary.BigEndian.PutUint16(status[0:2], 200) // max current, mA
	busy := c.switchBusy > 0 && !c.cfg.SwitchStatusV0
	if busy {
		c.switchBusy--
	}
	if !c.cfg.SwitchStatusV0 {
		status[17] = 1
	}

	for g := 1; g <= SwitchGroups; g++ {
		off := SwitchGroups - g
		binary.BigEndian.PutUint16(status[2+2*off:], c.cfg.SwitchSupport[g-1])

		fn := uint8(arg>>(4*(g-1))) & 0xF
		result := c.funcs[g-1]
		if fn != SwitchNoChange {
			if c.cfg.SwitchSupport[g-1]&(1<<fn) == 0 {
				result = SwitchNoChange
			} else {
				result = fn
				if set {
					c.funcs[g-1] = fn
				}
				if busy {
					binary.BigEndian.PutUint16(status[18+2*off:], 1<<fn)
				}
			}
		}

		idx := 14 + off/2
		if off%2 == 0 {
			status[idx] |= result << 4
		} else {
			status[idx] |= result & 0xF
		}
	}

	resp := c.r1(0)
	c.stageRegister(status)
	return resp
}

func (c *Card) mmcSwitch(arg uint32) Response {
	if c.state != StateTransfer {
		return noResponse()
	}
	access := (arg >> 24) & 0x3
	index := (arg >> 16) & 0xFF
	value := byte(arg >> 8)

	if access == SwitchAccessCommandSet {
		return c.r1(0)
	}
	if index >= ExtCSDModesSegmentSize {
		return c.r1(StatusSwitchError)
	}
	if c.cfg.IgnoreExtCSDWrites {
		return c.r1(0)
	}

	switch access {
	case SwitchAccessSetBits:
		c.ext[index] |= value
	case SwitchAccessClearBits:
		c.ext[index] &^= value
	case SwitchAccessWriteByte:
		c.ext[index] = value
	}

	if index == ExtCSDBusWidth {
		switch c.ext[index] & 0xF {
		case 0:
			c.busWidth = 1
		case 1, 5:
			c.busWidth = 4
		case 2, 6:
			c.busWidth = 8
		}
	}
	return c.r1(0)
}
