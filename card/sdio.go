package card

// DefaultCIS returns a common CIS with manufacturer, function ID and
// function extension tuples.
func DefaultCIS() []byte {
	return []byte{
		TupleManfID, 4, 0xD0, 0x02, 0x29, 0x43,
		TupleFuncID, 2, 0x0C, 0x00,
		TupleNull,
		TupleFuncE, 4, 0x00, 0x00, 0x02, 0x32,
		TupleEnd,
	}
}

func buildCCCR(cfg *Config) [256]byte {
	var cccr [256]byte
	if cfg.Type != TypeSDIO {
		return cccr
	}
	cccr[CCCRRevision] = 0x32
	cccr[0x01] = 0x02 // SD spec revision
	cccr[CCCRCapability] = 0x02
	cccr[CCCRCISPointer] = byte(CISBase & 0xFF)
	cccr[CCCRCISPointer+1] = byte(CISBase >> 8)
	cccr[CCCRCISPointer+2] = byte(CISBase >> 16)
	return cccr
}

func (c *Card) ioRead(addr uint32) byte {
	switch {
	case addr < uint32(len(c.cccr)):
		return c.cccr[addr]
	case addr >= CISBase && addr-CISBase < uint32(len(c.cfg.CIS)):
		return c.cfg.CIS[addr-CISBase]
	}
	return 0
}

func (c *Card) ioWrite(addr uint32, value byte) {
	switch addr {
	case 0x02:
		c.cccr[0x02] = value
		c.cccr[0x03] = value
	case 0x04, 0x13:
		c.cccr[addr] = value
	case 0x06:
		if value&0x08 != 0 {
			c.reset()
		}
	case CCCRBusIfCtrl:
		c.cccr[addr] = value
		if value&0x3 == 0x2 {
			c.busWidth = 4
		} else {
			c.busWidth = 1
		}
	}
}

// ioRWDirect handles CMD52 against function 0. Other functions read as
// zero and ignore writes.
func (c *Card) ioRWDirect(arg uint32) Response {
	if c.cfg.Type != TypeSDIO || c.state != StateTransfer {
		return noResponse()
	}
	fn := (arg >> IORWFuncShift) & 0x7
	addr := (arg >> IORWAddrShift) & IORWAddrMask
	flags := uint32(R5StateCmd)
	if fn > uint32(c.cfg.IOFunctions) {
		return Response{Words: [4]uint32{flags | R5FunctionError}}
	}

	var data byte
	if fn == 0 {
		data = c.ioRead(addr)
		if arg&IORWWrite != 0 {
			c.ioWrite(addr, byte(arg&IORWDataMask))
			if arg&IORWRAW != 0 {
				data = c.ioRead(addr)
			}
		}
	}
	return Response{Words: [4]uint32{flags | uint32(data)}}
}
