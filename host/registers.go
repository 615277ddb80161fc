package host

import (
	"encoding/binary"
	"strings"
)

// field is a bit range hi:lo of a big-endian register image, where bit 0
// is the least significant bit of the last byte.
type field struct {
	hi, lo int
}

// get extracts f from raw. Fields wider than 32 bits are not supported.
func (f field) get(raw []byte) uint32 {
	n := len(raw)
	var v uint32
	for b := f.hi; b >= f.lo; b-- {
		bit := raw[n-1-b/8] >> (b % 8) & 1
		v = v<<1 | uint32(bit)
	}
	return v
}

// flag extracts a one-bit field.
func (f field) flag(raw []byte) bool {
	return f.get(raw) != 0
}

// text extracts a byte-aligned ASCII field.
func (f field) text(raw []byte) string {
	n := len(raw)
	start := n - 1 - f.hi/8
	end := n - f.lo/8
	return strings.TrimRight(string(raw[start:end]), "\x00 ")
}

// CID is the decoded card identification register.
type CID struct {
	ManufacturerID   uint8
	OEMID            uint16
	ProductName      string
	ProductRevision  uint8
	SerialNumber     uint32
	ManufactureYear  uint16
	ManufactureMonth uint8
	Raw              [16]byte
}

// cidLayout is the decode table for one CID format.
type cidLayout struct {
	mid, oid, pnm, prv, psn, year, month field
	yearBase                             uint16
}

var (
	sdCIDLayout = cidLayout{
		mid:      field{127, 120},
		oid:      field{119, 104},
		pnm:      field{103, 64},
		prv:      field{63, 56},
		psn:      field{55, 24},
		year:     field{19, 12},
		month:    field{11, 8},
		yearBase: 2000,
	}
	mmcCIDLayout = cidLayout{
		mid:      field{127, 120},
		oid:      field{111, 104},
		pnm:      field{103, 56},
		prv:      field{55, 48},
		psn:      field{47, 16},
		year:     field{11, 8},
		month:    field{15, 12},
		yearBase: 1997,
	}
)

// DecodeCID unpacks a CID register image in the layout of device type t.
func DecodeCID(raw [16]byte, t DeviceType) CID {
	l := sdCIDLayout
	if t == DeviceTypeMMC {
		l = mmcCIDLayout
	}
	r := raw[:]
	return CID{
		ManufacturerID:   uint8(l.mid.get(r)),
		OEMID:            uint16(l.oid.get(r)),
		ProductName:      l.pnm.text(r),
		ProductRevision:  uint8(l.prv.get(r)),
		SerialNumber:     l.psn.get(r),
		ManufactureYear:  l.yearBase + uint16(l.year.get(r)),
		ManufactureMonth: uint8(l.month.get(r)),
		Raw:              raw,
	}
}

// CSD is the decoded card specific data register.
type CSD struct {
	Structure        uint8
	SpecVersion      uint8 // MMC only
	TAAC             uint8
	NSAC             uint8
	TranSpeed        uint8
	CommandClasses   uint16
	ReadBlLen        uint8
	ReadBlPartial    bool
	WriteBlkMisalign bool
	ReadBlkMisalign  bool
	DSRImplemented   bool
	CSize            uint32
	CSizeMult        uint8
	EraseBlkEnable   bool  // SD only
	SectorSize       uint8 // SD only
	EraseGroupSize   uint8 // MMC only
	EraseGroupMult   uint8 // MMC only
	WriteBlLen       uint8
	WriteBlPartial   bool
	PermWriteProtect bool
	TmpWriteProtect  bool
	Raw              [16]byte
}

// CSD fields common to every layout.
var (
	csdStructure      = field{127, 126}
	csdSpecVersion    = field{125, 122}
	csdTAAC           = field{119, 112}
	csdNSAC           = field{111, 104}
	csdTranSpeed      = field{103, 96}
	csdCCC            = field{95, 84}
	csdReadBlLen      = field{83, 80}
	csdReadBlPartial  = field{79, 79}
	csdWriteMisalign  = field{78, 78}
	csdReadMisalign   = field{77, 77}
	csdDSRImp         = field{76, 76}
	csdWriteBlLen     = field{25, 22}
	csdWriteBlPartial = field{21, 21}
	csdPermWP         = field{13, 13}
	csdTmpWP          = field{12, 12}
)

// Size fields by layout.
var (
	csdCSizeV1     = field{73, 62}
	csdCSizeMult   = field{49, 47}
	csdCSizeV2     = field{69, 48}
	csdEraseBlkEn  = field{46, 46}
	csdSectorSize  = field{45, 39}
	csdEraseGrpSz  = field{46, 42}
	csdEraseGrpMul = field{41, 37}
)

// DecodeCSD unpacks a CSD register image in the layout of device type t.
func DecodeCSD(raw [16]byte, t DeviceType) CSD {
	r := raw[:]
	csd := CSD{
		Structure:        uint8(csdStructure.get(r)),
		TAAC:             uint8(csdTAAC.get(r)),
		NSAC:             uint8(csdNSAC.get(r)),
		TranSpeed:        uint8(csdTranSpeed.get(r)),
		CommandClasses:   uint16(csdCCC.get(r)),
		ReadBlLen:        uint8(csdReadBlLen.get(r)),
		ReadBlPartial:    csdReadBlPartial.flag(r),
		WriteBlkMisalign: csdWriteMisalign.flag(r),
		ReadBlkMisalign:  csdReadMisalign.flag(r),
		DSRImplemented:   csdDSRImp.flag(r),
		WriteBlLen:       uint8(csdWriteBlLen.get(r)),
		WriteBlPartial:   csdWriteBlPartial.flag(r),
		PermWriteProtect: csdPermWP.flag(r),
		TmpWriteProtect:  csdTmpWP.flag(r),
		Raw:              raw,
	}

	if t == DeviceTypeMMC {
		csd.SpecVersion = uint8(csdSpecVersion.get(r))
		csd.CSize = csdCSizeV1.get(r)
		csd.CSizeMult = uint8(csdCSizeMult.get(r))
		csd.EraseGroupSize = uint8(csdEraseGrpSz.get(r))
		csd.EraseGroupMult = uint8(csdEraseGrpMul.get(r))
		return csd
	}

	csd.EraseBlkEnable = csdEraseBlkEn.flag(r)
	csd.SectorSize = uint8(csdSectorSize.get(r))
	if csd.Structure == 1 {
		csd.CSize = csdCSizeV2.get(r)
	} else {
		csd.CSize = csdCSizeV1.get(r)
		csd.CSizeMult = uint8(csdCSizeMult.get(r))
	}
	return csd
}

// legacySizeSaturated is the C_SIZE value of an MMC whose capacity is
// reported in ExtCSD SEC_COUNT.
const legacySizeSaturated = 0xFFF

// DeviceSizeMB computes the capacity in MiB. secCount is the ExtCSD
// SEC_COUNT and is only consulted for MMC with a saturated C_SIZE.
func (c *CSD) DeviceSizeMB(t DeviceType, secCount uint32) uint32 {
	switch {
	case t == DeviceTypeMMC && c.CSize == legacySizeSaturated:
		return secCount >> 11
	case t != DeviceTypeMMC && c.Structure == 1:
		return (c.CSize + 1) / 2
	}
	blocks := uint64(c.CSize+1) << (c.CSizeMult + 2)
	return uint32(blocks << c.ReadBlLen >> 20)
}

// SCR is the decoded SD configuration register.
type SCR struct {
	Structure          uint8
	SDSpec             uint8
	DataStatAfterErase bool
	Security           uint8
	BusWidths          uint8 // Bit 0: 1-bit, bit 2: 4-bit
	SDSpec3            bool
	CMD23              bool
	CMD20              bool
	Raw                [SCRSize]byte
}

var (
	scrStructure = field{63, 60}
	scrSDSpec    = field{59, 56}
	scrDataStat  = field{55, 55}
	scrSecurity  = field{54, 52}
	scrBusWidths = field{51, 48}
	scrSDSpec3   = field{47, 47}
	scrCMD23     = field{33, 33}
	scrCMD20     = field{32, 32}
)

// DecodeSCR unpacks an SCR register image.
func DecodeSCR(raw [SCRSize]byte) SCR {
	r := raw[:]
	return SCR{
		Structure:          uint8(scrStructure.get(r)),
		SDSpec:             uint8(scrSDSpec.get(r)),
		DataStatAfterErase: scrDataStat.flag(r),
		Security:           uint8(scrSecurity.get(r)),
		BusWidths:          uint8(scrBusWidths.get(r)),
		SDSpec3:            scrSDSpec3.flag(r),
		CMD23:              scrCMD23.flag(r),
		CMD20:              scrCMD20.flag(r),
		Raw:                raw,
	}
}

// Version returns the physical layer version the SCR reports. Version 2
// with SD_SPEC3 set is version 3.
func (s *SCR) Version() uint8 {
	if s.SDSpec == 2 && s.SDSpec3 {
		return 3
	}
	return s.SDSpec
}

// SwitchStatus is the decoded 512-bit status block returned by SD CMD6.
// Groups are indexed from 0 for function group 1.
type SwitchStatus struct {
	MaxCurrent uint16
	Support    [6]uint16
	Result     [6]uint8
	Version    uint8
	Busy       [6]uint16
}

// DecodeSwitchStatus unpacks a CMD6 status block.
func DecodeSwitchStatus(raw []byte) SwitchStatus {
	var st SwitchStatus
	if len(raw) < SwitchStatusSize {
		return st
	}
	st.MaxCurrent = binary.BigEndian.Uint16(raw[0:2])
	st.Version = raw[17]
	for g := range 6 {
		off := 5 - g
		st.Support[g] = binary.BigEndian.Uint16(raw[2+2*off:])
		b := raw[14+off/2]
		if off%2 == 0 {
			st.Result[g] = b >> 4
		} else {
			st.Result[g] = b & 0xF
		}
		if st.Version == 1 {
			st.Busy[g] = binary.BigEndian.Uint16(raw[18+2*off:])
		}
	}
	return st
}

// Supported reports whether fn is supported in group (1-6).
func (s *SwitchStatus) Supported(group, fn uint8) bool {
	return s.Support[group-1]&(1<<fn) != 0
}

// IsBusy reports whether fn in group (1-6) is still switching.
func (s *SwitchStatus) IsBusy(group, fn uint8) bool {
	return s.Version == 1 && s.Busy[group-1]&(1<<fn) != 0
}
