package host

import (
	"encoding/binary"
	"testing"

	"github.com/ardnew/softsdio/card"
)

// =============================================================================
// CID Tests
// =============================================================================

func TestDecodeCID_SD(t *testing.T) {
	cid := DecodeCID(card.DefaultCID(card.TypeSD), DeviceTypeSDMemory)

	if cid.ManufacturerID != 0x03 {
		t.Errorf("ManufacturerID = 0x%02X, want 0x03", cid.ManufacturerID)
	}
	if cid.OEMID != 0x5344 {
		t.Errorf("OEMID = 0x%04X, want 0x5344", cid.OEMID)
	}
	if cid.ProductName != "SIM01" {
		t.Errorf("ProductName = %q, want SIM01", cid.ProductName)
	}
	if cid.ProductRevision != 0x10 {
		t.Errorf("ProductRevision = 0x%02X, want 0x10", cid.ProductRevision)
	}
	if cid.SerialNumber != 0x12345678 {
		t.Errorf("SerialNumber = 0x%08X, want 0x12345678", cid.SerialNumber)
	}
	if cid.ManufactureYear != 2024 || cid.ManufactureMonth != 10 {
		t.Errorf("manufactured %d/%d, want 2024/10", cid.ManufactureYear, cid.ManufactureMonth)
	}
}

func TestDecodeCID_MMC(t *testing.T) {
	cid := DecodeCID(card.DefaultCID(card.TypeMMC), DeviceTypeMMC)

	if cid.ManufacturerID != 0x15 {
		t.Errorf("ManufacturerID = 0x%02X, want 0x15", cid.ManufacturerID)
	}
	if cid.ProductName != "SIMMMC" {
		t.Errorf("ProductName = %q, want SIMMMC", cid.ProductName)
	}
	if cid.SerialNumber != 0x0BADCAFE {
		t.Errorf("SerialNumber = 0x%08X, want 0x0BADCAFE", cid.SerialNumber)
	}
	if cid.ManufactureYear != 2007 || cid.ManufactureMonth != 7 {
		t.Errorf("manufactured %d/%d, want 2007/7", cid.ManufactureYear, cid.ManufactureMonth)
	}
}

// =============================================================================
// CSD Tests
// =============================================================================

func TestCSD_DeviceSizeMB(t *testing.T) {
	tests := []struct {
		name     string
		csd      CSD
		t        DeviceType
		secCount uint32
		want     uint32
	}{
		{
			name: "SD version 2",
			csd:  CSD{Structure: 1, CSize: 0x3B37},
			t:    DeviceTypeSDMemory,
			want: 7580,
		},
		{
			name: "SD version 1",
			csd:  CSD{CSize: 0xF02, CSizeMult: 7, ReadBlLen: 10},
			t:    DeviceTypeSDMemory,
			want: 1921,
		},
		{
			name:     "MMC sector mode",
			csd:      CSD{Structure: 3, CSize: 0xFFF, CSizeMult: 7, ReadBlLen: 9},
			t:        DeviceTypeMMC,
			secCount: 30535680,
			want:     14910,
		},
		{
			name:     "MMC byte mode ignores SEC_COUNT",
			csd:      CSD{Structure: 3, CSize: 15, CSizeMult: 7, ReadBlLen: 9},
			t:        DeviceTypeMMC,
			secCount: 30535680,
			want:     4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.csd.DeviceSizeMB(tt.t, tt.secCount); got != tt.want {
				t.Errorf("DeviceSizeMB() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecodeCSD_Emulated(t *testing.T) {
	tests := []struct {
		name string
		cfg  card.Config
		t    DeviceType
		want uint32
	}{
		{"SDSC", card.Config{Type: card.TypeSD, Blocks: 8192}, DeviceTypeSDMemory, 4},
		{"SDHC", card.Config{Type: card.TypeSD, HighCapacity: true, Blocks: 4096}, DeviceTypeSDMemory, 2},
		{"MMC", card.Config{Type: card.TypeMMC, Blocks: 8192}, DeviceTypeMMC, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := card.New(tt.cfg)
			csd := DecodeCSD(c.CSD(), tt.t)
			if got := csd.DeviceSizeMB(tt.t, 0); got != tt.want {
				t.Errorf("DeviceSizeMB() = %d, want %d", got, tt.want)
			}
			if csd.ReadBlLen != 9 {
				t.Errorf("ReadBlLen = %d, want 9", csd.ReadBlLen)
			}
		})
	}
}

func TestDecodeCSD_Flags(t *testing.T) {
	c := card.New(card.Config{
		Type:          card.TypeSD,
		PartialRead:   true,
		PartialWrite:  true,
		ReadMisalign:  true,
		WriteMisalign: false,
	})
	csd := DecodeCSD(c.CSD(), DeviceTypeSDMemory)

	if !csd.ReadBlPartial || !csd.WriteBlPartial || !csd.ReadBlkMisalign {
		t.Errorf("partial flags = %v/%v/%v, want all set",
			csd.ReadBlPartial, csd.WriteBlPartial, csd.ReadBlkMisalign)
	}
	if csd.WriteBlkMisalign {
		t.Error("WriteBlkMisalign set, want clear")
	}
	if csd.SectorSize != 0x7F {
		t.Errorf("SectorSize = 0x%02X, want 0x7F", csd.SectorSize)
	}
	if csd.CommandClasses != 0x5B5 {
		t.Errorf("CommandClasses = 0x%03X, want 0x5B5", csd.CommandClasses)
	}
}

// =============================================================================
// SCR Tests
// =============================================================================

func TestDecodeSCR(t *testing.T) {
	scr := DecodeSCR([SCRSize]byte{0x02, 0x05, 0x80, 0x03})

	if scr.SDSpec != 2 || !scr.SDSpec3 {
		t.Errorf("SDSpec = %d, SDSpec3 = %v", scr.SDSpec, scr.SDSpec3)
	}
	if scr.BusWidths != 0x05 {
		t.Errorf("BusWidths = 0x%02X, want 0x05", scr.BusWidths)
	}
	if !scr.CMD23 || !scr.CMD20 {
		t.Errorf("CMD23 = %v, CMD20 = %v", scr.CMD23, scr.CMD20)
	}
}

func TestSCR_Version(t *testing.T) {
	tests := []struct {
		spec  uint8
		spec3 bool
		want  uint8
	}{
		{0, false, 0},
		{1, false, 1},
		{1, true, 1},
		{2, false, 2},
		{2, true, 3},
	}

	for _, tt := range tests {
		scr := SCR{SDSpec: tt.spec, SDSpec3: tt.spec3}
		if got := scr.Version(); got != tt.want {
			t.Errorf("SCR{%d, %v}.Version() = %d, want %d", tt.spec, tt.spec3, got, tt.want)
		}
	}
}

// =============================================================================
// Switch Status Tests
// =============================================================================

func switchStatusBlock(version uint8) []byte {
	raw := make([]byte, SwitchStatusSize)
	binary.BigEndian.PutUint16(raw[0:2], 200)
	binary.BigEndian.PutUint16(raw[12:14], 0x8003) // Group 1 support
	raw[16] = 0x01                                 // Group 1 result
	raw[17] = version
	binary.BigEndian.PutUint16(raw[28:30], 0x0002) // Group 1 busy
	return raw
}

func TestDecodeSwitchStatus(t *testing.T) {
	st := DecodeSwitchStatus(switchStatusBlock(1))

	if st.MaxCurrent != 200 {
		t.Errorf("MaxCurrent = %d, want 200", st.MaxCurrent)
	}
	if !st.Supported(1, 0) || !st.Supported(1, 1) || st.Supported(1, 2) {
		t.Errorf("Support[0] = 0x%04X", st.Support[0])
	}
	if st.Result[0] != 1 {
		t.Errorf("Result[0] = %d, want 1", st.Result[0])
	}
	if !st.IsBusy(1, 1) {
		t.Error("IsBusy(1, 1) = false, want true")
	}
	if st.IsBusy(1, 0) {
		t.Error("IsBusy(1, 0) = true, want false")
	}
}

func TestDecodeSwitchStatus_Version0(t *testing.T) {
	st := DecodeSwitchStatus(switchStatusBlock(0))

	if st.IsBusy(1, 1) {
		t.Error("version 0 status reported busy")
	}
	if st.Busy[0] != 0 {
		t.Errorf("Busy[0] = 0x%04X, want 0", st.Busy[0])
	}
}

func TestDecodeSwitchStatus_Short(t *testing.T) {
	st := DecodeSwitchStatus(make([]byte, 10))
	if st != (SwitchStatus{}) {
		t.Errorf("short block decoded to %+v", st)
	}
}

func TestSwitchArg(t *testing.T) {
	tests := []struct {
		group, fn uint8
		set       bool
		want      uint32
	}{
		{1, 1, false, 0x00FFFFF1},
		{1, 1, true, 0x80FFFFF1},
		{3, 2, false, 0x00FFF2FF},
		{4, 0, true, 0x80FF0FFF},
	}

	for _, tt := range tests {
		if got := switchArg(tt.group, tt.fn, tt.set); got != tt.want {
			t.Errorf("switchArg(%d, %d, %v) = 0x%08X, want 0x%08X",
				tt.group, tt.fn, tt.set, got, tt.want)
		}
	}
}
