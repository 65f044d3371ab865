package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeZeroedImage(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "floppy.img")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// selectDriveAndFormat wires drive 0 at format-select code 3 (512
// bytes/sector, 8 sectors/track).
func selectDriveAndFormat(dev *Device) {
	value := uint16(fpioDriveAddrModeBit) | (3 << fpioDriveAddrFormatShift)
	dev.Write(dev.StartAddr+fpioWriteDriveAddress, value)
}

func TestFloppyPIOOneHotCommandDecodeLowestBitWins(t *testing.T) {
	dev := CreateFloppyPIODevice(0, "")
	defer dev.Destroy()
	selectDriveAndFormat(dev)

	// bits 0 and 1 both set in the command byte: FormatTrack (0) and
	// WriteData (1) are both one-hot candidates, lowest wins.
	dev.Write(dev.StartAddr+fpioWriteControlWord, 0x0300)

	s := fpioOf(dev)
	if s.command != fpioCmdFormatTrack {
		t.Fatalf("command = %d, want fpioCmdFormatTrack (lowest set bit)", s.command)
	}
}

func TestFloppyPIOWriteThenReadDataRoundTrip(t *testing.T) {
	path := writeZeroedImage(t, 4096)
	dev := CreateFloppyPIODevice(0, path)
	defer dev.Destroy()
	selectDriveAndFormat(dev)

	for i := 0; i < 256; i++ {
		dev.Write(dev.StartAddr+fpioWriteDataBuffer, uint16(i))
	}

	// Rewind the buffer pointer so the write starts at word 0.
	dev.Write(dev.StartAddr+fpioWriteControlWord, fpioCtrlClearBufferAddr)

	// WriteData is command index 1 -> bit 1 of the high command byte.
	dev.Write(dev.StartAddr+fpioWriteControlWord, 1<<1<<8)
	for i := 0; i < IODelayFloppy; i++ {
		dev.TickIODelay()
	}

	s := fpioOf(dev)
	if s.status1&fpioStatus1RFT == 0 || s.status1&fpioStatus1Busy != 0 {
		t.Fatalf("status1 = 0x%04X after write completion, want RFT set and Busy clear", s.status1)
	}

	// Rewind the buffer pointer before reading back.
	dev.Write(dev.StartAddr+fpioWriteControlWord, fpioCtrlClearBufferAddr)

	// ReadData is command index 4 -> bit 4 of the high command byte.
	dev.Write(dev.StartAddr+fpioWriteControlWord, 1<<4<<8)
	for i := 0; i < IODelayFloppy; i++ {
		dev.TickIODelay()
	}

	// Rewind again to read the sector back from word 0.
	dev.Write(dev.StartAddr+fpioWriteControlWord, fpioCtrlClearBufferAddr)

	for i := 0; i < 256; i++ {
		got := dev.Read(dev.StartAddr + fpioReadDataBuffer)
		requireEqualU16(t, "data buffer word", got, uint16(i))
	}
}

func TestFloppyPIOReadWithoutSelectedDriveSetsDriveNotReady(t *testing.T) {
	dev := CreateFloppyPIODevice(0, "") // no backing image
	defer dev.Destroy()
	selectDriveAndFormat(dev)
	dev.Write(dev.StartAddr+fpioWriteDriveAddress, fpioDriveAddrModeBit|fpioDriveAddrDeselect)

	dev.Write(dev.StartAddr+fpioWriteControlWord, 1<<4<<8) // ReadData

	s := fpioOf(dev)
	if s.status2&fpioStatus2DriveNotReady == 0 {
		t.Fatalf("expected DriveNotReady status with no backing stream/selected drive")
	}
}

func TestFloppyPIOAutoloadBootPROM(t *testing.T) {
	dev := CreateFloppyPIODevice(0, "")
	defer dev.Destroy()

	dev.Write(dev.StartAddr+fpioWriteControlWord, fpioCtrlAutoload)

	s := fpioOf(dev)
	if s.track != 0 || s.sector != 1 || s.bufferPointer != 0 {
		t.Fatalf("autoload should reset track/sector/bufferPointer, got track=%d sector=%d ptr=%d", s.track, s.sector, s.bufferPointer)
	}
	for i, b := range floppyPIOBootPROM {
		if s.dataBuffer[i] != uint16(b) {
			t.Fatalf("dataBuffer[%d] = 0x%04X, want 0x%04X", i, s.dataBuffer[i], b)
			break
		}
	}
}

func TestFloppySectorDeletedBitmap(t *testing.T) {
	s := &floppyPIOState{}
	if fpioSectorDeleted(s, 5, 10) {
		t.Fatalf("sector should not be marked deleted yet")
	}
	fpioSetSectorDeleted(s, 5, 10, true)
	if !fpioSectorDeleted(s, 5, 10) {
		t.Fatalf("sector should be marked deleted after SetSectorDeleted")
	}
	if fpioSectorDeleted(s, 0, 10) {
		t.Fatalf("sector 0 is out of range and should report false")
	}
}

func TestCreateFloppyPIODeviceFactoryTable(t *testing.T) {
	if dev := CreateFloppyPIODevice(-1, ""); dev != nil {
		t.Fatalf("CreateFloppyPIODevice(-1) = %v, want nil", dev)
	}
	if dev := CreateFloppyPIODevice(2, ""); dev != nil {
		t.Fatalf("CreateFloppyPIODevice(2) = %v, want nil", dev)
	}

	dev := CreateFloppyPIODevice(1, "")
	defer dev.Destroy()
	if dev.StartAddr != 0o1570 || dev.IdentCode != 0o22 {
		t.Fatalf("CreateFloppyPIODevice(1) = %+v, want Floppy PIO 1 at 0o1570", dev)
	}
}
