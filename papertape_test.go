package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestTape(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tape.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestPaperTapeReadDrivesRFTAndCharBuf(t *testing.T) {
	path := writeTestTape(t, []byte{0x41, 0x42})
	dev := CreatePaperTapeDevice(0, path)
	defer dev.Destroy()

	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlReadActive)

	s := ptOf(dev)
	if s.status&ptStatusRFT == 0 {
		t.Fatalf("expected RFT set after a successful read-active cycle")
	}

	got := dev.Read(dev.StartAddr + ptReadData)
	requireEqualU16(t, "first byte", got, 0x41)

	if s.status&ptStatusRFT != 0 {
		t.Fatalf("reading data should clear RFT")
	}

	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlReadActive)
	got = dev.Read(dev.StartAddr + ptReadData)
	requireEqualU16(t, "second byte", got, 0x42)
}

func TestPaperTapeReadPastEOFLeavesRFTClear(t *testing.T) {
	path := writeTestTape(t, []byte{0x01})
	dev := CreatePaperTapeDevice(0, path)
	defer dev.Destroy()

	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlReadActive) // consumes the only byte
	dev.Read(dev.StartAddr + ptReadData)

	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlReadActive) // nothing left
	s := ptOf(dev)
	if s.status&ptStatusRFT != 0 {
		t.Fatalf("expected RFT clear after reading past end of tape")
	}
}

func TestPaperTapeUnattachedReaderNeverSetsRFT(t *testing.T) {
	dev := CreatePaperTapeDevice(0, "")
	defer dev.Destroy()

	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlReadActive)
	s := ptOf(dev)
	if s.status&ptStatusRFT != 0 {
		t.Fatalf("an unattached reader should never set RFT")
	}
}

func TestPaperTapeDeviceClearResetsStatus(t *testing.T) {
	path := writeTestTape(t, []byte{0x01})
	dev := CreatePaperTapeDevice(0, path)
	defer dev.Destroy()

	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlReadActive)
	dev.Write(dev.StartAddr+ptWriteControl, ptCtrlDeviceClear)

	s := ptOf(dev)
	if s.status&(ptStatusReadActive|ptStatusRFT) != 0 || s.charBuf != 0 {
		t.Fatalf("device clear should reset read-active, RFT and the char buffer")
	}
}

func TestCreatePaperTapeDeviceFactoryTable(t *testing.T) {
	if dev := CreatePaperTapeDevice(-1, ""); dev != nil {
		t.Fatalf("CreatePaperTapeDevice(-1) = %v, want nil", dev)
	}
	if dev := CreatePaperTapeDevice(2, ""); dev != nil {
		t.Fatalf("CreatePaperTapeDevice(2) = %v, want nil", dev)
	}

	dev := CreatePaperTapeDevice(1, "")
	defer dev.Destroy()
	if dev.StartAddr != 0o404 || dev.IdentCode != 0o22 {
		t.Fatalf("CreatePaperTapeDevice(1) = %+v, want PAPER TAPE 1 at 0o404", dev)
	}
}
