package main

import (
	"os"
	"path/filepath"
	"testing"
)

const smdTestCoreAddr = 0x50

func TestSMDReadTransferOverTenTicks(t *testing.T) {
	unit0Path := filepath.Join(t.TempDir(), "smd0.img")
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	if err := os.WriteFile(unit0Path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mem := NewInMemoryPhysicalMemory(4096)
	dev := CreateSMDDevice(0, [4]string{unit0Path, "", "", ""})
	defer dev.Destroy()
	dev.Mem = mem

	// Select cylinder 0 (regMultiplex set briefly so blockAddressII lands).
	dev.Write(dev.StartAddr+smdLoadControlWord, smdCtrlRegMultiplex)
	dev.Write(dev.StartAddr+smdLoadBlockAddress, 0) // cylinder 0

	// Back to non-multiplexed registers: sector/head in blockAddressI.
	dev.Write(dev.StartAddr+smdLoadControlWord, 0)
	dev.Write(dev.StartAddr+smdLoadBlockAddress, 0) // sector 0, head 0

	// Core address (lo half, then hi half).
	dev.Write(dev.StartAddr+smdLoadMemoryAddress, smdTestCoreAddr)
	dev.Write(dev.StartAddr+smdLoadMemoryAddress, 0)

	// Word counter: 4 words (lo half, then hi half).
	dev.Write(dev.StartAddr+smdLoadWordCounter, 4)
	dev.Write(dev.StartAddr+smdLoadWordCounter, 0)

	// Execute a ReadTransfer against unit 0, interrupt-on-completion armed.
	controlValue := uint16(smdCtrlActive) | smdCtrlEnableInterruptNotActive |
		(smdOpReadTransfer << smdCtrlDeviceOpShift)
	dev.Write(dev.StartAddr+smdLoadControlWord, controlValue)

	for w := uint32(0); w < 4; w++ {
		got, _ := mem.ReadPhysical(smdTestCoreAddr+w, false)
		want := uint16(data[w*2])<<8 | uint16(data[w*2+1])
		requireEqualU16(t, "transferred word", got, want)
	}

	s := smdOf(dev)
	if s.status&smdStatusActive == 0 {
		t.Fatalf("expected Active set immediately after issuing ReadTransfer")
	}

	for i := 0; i < IODelaySMD-1; i++ {
		dev.TickIODelay()
	}
	if s.status&smdStatusActive == 0 {
		t.Fatalf("expected Active still set after %d of %d ticks", IODelaySMD-1, IODelaySMD)
	}

	dev.TickIODelay()
	if s.status&smdStatusActive != 0 {
		t.Fatalf("expected Active clear after %d ticks", IODelaySMD)
	}
	if s.status&smdStatusRFT == 0 {
		t.Fatalf("expected RFT set after transfer completion")
	}
	if dev.InterruptBits&(1<<LevelFloppy) == 0 {
		t.Fatalf("expected an interrupt pending with interrupt-on-completion armed")
	}
}

func TestSMDDeviceClearResetsRegisters(t *testing.T) {
	dev := CreateSMDDevice(0, [4]string{"", "", "", ""})
	defer dev.Destroy()

	dev.Write(dev.StartAddr+smdLoadControlWord, smdCtrlDeviceClear)

	s := smdOf(dev)
	if s.regs.coreAddress != 0 || s.regs.wordCounter != 0 || s.regs.blockAddressI != 0 {
		t.Fatalf("device clear should zero core address, word counter and block address")
	}
	if s.status&smdStatusActive != 0 {
		t.Fatalf("device clear should clear Active")
	}
}

func TestSMDNoDiskSelectedReportsNotReady(t *testing.T) {
	dev := CreateSMDDevice(0, [4]string{"", "", "", ""})
	defer dev.Destroy()

	// Select unit 1, which has no backing file attached.
	controlValue := uint16(smdCtrlActive) | (1 << smdCtrlUnitSelectShift)
	dev.Write(dev.StartAddr+smdLoadControlWord, controlValue)

	s := smdOf(dev)
	if s.status&smdStatusDiskUnitNotReady == 0 {
		t.Fatalf("expected DiskUnitNotReady when the selected unit has no backing disk attached")
	}
}

func TestSMDBootReadsUnitZeroIntoPhysicalMemory(t *testing.T) {
	unit0Path := filepath.Join(t.TempDir(), "smd0.img")
	data := make([]byte, 2048*2)
	data[0], data[1] = 0x12, 0x34
	if err := os.WriteFile(unit0Path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	mem := NewInMemoryPhysicalMemory(4096)
	dev := CreateSMDDevice(0, [4]string{unit0Path, "", "", ""})
	defer dev.Destroy()
	dev.Mem = mem

	if rc := dev.Boot(dev.IdentCode); rc != 0 {
		t.Fatalf("Boot returned %d, want 0", rc)
	}

	got, _ := mem.ReadPhysical(0, false)
	requireEqualU16(t, "boot word 0", got, 0x1234)
}

func TestCreateSMDDeviceFactoryTable(t *testing.T) {
	if dev := CreateSMDDevice(-1, [4]string{}); dev != nil {
		t.Fatalf("CreateSMDDevice(-1) = %v, want nil", dev)
	}
	dev := CreateSMDDevice(2, [4]string{})
	defer dev.Destroy()
	if dev.StartAddr != 0o540 || dev.IdentCode != 0o23 {
		t.Fatalf("CreateSMDDevice(2) = %+v, want SMD 540 at 0o540", dev)
	}
}

// TestSMDLegacyAddressingUsesControlWordBitsForHighAddress exercises
// the no-flip-flop BIG_DISC/ECC_DISC path: a single LoadMemoryAddress
// write lands the full 16-bit core address directly (no second write
// needed for a high half), and the two high address bits come from
// control-word bits 5-6 instead.
func TestSMDLegacyAddressingUsesControlWordBitsForHighAddress(t *testing.T) {
	dev := CreateLegacySMDDevice(2, [4]string{})
	defer dev.Destroy()

	// Control-word bits 5-6 set address bits 16-17 atomically with the
	// rest of the control word, no register-multiplex dance required.
	dev.Write(dev.StartAddr+smdLoadControlWord, smdCtrlAddressBit16|smdCtrlAddressBit17)

	s := smdOf(dev)
	if s.regs.coreAddressHiBits != 0b11 {
		t.Fatalf("coreAddressHiBits = %#o, want 0b11 from control-word bits 5-6", s.regs.coreAddressHiBits)
	}

	// A single LoadMemoryAddress write sets the full low address; a
	// flip-flop controller would instead treat this as only the first
	// of two halves.
	dev.Write(dev.StartAddr+smdLoadMemoryAddress, 0x1234)
	if s.regs.coreAddress != 0x1234 || s.regs.mawFlipFlop {
		t.Fatalf("legacy LoadMemoryAddress = %+v, want coreAddress=0x1234 and no flip-flop toggle", s.regs)
	}

	// A single LoadWordCounter write likewise sets the full counter
	// immediately, with no high-half companion write.
	dev.Write(dev.StartAddr+smdLoadWordCounter, 4)
	if s.regs.wordCounter != 4 || s.regs.wcwFlipFlop {
		t.Fatalf("legacy LoadWordCounter = %+v, want wordCounter=4 and no flip-flop toggle", s.regs)
	}
}
