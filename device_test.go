package main

import "testing"

func requireEqualU16(t *testing.T, name string, got, want uint16) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = 0x%04X, want 0x%04X", name, got, want)
	}
}

func TestNewDeviceClampsBlockSize(t *testing.T) {
	dev := NewDevice(ClassBlock, 0)
	requireEqualU16(t, "BlockSizeBytes", uint16(dev.BlockSizeBytes), uint16(defaultBlockSizeBytes))

	dev = NewDevice(ClassBlock, 1<<20)
	requireEqualU16(t, "BlockSizeBytes", uint16(dev.BlockSizeBytes), uint16(maxBlockSizeBytes))

	dev = NewDevice(ClassStandard, 0)
	requireEqualU16(t, "BlockSizeBytes", uint16(dev.BlockSizeBytes), 0)
}

func TestNilHooksAreNoOps(t *testing.T) {
	dev := NewDevice(ClassStandard, 0)

	dev.Reset()
	dev.Write(0, 0xFFFF)
	dev.Destroy()

	requireEqualU16(t, "Read", dev.Read(0), 0)
	requireEqualU16(t, "Ident", dev.Ident(11), 0)
	if got := dev.Boot(0); got != 0 {
		t.Fatalf("Boot = %d, want 0", got)
	}
}

func TestIsInAddressAndRegisterAddress(t *testing.T) {
	dev := &Device{StartAddr: 0o1560, EndAddr: 0o1567}

	if !dev.IsInAddress(0o1560) || !dev.IsInAddress(0o1567) {
		t.Fatalf("boundary addresses should be in range")
	}
	if dev.IsInAddress(0o1557) || dev.IsInAddress(0o1570) {
		t.Fatalf("addresses outside the range should not be in range")
	}
	if got := dev.RegisterAddress(0o1563); got != 3 {
		t.Fatalf("RegisterAddress = %d, want 3", got)
	}
}

func TestGenerateAndClearInterruptOnlyAcceptsBusLevels(t *testing.T) {
	dev := NewDevice(ClassStandard, 0)

	dev.GenerateInterrupt(9) // below range, ignored
	dev.GenerateInterrupt(14) // above range, ignored
	if dev.InterruptBits != 0 {
		t.Fatalf("InterruptBits = 0x%04X, want 0 after out-of-range levels", dev.InterruptBits)
	}

	dev.GenerateInterrupt(LevelRTC)
	if dev.InterruptBits&(1<<LevelRTC) == 0 {
		t.Fatalf("expected bit %d set", LevelRTC)
	}

	dev.ClearInterrupt(LevelRTC)
	if dev.InterruptBits != 0 {
		t.Fatalf("InterruptBits = 0x%04X, want 0 after clear", dev.InterruptBits)
	}

	dev.SetInterruptStatus(true, LevelFloppy)
	if dev.InterruptBits&(1<<LevelFloppy) == 0 {
		t.Fatalf("SetInterruptStatus(true) did not set bit %d", LevelFloppy)
	}
	dev.SetInterruptStatus(false, LevelFloppy)
	if dev.InterruptBits != 0 {
		t.Fatalf("SetInterruptStatus(false) did not clear bit %d", LevelFloppy)
	}
}

func TestQueueIODelayFiresAfterExactTickCount(t *testing.T) {
	dev := NewDevice(ClassStandard, 0)
	fired := 0
	dev.QueueIODelay(3, func(d *Device, param int) bool {
		fired++
		return true
	}, 0, LevelTermOut)

	dev.TickIODelay()
	dev.TickIODelay()
	if fired != 0 {
		t.Fatalf("callback fired early after %d ticks", 2)
	}

	dev.TickIODelay()
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1 after the third tick", fired)
	}
	if dev.InterruptBits&(1<<LevelTermOut) == 0 {
		t.Fatalf("expected interrupt level %d raised on completion", LevelTermOut)
	}
}

func TestTickIODelayDoesNotDoubleFireARequeuedCallback(t *testing.T) {
	dev := NewDevice(ClassStandard, 0)
	calls := 0
	var cb IODelayedCallback
	cb = func(d *Device, param int) bool {
		calls++
		if calls == 1 {
			d.QueueIODelay(1, cb, 0, 0)
		}
		return false
	}
	dev.QueueIODelay(1, cb, 0, 0)

	dev.TickIODelay()
	if calls != 1 {
		t.Fatalf("calls = %d after first tick, want 1", calls)
	}
	dev.TickIODelay()
	if calls != 2 {
		t.Fatalf("calls = %d after second tick, want 2", calls)
	}
}

func TestDMAReadWriteRoundTrip(t *testing.T) {
	mem := NewInMemoryPhysicalMemory(16)
	dev := NewDevice(ClassStandard, 0)
	dev.Mem = mem

	dev.DMAWrite(4, 0xBEEF)
	requireEqualU16(t, "DMARead", dev.DMARead(4), 0xBEEF)
	requireEqualU16(t, "DMARead out of range", dev.DMARead(100), 0)
}

func TestOddParity(t *testing.T) {
	cases := []struct {
		b    byte
		want uint8
	}{
		{0x00, 1}, // zero set bits: even, so parity bit makes it odd
		{0x01, 0}, // one set bit: already odd
		{0x03, 1}, // two set bits: even
		{0xFF, 1}, // eight set bits: even
	}
	for _, c := range cases {
		if got := OddParity(c.b); got != c.want {
			t.Fatalf("OddParity(0x%02X) = %d, want %d", c.b, got, c.want)
		}
	}
}

func TestIOWordRoundTripBigEndian(t *testing.T) {
	buf := make([]byte, 4)
	if !IOBufferWriteWord(buf, 0, 0x1234) {
		t.Fatalf("IOBufferWriteWord reported failure in bounds")
	}
	if buf[0] != 0x12 || buf[1] != 0x34 {
		t.Fatalf("buffer = %v, want big-endian 0x12 0x34", buf[:2])
	}
	requireEqualU16(t, "IOBufferReadWord", IOBufferReadWord(buf, 0), 0x1234)

	if IOBufferWriteWord(buf, 10, 0xFFFF) {
		t.Fatalf("IOBufferWriteWord should report failure out of bounds")
	}
	requireEqualU16(t, "IOBufferReadWord out of range", IOBufferReadWord(buf, 10), 0)
}
