package main

import "testing"

func TestInMemoryPhysicalMemoryReadWriteRoundTrip(t *testing.T) {
	mem := NewInMemoryPhysicalMemory(8)

	mem.WritePhysical(3, 0x1234, false)
	got, ok := mem.ReadPhysical(3, false)
	if !ok {
		t.Fatalf("ReadPhysical(3) reported out of range")
	}
	requireEqualU16(t, "ReadPhysical", got, 0x1234)
}

func TestInMemoryPhysicalMemoryOutOfRange(t *testing.T) {
	mem := NewInMemoryPhysicalMemory(8)

	if _, ok := mem.ReadPhysical(8, false); ok {
		t.Fatalf("ReadPhysical(8) should report out of range for an 8-word space")
	}

	mem.WritePhysical(8, 0xFFFF, false) // must not panic
	if _, ok := mem.ReadPhysical(8, false); ok {
		t.Fatalf("out-of-range write should not have extended the address space")
	}
}

func TestInMemoryPhysicalMemoryIgnoresPrivilegedFlag(t *testing.T) {
	mem := NewInMemoryPhysicalMemory(4)
	mem.WritePhysical(0, 0x5555, true)
	got, ok := mem.ReadPhysical(0, false)
	if !ok || got != 0x5555 {
		t.Fatalf("ReadPhysical(privileged=false) = (0x%04X, %v), want (0x5555, true)", got, ok)
	}
}
