// rtc.go - RTC device (C3): a 20ms tick source with three fixed
// instances on the bus.

package main

// rtcTicksPerQuantum is the tick-per-quantum reload value, "adjusted for
// stability" per the original. Kept as a var rather than a const so it
// can be recalibrated without touching call sites.
var rtcTicksPerQuantum uint16 = 10550

const (
	rtcStatusIE      = 1 << 0
	rtcStatusExtHold = 1 << 1
	rtcStatusRFT     = 1 << 2

	rtcControlIE            = 1 << 0
	rtcControlRestart        = 1 << 1
	rtcControlClearRFT       = 1 << 2
	rtcControlClearExtHold   = 1 << 3
)

// rtcState is the private per-instance data behind Device.Data.
type rtcState struct {
	counter uint16
	status  uint16
	control uint16
}

// rtcOf type-asserts the device's private data; panics are impossible
// by construction since every RTC device is built through NewRTCDevice.
func rtcOf(dev *Device) *rtcState {
	return dev.Data.(*rtcState)
}

// NewRTCDevice builds an RTC controller at the given address range,
// ident code and logical device number. The interrupt level is always
// 13 (LevelRTC) on this bus.
func NewRTCDevice(startAddr, endAddr uint32, identCode, logicalDevice uint16, name string) *Device {
	dev := NewDevice(ClassRTC, 0)
	dev.StartAddr = startAddr
	dev.EndAddr = endAddr
	dev.IdentCode = identCode
	dev.LogicalDevice = logicalDevice
	dev.InterruptLevel = LevelRTC
	dev.MemoryName = name
	dev.DeviceType = "RTC"
	dev.Data = &rtcState{}

	dev.Hooks = Hooks{
		Reset: rtcReset,
		Tick:  rtcTick,
		Read:  rtcRead,
		Write: rtcWrite,
		Ident: rtcIdent,
	}
	rtcReset(dev)
	return dev
}

func rtcReset(dev *Device) {
	s := rtcOf(dev)
	s.counter = rtcTicksPerQuantum
	s.status = 0
	s.control = 0
	dev.ClearInterrupt(LevelRTC)
}

// rtcTick decrements the counter once per tick, so it reaches zero once
// per 20ms quantum. On reaching zero it sets RFT, optionally raises
// level 13, and reloads the counter.
func rtcTick(dev *Device) uint16 {
	s := rtcOf(dev)
	s.counter--
	if s.counter != 0 {
		return 0
	}
	s.status |= rtcStatusRFT
	if s.status&rtcStatusIE != 0 {
		dev.GenerateInterrupt(LevelRTC)
	}
	s.counter = rtcTicksPerQuantum
	return dev.InterruptBits
}

func rtcRead(dev *Device, addr uint32) uint16 {
	s := rtcOf(dev)
	switch dev.RegisterAddress(addr) {
	case 0:
		return s.counter
	default:
		return 0
	}
}

func rtcWrite(dev *Device, addr uint32, value uint16) {
	s := rtcOf(dev)
	switch dev.RegisterAddress(addr) {
	case 1:
		s.counter = rtcTicksPerQuantum
		s.status &^= rtcStatusRFT
		dev.ClearInterrupt(LevelRTC)
	case 2:
		rtcWriteControl(dev, value)
	}
}

func rtcWriteControl(dev *Device, value uint16) {
	s := rtcOf(dev)
	s.control = value

	if value&rtcControlIE != 0 {
		s.status |= rtcStatusIE
	} else {
		s.status &^= rtcStatusIE
	}

	if value&rtcControlClearRFT != 0 {
		s.status &^= rtcStatusRFT
		dev.ClearInterrupt(LevelRTC)
	}
	if value&rtcControlRestart != 0 {
		s.counter = rtcTicksPerQuantum
	}
	if value&rtcControlClearExtHold != 0 {
		s.status &^= rtcStatusExtHold
	}
}

// rtcIdent implements the standard IDENT contract: if the level bit is
// pending, reload the counter, clear this device's IE and the pending
// bit, and return the ident code.
func rtcIdent(dev *Device, level uint16) uint16 {
	s := rtcOf(dev)
	if dev.InterruptBits&(1<<level) == 0 {
		return 0
	}
	s.counter = rtcTicksPerQuantum
	s.status &^= rtcStatusIE
	dev.ClearInterrupt(level)
	return dev.IdentCode
}

// rtcFactoryTable holds the three fixed RTC instances per §6.
var rtcFactoryTable = []struct {
	startAddr, endAddr         uint32
	identCode, logicalDevice   uint16
	name                       string
}{
	{0o10, 0o13, 1, 1, "RTC 0"},
	{0o14, 0o17, 2, 2, "RTC 1"},
	{0o20, 0o23, 6, 3, "RTC 2"},
}

// CreateRTCDevice is the C9 factory entry point for RTC: thumbwheel
// selects a row of rtcFactoryTable, out-of-range returns nil.
func CreateRTCDevice(thumbwheel int) *Device {
	if thumbwheel < 0 || thumbwheel >= len(rtcFactoryTable) {
		return nil
	}
	row := rtcFactoryTable[thumbwheel]
	return NewRTCDevice(row.startAddr, row.endAddr, row.identCode, row.logicalDevice, row.name)
}
