// papertape.go - Paper tape reader device (C5): a minimal read-only byte
// stream endpoint.

package main

import "os"

const (
	ptReadData    = 0
	ptWriteData   = 1
	ptReadStatus  = 2
	ptWriteControl = 3
)

const (
	ptStatusIE         = 1 << 0
	ptStatusReadActive = 1 << 2
	ptStatusRFT        = 1 << 3

	ptCtrlIE          = 1 << 0
	ptCtrlReadActive  = 1 << 2
	ptCtrlRFT         = 1 << 3
	ptCtrlDeviceClear = 1 << 4
)

// paperTapeState is the private per-instance data.
type paperTapeState struct {
	stream    *os.File
	charBuf   byte
	status    uint16
	control   uint16
}

func ptOf(dev *Device) *paperTapeState {
	return dev.Data.(*paperTapeState)
}

// NewPaperTapeDevice builds a paper-tape reader. path, if non-empty, is
// opened read-only as the backing tape; a missing or unopenable file
// leaves the device attached with no data (reads past EOF simply never
// set RFT), matching the original's "continue without a tape" behavior.
func NewPaperTapeDevice(startAddr, endAddr uint32, identCode, logicalDevice uint16, name, path string) *Device {
	dev := NewDevice(ClassStandard, 0)
	dev.StartAddr = startAddr
	dev.EndAddr = endAddr
	dev.IdentCode = identCode
	dev.LogicalDevice = logicalDevice
	dev.InterruptLevel = LevelTermInput
	dev.MemoryName = name
	dev.DeviceType = "Paper Tape"

	s := &paperTapeState{}
	if path != "" {
		if f, err := os.Open(path); err == nil {
			s.stream = f
		}
	}
	dev.Data = s

	dev.Hooks = Hooks{
		Reset:   ptReset,
		Tick:    ptTick,
		Read:    ptRead,
		Write:   ptWrite,
		Ident:   ptIdent,
		Destroy: ptDestroy,
	}
	return dev
}

func ptReset(dev *Device) {
	s := ptOf(dev)
	if s.stream != nil {
		_, _ = s.stream.Seek(0, 0)
	}
}

func ptTick(dev *Device) uint16 {
	dev.TickIODelay()
	return dev.InterruptBits
}

func ptDestroy(dev *Device) {
	s := ptOf(dev)
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

func ptRead(dev *Device, addr uint32) uint16 {
	s := ptOf(dev)
	switch dev.RegisterAddress(addr) {
	case ptReadData:
		s.status &^= ptStatusRFT
		return uint16(s.charBuf)
	case ptReadStatus:
		return s.status
	default:
		return 0
	}
}

func ptWrite(dev *Device, addr uint32, value uint16) {
	s := ptOf(dev)
	switch dev.RegisterAddress(addr) {
	case ptWriteData:
		// no-op: this is a reader, not a punch.
	case ptWriteControl:
		s.control = value
		if value&ptCtrlIE != 0 {
			s.status |= ptStatusIE
		} else {
			s.status &^= ptStatusIE
		}
		if value&ptCtrlReadActive != 0 {
			s.status |= ptStatusReadActive
		} else {
			s.status &^= ptStatusReadActive
		}
		if value&ptCtrlRFT != 0 {
			s.status |= ptStatusRFT
		} else {
			s.status &^= ptStatusRFT
		}

		if value&ptCtrlDeviceClear != 0 {
			s.status &^= ptStatusReadActive | ptStatusRFT
			s.charBuf = 0
		}

		dev.SetInterruptStatus(s.status&ptStatusIE != 0 && s.status&ptStatusRFT != 0, dev.InterruptLevel)

		if s.status&ptStatusReadActive != 0 {
			s.status &^= ptStatusRFT
			if b, ok := ptReadByte(s); ok {
				s.charBuf = b
				s.status |= ptStatusRFT
			}
			s.status &^= ptStatusReadActive
		}

		dev.SetInterruptStatus(s.status&ptStatusIE != 0 && s.status&ptStatusRFT != 0, dev.InterruptLevel)
	}
}

func ptReadByte(s *paperTapeState) (byte, bool) {
	if s.stream == nil {
		return 0, false
	}
	var buf [1]byte
	n, err := s.stream.Read(buf[:])
	if n != 1 || err != nil {
		return 0, false
	}
	return buf[0], true
}

func ptIdent(dev *Device, level uint16) uint16 {
	if dev.InterruptBits&(1<<level) == 0 {
		return 0
	}
	s := ptOf(dev)
	s.status &^= ptStatusIE
	dev.SetInterruptStatus(false, level)
	return dev.IdentCode
}

var paperTapeFactoryTable = []struct {
	startAddr, endAddr       uint32
	identCode, logicalDevice uint16
	name                     string
}{
	{0o400, 0o403, 2, 1, "PAPER TAPE 0"},
	{0o404, 0o407, 0o22, 2, "PAPER TAPE 1"},
}

// CreatePaperTapeDevice is the C9 factory entry point for paper tape.
// path names the backing byte stream; pass "" to create an unattached
// reader.
func CreatePaperTapeDevice(thumbwheel int, path string) *Device {
	if thumbwheel < 0 || thumbwheel >= len(paperTapeFactoryTable) {
		return nil
	}
	row := paperTapeFactoryTable[thumbwheel]
	return NewPaperTapeDevice(row.startAddr, row.endAddr, row.identCode, row.logicalDevice, row.name, path)
}
