// floppy_dma.go - Floppy DMA controller (C7): a command-block driven
// controller that reads its parameters and writes its status back via
// DMA against host physical memory, rather than through its own
// register file.

package main

import "os"

const (
	fdmaReadData       = 0
	fdmaReadStatus1    = 2
	fdmaLoadControl    = 3
	fdmaReadStatus2    = 4
	fdmaLoadPointerHi  = 5
	fdmaLoadPointerLo  = 7
)

// Command codes decoded from bits 0-5 of the command-block command word.
const (
	fdmaFuncReadData      = 0x00
	fdmaFuncWriteData     = 0x01
	fdmaFuncFindEOF       = 0x02
	fdmaFuncWriteEOF      = 0x05
	fdmaFuncFormatFloppy  = 0x21
	fdmaFuncReadFormat    = 0x22
	fdmaFuncReadDeleted   = 0x23
	fdmaFuncWriteDeleted  = 0x24
	fdmaFuncCopyFloppy    = 0x2C
	fdmaFuncFormatTrack   = 0x2D
	fdmaFuncCheckFloppy   = 0x2E
	fdmaFuncIdentify      = 0x38
)

const (
	fdmaErrOK  = 0
	fdmaErrCRC = 5
)

// Status register 1 bits.
const (
	fdmaS1InterruptEnabled = 1 << 1
	fdmaS1DeviceActive     = 1 << 2
	fdmaS1RFT              = 1 << 3
	fdmaS1InclusiveOr      = 1 << 4
	fdmaS1DeletedRecord    = 1 << 5
	fdmaS1Retry            = 1 << 6
	fdmaS1HardError        = 1 << 7
	fdmaS1ErrorCodeShift   = 8
	fdmaS1ErrorCodeMask    = 0x7F << fdmaS1ErrorCodeShift
	fdmaS1DualDensity      = 1 << 15
)

// Control word bits.
const (
	fdmaCtrlEnableInterrupt = 1 << 1
	fdmaCtrlAutoload        = 1 << 2
	fdmaCtrlTestMode        = 1 << 3
	fdmaCtrlDeviceClear     = 1 << 4
	fdmaCtrlEnableStreamer  = 1 << 5
	fdmaCtrlExecuteCommand  = 1 << 8
	fdmaCtrlTestDataShift   = 9
	fdmaCtrlTestDataMask    = 0x1F << fdmaCtrlTestDataShift
)

// IODelayFloppyDMA is the ticks-to-completion for DMA floppy commands,
// shared with the PIO controller's timing.
const IODelayFloppyDMA = IODelayFloppy

// floppyDMACommandBlock mirrors the 12-word structure read from and
// written back to ND-100 memory via DMA.
type floppyDMACommandBlock struct {
	commandWord        uint16
	diskAddress        uint16
	memoryAddressHi    uint16
	memoryAddressLo    uint16
	optionsWordCountHi uint16
	wordSectorCount    uint16
	status1            uint16
	status2            uint16
}

type floppyDMAState struct {
	stream   *os.File
	fileName string
	fileSize int64

	status1 uint16
	status2 uint16
	control uint16

	commandBlockAddress uint32
	cb                  floppyDMACommandBlock

	sector, track uint16
	drive         int
	command       int
	pointerHi     uint32
	pointerLo     uint32
}

func fdmaOf(dev *Device) *floppyDMAState {
	return dev.Data.(*floppyDMAState)
}

// NewFloppyDMADevice builds a Floppy DMA controller. path, if non-empty,
// is opened as the backing disk image.
func NewFloppyDMADevice(startAddr, endAddr uint32, identCode uint16, name, path string) *Device {
	dev := NewDevice(ClassBlock, 1024)
	dev.StartAddr = startAddr
	dev.EndAddr = endAddr
	dev.IdentCode = identCode
	dev.InterruptLevel = LevelFloppy
	dev.MemoryName = name
	dev.DeviceType = "Floppy DMA"

	s := &floppyDMAState{drive: -1, fileName: path}
	dev.Data = s
	if path != "" {
		if f, err := os.OpenFile(path, os.O_RDWR, 0o644); err == nil {
			s.stream = f
			if info, err := f.Stat(); err == nil {
				s.fileSize = info.Size()
			}
		}
	}

	dev.Hooks = Hooks{
		Reset:   fdmaReset,
		Tick:    fdmaTick,
		Read:    fdmaRead,
		Write:   fdmaWrite,
		Ident:   fdmaIdent,
		Destroy: fdmaDestroy,
	}
	return dev
}

func fdmaDestroy(dev *Device) {
	s := fdmaOf(dev)
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

func fdmaReset(dev *Device) {
	s := fdmaOf(dev)
	s.status1 = 0
	s.status2 = 0
	s.control = 0
	s.sector = 0
	s.track = 0
	s.drive = 0
	s.command = 0
	s.pointerHi = 0
	s.pointerLo = 0
}

func fdmaTick(dev *Device) uint16 {
	dev.TickIODelay()
	return dev.InterruptBits
}

// fdmaStatus1Value folds in the dual-density tag (this is a DMA, not a
// PIO, controller) and the inclusive-or summary bit before returning
// status register 1.
func fdmaStatus1Value(s *floppyDMAState) uint16 {
	s.status1 |= fdmaS1DualDensity
	if s.status1&(fdmaS1HardError|fdmaS1DeletedRecord|fdmaS1Retry) != 0 {
		s.status1 |= fdmaS1InclusiveOr
	} else {
		s.status1 &^= fdmaS1InclusiveOr
	}
	return s.status1
}

func fdmaRead(dev *Device, addr uint32) uint16 {
	s := fdmaOf(dev)
	switch dev.RegisterAddress(addr) {
	case fdmaReadData:
		return 1
	case fdmaReadStatus1:
		return fdmaStatus1Value(s)
	case fdmaReadStatus2:
		return s.status2
	default:
		return 0
	}
}

func fdmaWrite(dev *Device, addr uint32, value uint16) {
	s := fdmaOf(dev)
	switch dev.RegisterAddress(addr) {
	case fdmaLoadControl:
		s.control = value
		if value&fdmaCtrlEnableInterrupt != 0 {
			s.status1 |= fdmaS1InterruptEnabled
		} else {
			s.status1 &^= fdmaS1InterruptEnabled
		}

		if value&fdmaCtrlDeviceClear != 0 {
			s.drive = -1
			s.status1 |= fdmaS1RFT
		}

		dev.SetInterruptStatus(s.status1&fdmaS1InterruptEnabled != 0 && s.status1&fdmaS1RFT != 0, dev.InterruptLevel)

		switch {
		case value&fdmaCtrlAutoload != 0:
			fdmaExecuteAutoload(dev)
		case value&fdmaCtrlExecuteCommand != 0:
			if value&fdmaCtrlTestMode != 0 {
				// Test mode only exercises the test-data bits; nothing
				// is transferred.
			} else if value&fdmaCtrlEnableStreamer != 0 {
				// Streamer attachment is out of scope; acknowledged as
				// a no-op command.
			} else {
				fdmaExecuteGo(dev)
			}
		}

	case fdmaLoadPointerHi:
		s.pointerHi = uint32(value)

	case fdmaLoadPointerLo:
		s.pointerLo = uint32(value)
	}
}

func fdmaIdent(dev *Device, level uint16) uint16 {
	if dev.InterruptBits&(1<<level) == 0 {
		return 0
	}
	s := fdmaOf(dev)
	s.status1 &^= fdmaS1InterruptEnabled
	dev.SetInterruptStatus(false, level)
	return dev.IdentCode
}

func fdmaExecuteAutoload(dev *Device) {
	dev.QueueIODelay(IODelayFloppyDMA, fdmaAutoloadEnd, 0, dev.InterruptLevel)
}

func fdmaAutoloadEnd(dev *Device, _ int) bool {
	s := fdmaOf(dev)
	s.status1 &^= fdmaS1DeviceActive
	s.status1 |= fdmaS1RFT
	dev.SetInterruptStatus(s.status1&fdmaS1InterruptEnabled != 0 && s.status1&fdmaS1RFT != 0, dev.InterruptLevel)
	return false
}

// floppyDMAFormatTable maps the 2-bit format field from the command
// word to (bytes/sector, sectors/track).
var floppyDMAFormatTable = [4]struct{ bps, spt int }{
	{512, 18},
	{256, 18},
	{123, 18},
	{1024, 18},
}

// fdmaExecuteGo reads the 12-word command block via DMA, performs the
// requested transfer against the backing stream, and writes the status
// half of the block back via DMA, all before scheduling completion.
func fdmaExecuteGo(dev *Device) {
	s := fdmaOf(dev)

	s.commandBlockAddress = s.pointerLo | (s.pointerHi << 16)

	s.cb.commandWord = dev.DMARead(s.commandBlockAddress)
	s.cb.diskAddress = dev.DMARead(s.commandBlockAddress + 1)
	s.cb.memoryAddressHi = dev.DMARead(s.commandBlockAddress+2) & 0xFF
	s.cb.memoryAddressLo = dev.DMARead(s.commandBlockAddress + 3)
	memAddress := uint32(s.cb.memoryAddressLo) | (uint32(s.cb.memoryAddressHi) << 16)

	s.cb.optionsWordCountHi = dev.DMARead(s.commandBlockAddress + 4)
	isWordCount := s.cb.optionsWordCountHi&(1<<15) != 0
	s.cb.wordSectorCount = dev.DMARead(s.commandBlockAddress + 5)
	s.cb.status1 = dev.DMARead(s.commandBlockAddress + 6)

	wordCount := uint32(s.cb.wordSectorCount) | (uint32(s.cb.optionsWordCountHi&0xFF) << 16)

	s.command = int(s.cb.commandWord & 0o77)
	s.drive = int((s.cb.commandWord >> 6) & 0o3)
	format := int((s.cb.commandWord >> 8) & 0o3)

	row := floppyDMAFormatTable[format]
	dev.BlockSizeBytes = uint32(row.bps)

	wordsToTransfer := wordCount
	if !isWordCount {
		wordsToTransfer *= uint32(row.bps >> 1)
	}

	s.status1 &^= fdmaS1ErrorCodeMask
	s.status1 |= fdmaS1DeviceActive
	s.status1 &^= fdmaS1RFT
	dev.SetInterruptStatus(s.status1&fdmaS1InterruptEnabled != 0 && s.status1&fdmaS1RFT != 0, dev.InterruptLevel)

	s.cb.status1 = 0
	s.cb.status2 = uint16(s.drive) << 8
	var wordsTransferred uint32

	position := int64(s.cb.diskAddress) * int64(row.bps)

	fail := func() {
		s.status1 |= fdmaS1ErrorCodeMask & (fdmaErrCRC << fdmaS1ErrorCodeShift)
		s.status1 &^= fdmaS1DeviceActive
		s.status1 |= fdmaS1RFT
		dev.SetInterruptStatus(s.status1&fdmaS1InterruptEnabled != 0 && s.status1&fdmaS1RFT != 0, dev.InterruptLevel)
	}

	switch s.command {
	case fdmaFuncReadData:
		if s.stream == nil || s.drive < 0 {
			fail()
			return
		}
		if _, err := s.stream.Seek(position, 0); err != nil {
			fail()
			return
		}
		for wordsToTransfer > 0 {
			w, ok := IOReadWord(s.stream)
			if !ok {
				fail()
				return
			}
			dev.DMAWrite(memAddress, w)
			memAddress++
			wordsToTransfer--
			wordsTransferred++
		}

	case fdmaFuncWriteData:
		if s.stream == nil || s.drive < 0 {
			fail()
			return
		}
		if _, err := s.stream.Seek(position, 0); err != nil {
			fail()
			return
		}
		for wordsToTransfer > 0 {
			w := dev.DMARead(memAddress)
			if !IOWriteWord(s.stream, w) {
				fail()
				return
			}
			memAddress++
			wordsToTransfer--
			wordsTransferred++
		}

	case fdmaFuncReadFormat:
		switch {
		case s.fileSize == 315392:
			s.cb.status2 |= 0
		case s.fileSize >= 1261568:
			s.cb.status2 |= 0x3 | (1 << 2) | (1 << 3)
		}

	case fdmaFuncFindEOF, fdmaFuncWriteEOF, fdmaFuncFormatFloppy, fdmaFuncReadDeleted,
		fdmaFuncWriteDeleted, fdmaFuncCopyFloppy, fdmaFuncFormatTrack, fdmaFuncCheckFloppy,
		fdmaFuncIdentify:
		// Not implemented against a real medium; acknowledged with a
		// clean completion so SINTRAN's driver doesn't stall waiting
		// for a status this controller will never produce organically.

	default:
		// Unknown command code: fall through to the same
		// clean-completion path as the acknowledged-but-unimplemented
		// commands above.
	}

	s.cb.status1 = fdmaStatus1Value(s)
	dev.DMAWrite(s.commandBlockAddress+6, s.cb.status1)
	dev.DMAWrite(s.commandBlockAddress+7, s.cb.status2)
	dev.DMAWrite(s.commandBlockAddress+8, uint16((memAddress>>16)&0xFF))
	dev.DMAWrite(s.commandBlockAddress+9, uint16(memAddress&0xFFFF))
	dev.DMAWrite(s.commandBlockAddress+10, uint16((wordsTransferred>>16)&0xFF))
	dev.DMAWrite(s.commandBlockAddress+11, uint16(wordsTransferred&0xFFFF))

	dev.QueueIODelay(IODelayFloppyDMA, fdmaReadEnd, s.drive, dev.InterruptLevel)
}

func fdmaReadEnd(dev *Device, _ int) bool {
	s := fdmaOf(dev)
	s.status1 &^= fdmaS1DeviceActive
	s.status1 |= fdmaS1RFT
	s.cb.status1 = fdmaStatus1Value(s)
	dev.DMAWrite(s.commandBlockAddress+6, s.cb.status1)
	dev.SetInterruptStatus(s.status1&fdmaS1InterruptEnabled != 0 && s.status1&fdmaS1RFT != 0, dev.InterruptLevel)
	return false
}

var floppyDMAFactoryTable = []struct {
	startAddr, endAddr uint32
	identCode          uint16
	name               string
}{
	{0o1560, 0o1567, 0o21, "Floppy DMA 0"},
	{0o1570, 0o1577, 0o22, "Floppy DMA 1"},
}

// CreateFloppyDMADevice is the C9 factory entry point for Floppy DMA.
func CreateFloppyDMADevice(thumbwheel int, path string) *Device {
	if thumbwheel < 0 || thumbwheel >= len(floppyDMAFactoryTable) {
		return nil
	}
	row := floppyDMAFactoryTable[thumbwheel]
	return NewFloppyDMADevice(row.startAddr, row.endAddr, row.identCode, row.name, path)
}
