// floppy_pio.go - Floppy PIO controller (C6): an 8-register programmed
// I/O floppy drive with a one-hot command byte and an embedded boot
// PROM.

package main

import "os"

// IODelayFloppy is the ticks-to-completion for PIO floppy commands.
const IODelayFloppy = 300

const (
	fpioReadDataBuffer     = 0
	fpioWriteDataBuffer    = 1
	fpioReadStatus1        = 2
	fpioWriteControlWord   = 3
	fpioReadStatus2        = 4
	fpioWriteDriveAddress  = 5
	fpioReadTestData       = 6
	fpioWriteSector        = 7
)

// One-hot command bits, high byte of the control word (bits 8..15 of
// the 16-bit value become bits 0..7 here).
const (
	fpioCmdFormatTrack = iota
	fpioCmdWriteData
	fpioCmdWriteDeletedData
	fpioCmdReadID
	fpioCmdReadData
	fpioCmdSeek
	fpioCmdRecalibrate
	fpioCmdControlReset
	fpioCmdNone
)

// Status register 1 bits.
const (
	fpioStatus1IE             = 1 << 1
	fpioStatus1Busy           = 1 << 2
	fpioStatus1RFT            = 1 << 3
	fpioStatus1ErrorOr        = 1 << 4
	fpioStatus1DeletedRecord  = 1 << 5
	fpioStatus1ReadWriteDone  = 1 << 6
	fpioStatus1SeekComplete   = 1 << 7
	fpioStatus1Timeout        = 1 << 8
)

// Control word bits.
const (
	fpioCtrlIE              = 1 << 1
	fpioCtrlAutoload         = 1 << 2
	fpioCtrlTestMode         = 1 << 3
	fpioCtrlDeviceClear      = 1 << 4
	fpioCtrlClearBufferAddr  = 1 << 5
	fpioCtrlEnableTimeout    = 1 << 6
)

// Status register 2 bits.
const (
	fpioStatus2DriveNotReady = 1 << 8
	fpioStatus2WriteProtect  = 1 << 9
	fpioStatus2SectorMissing = 1 << 11
	fpioStatus2CRCError      = 1 << 12
	fpioStatus2DataOverrun   = 1 << 14
)

// Drive address register bits.
const (
	fpioDriveAddrModeBit       = 1 << 0
	fpioDriveAddrDriveShift    = 8
	fpioDriveAddrDriveMask     = 0x7 << fpioDriveAddrDriveShift
	fpioDriveAddrDeselect      = 1 << 11
	fpioDriveAddrFormatShift   = 14
	fpioDriveAddrFormatMask    = 0x3 << fpioDriveAddrFormatShift
)

// Sector register bits.
const (
	fpioSectorNumberShift = 8
	fpioSectorNumberMask  = 0x7F << fpioSectorNumberShift
	fpioSectorAutoInc     = 1 << 15
)

// floppyFormatTable maps format-select code to (bytes/sector, sectors/track).
var floppyFormatTable = [4]struct{ bps, spt int }{
	{128, 26},
	{128, 26},
	{256, 15},
	{512, 8},
}

// floppyPIOBootPROM is the embedded autoload boot sector, loaded into the
// data buffer verbatim when the autoload control bit is set.
var floppyPIOBootPROM = [388]byte{
	0xb1, 0x8d, 0x0a, 0x30, 0x30, 0x36, 0x30, 0x30, 0x30, 0x8d, 0x0a, 0xb1,
		0x36, 0xb4, 0x33, 0xb1, 0x36, 0x21, 0x0c, 0x00, 0x00, 0xb3, 0xf1, 0x00,
		0xb2, 0x03, 0xd2, 0x40, 0xa8, 0x00, 0xf1, 0xff, 0x08, 0x1b, 0x40, 0x1a,
		0xa8, 0x02, 0xa8, 0x03, 0xf3, 0x31, 0xa8, 0x1a, 0x48, 0x16, 0xcc, 0x69,
		0xf1, 0x00, 0xf2, 0x03, 0xc3, 0xb0, 0x68, 0x12, 0xb2, 0x03, 0xf3, 0x32,
		0xa8, 0x11, 0xcc, 0x4d, 0x68, 0x0e, 0xb3, 0xfc, 0xf3, 0x00, 0x4c, 0x00,
		0x0c, 0x00, 0xcd, 0x07, 0xcc, 0x7d, 0xb3, 0xfc, 0xd0, 0x05, 0xd0, 0x0d,
		0xa8, 0x23, 0x00, 0x00, 0x00, 0x11, 0x00, 0x05, 0x00, 0x02, 0x48, 0x1d,
		0xe8, 0xc3, 0xf2, 0x0d, 0xb8, 0x14, 0xf2, 0x0a, 0xb8, 0x12, 0xf2, 0x45,
		0xb8, 0x10, 0xf2, 0x52, 0xb8, 0x0e, 0xb8, 0x0d, 0xf2, 0x4f, 0xb8, 0x0b,
		0xf2, 0x52, 0xb8, 0x09, 0xf2, 0x20, 0xb8, 0x07, 0xcc, 0x7e, 0xb8, 0x05,
		0xf2, 0x20, 0xb8, 0x03, 0xd2, 0x08, 0xa8, 0xc6, 0xe8, 0xc6, 0xfa, 0x9d,
		0xa8, 0xfe, 0xcc, 0x75, 0xe8, 0xc5, 0xcc, 0x62, 0x48, 0x04, 0xf1, 0xfb,
		0x08, 0x49, 0xf1, 0x30, 0xeb, 0x73, 0x48, 0x4e, 0xeb, 0x75, 0x00, 0x00,
		0x00, 0x00, 0xeb, 0x72, 0xfa, 0x9d, 0xa8, 0xfe, 0xfa, 0xa5, 0xa8, 0x0a,
		0x08, 0x07, 0xeb, 0x74, 0xfa, 0x45, 0xa8, 0xf2, 0x08, 0x04, 0xf3, 0x33,
		0xa8, 0xcf, 0x00, 0x00, 0x00, 0x00, 0x48, 0x3d, 0xeb, 0x73, 0xeb, 0x72,
		0xfa, 0x9d, 0xa8, 0xfe, 0x48, 0x39, 0xeb, 0x77, 0x48, 0x38, 0xeb, 0x73,
		0xeb, 0x72, 0xfa, 0x15, 0xa8, 0xfe, 0xfa, 0x25, 0xa8, 0x20, 0xf1, 0x20,
		0xeb, 0x73, 0xb8, 0x32, 0xf2, 0x21, 0x70, 0x2e, 0xc4, 0x2e, 0xa8, 0x04,
		0xcc, 0x4d, 0x08, 0x16, 0xa8, 0xf9, 0xb8, 0x1d, 0xcc, 0x6b, 0xb8, 0x1b,
		0xcc, 0x6f, 0xcc, 0x41, 0xb8, 0x18, 0xcc, 0x29, 0x09, 0x00, 0xcd, 0x03,
		0xcc, 0x87, 0xc0, 0x07, 0xa8, 0xfa, 0xb8, 0x11, 0xcd, 0x8d, 0xb3, 0x07,
		0xeb, 0x70, 0x70, 0x19, 0xc0, 0x05, 0xd2, 0x00, 0xaa, 0x01, 0x00, 0x00,
		0x08, 0xd1, 0xeb, 0x74, 0x08, 0xd0, 0x40, 0x04, 0xa8, 0xbb, 0xf3, 0x34,
		0xa8, 0x99, 0x00, 0x00, 0xeb, 0x70, 0xdd, 0x08, 0xcc, 0x6e, 0xeb, 0x70,
		0x70, 0x08, 0xcb, 0x35, 0xcc, 0x62, 0xc0, 0x01, 0x40, 0x00, 0x01, 0x00,
		0x10, 0x00, 0x00, 0x7f, 0x00, 0xff, 0x10, 0x14, 0xcc, 0x41, 0x50, 0x13,
		0xeb, 0x70, 0x70, 0x12, 0xc4, 0x35, 0xa8, 0xfd, 0x08, 0x0c, 0x68, 0x0f,
		0xb1, 0x07, 0x68, 0x0e, 0xb0, 0x05, 0x60, 0x0c, 0xdc, 0x83, 0xcb, 0x29,
		0xa8, 0xf4, 0x48, 0x03, 0x50, 0x02, 0xcc, 0x62, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x0a, 0x00, 0x7f, 0x00, 0x30, 0x00, 0x08, 0x54, 0xd4, 0x00, 0x00,
		0xf1, 0x00, 0x00, 0x00,}

// floppyPIOState is the private per-instance data.
type floppyPIOState struct {
	stream        *os.File
	dataBuffer    [1024]uint16
	sector        uint16
	track         uint16
	bufferPointer uint16
	selectedDrive int
	bytesPerSector int
	sectorsPerTrack int
	testByte      byte
	sectorAutoIncrement bool
	testmodeByte  int

	status1       uint16
	control       uint16
	status2       uint16
	driveAddress  uint16
	sectorControl uint16
	command       int

	deletedSector [100][100]bool
}

func fpioOf(dev *Device) *floppyPIOState {
	return dev.Data.(*floppyPIOState)
}

// NewFloppyPIODevice builds a Floppy PIO controller. path, if non-empty,
// is opened as the backing disk image.
func NewFloppyPIODevice(startAddr, endAddr uint32, identCode uint16, name, path string) *Device {
	dev := NewDevice(ClassBlock, 1024)
	dev.StartAddr = startAddr
	dev.EndAddr = endAddr
	dev.IdentCode = identCode
	dev.InterruptLevel = LevelFloppy
	dev.MemoryName = name
	dev.DeviceType = "Floppy PIO"

	s := &floppyPIOState{selectedDrive: -1, command: fpioCmdNone}
	if path != "" {
		if f, err := os.OpenFile(path, os.O_RDWR, 0o644); err == nil {
			s.stream = f
		}
	}
	dev.Data = s

	dev.Hooks = Hooks{
		Reset:   fpioReset,
		Tick:    fpioTick,
		Read:    fpioRead,
		Write:   fpioWrite,
		Ident:   fpioIdent,
		Destroy: fpioDestroy,
	}
	fpioReset(dev)
	return dev
}

func fpioDestroy(dev *Device) {
	s := fpioOf(dev)
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

func fpioReset(dev *Device) {
	s := fpioOf(dev)
	s.status1 |= fpioStatus1RFT
	s.bufferPointer = 0
	s.testmodeByte = 0
	dev.InterruptBits = 0
	s.selectedDrive = -1
}

func fpioTick(dev *Device) uint16 {
	dev.TickIODelay()
	return dev.InterruptBits
}

func fpioRead(dev *Device, addr uint32) uint16 {
	s := fpioOf(dev)
	switch dev.RegisterAddress(addr) {
	case fpioReadDataBuffer:
		value := s.dataBuffer[s.bufferPointer]
		s.bufferPointer = (s.bufferPointer + 1) & 0x3FF
		return value

	case fpioReadStatus1:
		if s.status2 != 0 {
			s.status1 |= fpioStatus1ErrorOr
		}
		return s.status1

	case fpioReadStatus2:
		return s.status2

	case fpioReadTestData:
		if s.control&fpioCtrlTestMode == 0 {
			return 0
		}
		val := s.dataBuffer[s.bufferPointer]
		if s.testmodeByte > 0 {
			val = (val & 0xFF00) | uint16(s.testByte)
			s.dataBuffer[s.bufferPointer] = val
			s.bufferPointer = (s.bufferPointer + 1) & 0x3FF
			s.testmodeByte = 0
		} else {
			val = (val & 0x00FF) | (uint16(s.testByte) << 8)
			s.dataBuffer[s.bufferPointer] = val
			s.testmodeByte++
		}
		return val

	default:
		return 0
	}
}

func fpioWrite(dev *Device, addr uint32, value uint16) {
	s := fpioOf(dev)
	switch dev.RegisterAddress(addr) {
	case fpioWriteDataBuffer:
		s.dataBuffer[s.bufferPointer] = value
		s.bufferPointer = (s.bufferPointer + 1) & 0x3FF

	case fpioWriteControlWord:
		s.control = value
		if value&fpioCtrlIE != 0 {
			s.status1 |= fpioStatus1IE
		} else {
			s.status1 &^= fpioStatus1IE
		}

		if value&fpioCtrlAutoload != 0 {
			s.track = 0
			s.sector = 1
			s.bufferPointer = 0
			s.status1 |= fpioStatus1RFT
			for i, b := range floppyPIOBootPROM {
				s.dataBuffer[i] = uint16(b)
			}
		}

		if value&fpioCtrlDeviceClear != 0 {
			s.selectedDrive = -1
			s.bufferPointer = 0
			s.status1 |= fpioStatus1RFT
			s.status2 = 0
		}

		if value&fpioCtrlClearBufferAddr != 0 {
			s.bufferPointer = 0
			s.status1 |= fpioStatus1RFT
		}

		if value&0xFF00 != 0 {
			s.status1 |= fpioStatus1Busy
			tmp := int(value>>8) & 0xFF
			s.command = fpioCmdNone
			for i := 0; i < 8; i++ {
				if tmp&(1<<i) != 0 {
					s.command = i
					break
				}
			}
			fpioExecuteGo(dev, s.command)
		}

		dev.SetInterruptStatus(s.status1&fpioStatus1IE != 0 && s.status1&fpioStatus1RFT != 0, dev.InterruptLevel)

	case fpioWriteDriveAddress:
		s.driveAddress = value
		if value&fpioDriveAddrModeBit != 0 {
			s.selectedDrive = int((value & fpioDriveAddrDriveMask) >> fpioDriveAddrDriveShift)
			if value&fpioDriveAddrDeselect != 0 {
				s.selectedDrive = -1
			}
			format := int((value & fpioDriveAddrFormatMask) >> fpioDriveAddrFormatShift)
			s.bytesPerSector = floppyFormatTable[format].bps
			s.sectorsPerTrack = floppyFormatTable[format].spt
		} else {
			difference := int(value>>8) & 0x7F
			moveIn := (value>>15)&1 != 0
			track := int(s.track)
			if moveIn {
				track += difference
			} else {
				track -= difference
			}
			if track < 0 {
				track = 0
			}
			if track > 76 {
				track = 76
			}
			s.track = uint16(track)
		}

	case fpioWriteSector:
		if s.control&fpioCtrlTestMode != 0 {
			s.testByte = byte(value >> 8)
		} else {
			s.sectorControl = value
			s.sector = (value & fpioSectorNumberMask) >> fpioSectorNumberShift
			s.sectorAutoIncrement = value&fpioSectorAutoInc != 0
		}
	}
}

func fpioIdent(dev *Device, level uint16) uint16 {
	if dev.InterruptBits&(1<<level) == 0 {
		return 0
	}
	s := fpioOf(dev)
	s.status1 &^= fpioStatus1IE
	dev.SetInterruptStatus(false, level)
	return dev.IdentCode
}

func fpioSectorDeleted(s *floppyPIOState, sector, track int) bool {
	if track < 0 || track >= 100 || sector <= 0 || sector > 100 {
		return false
	}
	return s.deletedSector[track][sector-1]
}

func fpioSetSectorDeleted(s *floppyPIOState, sector, track int, deleted bool) {
	if track < 0 || track >= 100 || sector <= 0 || sector > 100 {
		return
	}
	s.deletedSector[track][sector-1] = deleted
}

// fpioExecuteGo runs the command synchronously against the backing
// stream, then schedules a completion callback IODELAY_FLOPPY ticks out.
func fpioExecuteGo(dev *Device, command int) {
	s := fpioOf(dev)
	s.status2 = 0

	transferWordCount := s.bytesPerSector >> 1
	s.status1 &^= fpioStatus1RFT | fpioStatus1ReadWriteDone | fpioStatus1SeekComplete | fpioStatus1DeletedRecord
	s.status2 &^= fpioStatus2WriteProtect

	if s.sector <= 0 {
		s.sector = 1
	}
	if int(s.sector) > s.sectorsPerTrack {
		s.status2 |= fpioStatus2SectorMissing
		s.status1 |= fpioStatus1RFT
		s.status1 &^= fpioStatus1Busy
		return
	}

	unit := s.selectedDrive
	if s.stream == nil || s.selectedDrive < 0 {
		s.status2 |= fpioStatus2DriveNotReady
		s.status1 &^= fpioStatus1Busy
		return
	}

	position := int64((int(s.sector)-1)*s.bytesPerSector + int(s.track)*s.bytesPerSector*s.sectorsPerTrack)

	switch command {
	case fpioCmdFormatTrack:
		if s.status2&fpioStatus2WriteProtect != 0 {
			s.status1 &^= fpioStatus1Busy
			s.status1 |= fpioStatus1RFT
			return
		}
		formatPos := int64(s.bytesPerSector + int(s.track)*s.bytesPerSector*s.sectorsPerTrack)
		if _, err := s.stream.Seek(formatPos, 0); err != nil {
			s.status2 |= fpioStatus2SectorMissing
			s.status1 &^= fpioStatus1Busy
			s.status1 |= fpioStatus1RFT
			return
		}
		for sec := 1; sec <= s.sectorsPerTrack; sec++ {
			words := s.bytesPerSector >> 1
			for words > 0 {
				if !IOWriteWord(s.stream, 0xAAFF) {
					s.status2 |= fpioStatus2DriveNotReady
					s.status1 &^= fpioStatus1Busy
					return
				}
				words--
			}
			fpioSetSectorDeleted(s, sec, int(s.track), false)
		}
		dev.QueueIODelay(IODelayFloppy, fpioReadEnd, unit, dev.InterruptLevel)

	case fpioCmdWriteData:
		if s.status2&fpioStatus2WriteProtect != 0 {
			s.status1 &^= fpioStatus1Busy
			s.status1 |= fpioStatus1RFT
			return
		}
		if _, err := s.stream.Seek(position, 0); err != nil {
			s.status2 |= fpioStatus2SectorMissing
			s.status1 &^= fpioStatus1Busy
			return
		}
		for transferWordCount > 0 {
			w := s.dataBuffer[s.bufferPointer]
			s.bufferPointer = (s.bufferPointer + 1) & 0x3FF
			if !IOWriteWord(s.stream, w) {
				s.status2 |= fpioStatus2DriveNotReady
				s.status1 &^= fpioStatus1Busy
				return
			}
			transferWordCount--
		}
		fpioSetSectorDeleted(s, int(s.sector), int(s.track), false)
		dev.QueueIODelay(IODelayFloppy, fpioReadEnd, unit, dev.InterruptLevel)

	case fpioCmdWriteDeletedData:
		if s.status2&fpioStatus2WriteProtect != 0 {
			s.status1 &^= fpioStatus1Busy
			s.status1 |= fpioStatus1RFT
			return
		}
		fpioSetSectorDeleted(s, int(s.sector), int(s.track), true)
		if _, err := s.stream.Seek(position, 0); err != nil {
			s.status2 |= fpioStatus2SectorMissing
			s.status1 &^= fpioStatus1Busy
			return
		}
		for transferWordCount > 0 {
			w := s.dataBuffer[s.bufferPointer]
			s.bufferPointer = (s.bufferPointer + 1) & 0x3FF
			if !IOWriteWord(s.stream, w) {
				s.status2 |= fpioStatus2DriveNotReady
				s.status1 &^= fpioStatus1Busy
				return
			}
			transferWordCount--
		}
		dev.QueueIODelay(IODelayFloppy, fpioReadEnd, unit, dev.InterruptLevel)

	case fpioCmdReadID:
		if fpioSectorDeleted(s, int(s.sector), int(s.track)) {
			s.dataBuffer[0] = 0xFF00
			s.dataBuffer[1] = 0xFF02
		} else {
			s.dataBuffer[0] = s.track << 8
			s.dataBuffer[1] = s.sector << 8
		}
		s.bufferPointer = 0
		dev.QueueIODelay(IODelayFloppy, fpioReadEnd, unit, dev.InterruptLevel)

	case fpioCmdReadData:
		if _, err := s.stream.Seek(position, 0); err != nil {
			s.status2 |= fpioStatus2SectorMissing
			s.status1 &^= fpioStatus1Busy
			return
		}
		if s.sector <= 0 {
			s.status2 |= fpioStatus2SectorMissing
			s.status1 &^= fpioStatus1Busy
			return
		}
		if fpioSectorDeleted(s, int(s.sector), int(s.track)) {
			s.status1 |= fpioStatus1DeletedRecord
		}
		for transferWordCount > 0 {
			w, ok := IOReadWord(s.stream)
			if !ok {
				s.status2 |= fpioStatus2DriveNotReady
				s.status1 &^= fpioStatus1Busy
				return
			}
			s.dataBuffer[s.bufferPointer] = w
			s.bufferPointer = (s.bufferPointer + 1) & 0x3FF
			transferWordCount--
		}
		dev.QueueIODelay(IODelayFloppy, fpioReadEnd, unit, dev.InterruptLevel)

	case fpioCmdSeek:
		if s.sector <= 0 {
			s.status2 |= fpioStatus2SectorMissing
		}
		if _, err := s.stream.Seek(position, 0); err != nil {
			s.status2 |= fpioStatus2SectorMissing
			s.status1 &^= fpioStatus1Busy
			return
		}
		dev.QueueIODelay(IODelayFloppy, fpioSeekEnd, unit, dev.InterruptLevel)

	case fpioCmdRecalibrate:
		s.track = 0
		s.sector = 1
		dev.QueueIODelay(IODelayFloppy, fpioRecalibrateEnd, unit, dev.InterruptLevel)

	case fpioCmdControlReset:
		s.status1 &^= fpioStatus1Busy
	}
}

func fpioReadEnd(dev *Device, _ int) bool {
	s := fpioOf(dev)
	s.status1 &^= fpioStatus1Busy
	s.status1 |= fpioStatus1RFT | fpioStatus1ReadWriteDone
	if s.sectorAutoIncrement && int(s.sector) <= s.sectorsPerTrack {
		s.sector++
	}
	return s.status1&fpioStatus1IE != 0
}

func fpioSeekEnd(dev *Device, _ int) bool {
	s := fpioOf(dev)
	s.status1 &^= fpioStatus1Busy
	s.status1 |= fpioStatus1RFT | fpioStatus1SeekComplete
	return s.status1&fpioStatus1IE != 0
}

func fpioRecalibrateEnd(dev *Device, _ int) bool {
	return fpioSeekEnd(dev, 0)
}

var floppyPIOFactoryTable = []struct {
	startAddr, endAddr uint32
	identCode          uint16
	name               string
}{
	{0o1560, 0o1567, 0o21, "Floppy PIO 0"},
	{0o1570, 0o1577, 0o22, "Floppy PIO 1"},
}

// CreateFloppyPIODevice is the C9 factory entry point for Floppy PIO.
func CreateFloppyPIODevice(thumbwheel int, path string) *Device {
	if thumbwheel < 0 || thumbwheel >= len(floppyPIOFactoryTable) {
		return nil
	}
	row := floppyPIOFactoryTable[thumbwheel]
	return NewFloppyPIODevice(row.startAddr, row.endAddr, row.identCode, row.name, path)
}
