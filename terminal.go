// terminal.go - Terminal device (C4): both a bus device (registers at
// addr_base..addr_base+7) and a character stream endpoint exposed to the
// environment through Char.Output / TerminalQueueKeyCode.

package main

import "fmt"

// MaxTicks gates how often the input tick checks the software input
// queue for new characters.
const MaxTicks = 100

// TerminalQueueSize bounds the software input queue (QueueKeyCode).
const TerminalQueueSize = 256

// IODelayTerminal is the write-completion delay, in ticks.
const IODelayTerminal = 100

const (
	termReadInputData        = 0
	termWriteNoOp             = 1
	termReadInputStatus       = 2
	termWriteInputControl     = 3
	termReadReturn0           = 4
	termWriteData             = 5
	termReadOutputStatus      = 6
	termWriteSetOutputControl = 7
)

// Input status register bits (IOX offset 2).
const (
	inStatusIE             = 1 << 0
	inStatusDeviceActivated = 1 << 2
	inStatusRFT            = 1 << 3
	inStatusErrorOr        = 1 << 4
	inStatusFraming        = 1 << 5
	inStatusParity         = 1 << 6
	inStatusOverrun        = 1 << 7
	inStatusCarrierMissing = 1 << 11
)

// Input control register bits (IOX offset 3).
const (
	inCtrlIE              = 1 << 0
	inCtrlDeviceActivated  = 1 << 2
	inCtrlTestMode         = 1 << 3
	inCtrlDeviceClear      = 1 << 4
	inCtrlCharLenShift     = 11
	inCtrlCharLenMask      = 0x3 << inCtrlCharLenShift
	inCtrlStopBits         = 1 << 13
	inCtrlParityGeneration = 1 << 14
)

// Output status/control register bits (offsets 6/7).
const (
	outStatusIE  = 1 << 0
	outStatusRFT = 1 << 3
	outCtrlIE    = 1 << 0
)

// terminalState is the private per-instance data.
type terminalState struct {
	uartInputBuf uint16
	checkTick    int

	queue      [TerminalQueueSize]byte
	queueHead  int
	queueTail  int
	queueCount int

	inputStatus  uint16
	inputControl uint16
	outputStatus uint16
	outputCtrl   uint16
}

func termOf(dev *Device) *terminalState {
	return dev.Data.(*terminalState)
}

// NewTerminalDevice builds a Terminal controller. name is stored as the
// device's MemoryName.
func NewTerminalDevice(startAddr uint32, identCode, logicalDevice uint16, name string) *Device {
	dev := NewDevice(ClassCharacter, 0)
	dev.StartAddr = startAddr
	dev.EndAddr = startAddr + 7
	dev.IdentCode = identCode
	dev.LogicalDevice = logicalDevice
	dev.InterruptLevel = LevelTermOut
	dev.MemoryName = name
	dev.DeviceType = "Terminal"
	dev.Data = &terminalState{}

	dev.Hooks = Hooks{
		Reset: termReset,
		Tick:  termTick,
		Read:  termRead,
		Write: termWrite,
		Ident: termIdent,
	}
	termReset(dev)
	return dev
}

func termReset(dev *Device) {
	s := termOf(dev)
	s.inputStatus = inStatusDeviceActivated
	s.outputStatus = outStatusRFT
	dev.ClearInterrupt(LevelTermInput)
	dev.ClearInterrupt(LevelTermOut)
}

// termTick checks the software input queue every MaxTicks ticks and, if
// a character is waiting and the UART input register is free, dequeues
// and shapes it per character_length/parity_generation before making it
// visible to the read-input-data register.
func termTick(dev *Device) uint16 {
	dev.TickIODelay()

	s := termOf(dev)
	s.checkTick++
	if s.checkTick < MaxTicks {
		return dev.InterruptBits
	}
	s.checkTick = 0

	if s.queueCount == 0 || s.inputStatus&inStatusRFT != 0 || s.outputStatus&outStatusRFT == 0 {
		return dev.InterruptBits
	}

	value := uint16(s.queue[s.queueHead])
	s.queueHead = (s.queueHead + 1) % TerminalQueueSize
	s.queueCount--

	charLen := (s.inputControl & inCtrlCharLenMask) >> inCtrlCharLenShift
	switch charLen {
	case 0: // 8 bits
		value &= 0xFF
	case 1: // 7 bits
		value &= 0x7F
		if s.inputControl&inCtrlParityGeneration != 0 && OddParity(byte(value)) == 1 {
			value |= 1 << 7
		}
	case 2: // 6 bits
		value &= 0x3F
	case 3: // 5 bits
		value &= 0x1F
	}

	s.uartInputBuf = value
	s.inputStatus |= inStatusRFT
	dev.SetInterruptStatus(s.inputStatus&inStatusIE != 0 && s.inputStatus&inStatusRFT != 0, LevelTermInput)

	return dev.InterruptBits
}

func termRead(dev *Device, addr uint32) uint16 {
	s := termOf(dev)
	switch dev.RegisterAddress(addr) {
	case termReadInputData:
		value := s.uartInputBuf
		s.uartInputBuf = 0
		s.inputStatus &^= inStatusRFT
		dev.SetInterruptStatus(s.inputStatus&inStatusIE != 0 && s.inputStatus&inStatusRFT != 0, LevelTermInput)
		return value
	case termReadInputStatus:
		return s.inputStatus
	case termReadReturn0:
		return 0
	case termReadOutputStatus:
		return s.outputStatus
	default:
		return 0
	}
}

func termWrite(dev *Device, addr uint32, value uint16) {
	s := termOf(dev)
	switch dev.RegisterAddress(addr) {
	case termWriteNoOp:
		// no-op

	case termWriteInputControl:
		s.inputControl = value

		if value&inCtrlIE != 0 {
			s.inputStatus |= inStatusIE
		} else {
			s.inputStatus &^= inStatusIE
		}
		if value&inCtrlDeviceActivated != 0 {
			s.inputStatus |= inStatusDeviceActivated
		} else {
			s.inputStatus &^= inStatusDeviceActivated
		}
		dev.SetInterruptStatus(s.inputStatus&inStatusIE != 0 && s.inputStatus&inStatusRFT != 0, LevelTermInput)

		if value&inCtrlDeviceClear != 0 {
			s.inputStatus = inStatusDeviceActivated
			s.outputStatus = outStatusRFT
		}
		s.inputStatus &^= inStatusFraming | inStatusParity | inStatusOverrun

	case termWriteData:
		termWriteData_(dev, s, value)

	case termWriteSetOutputControl:
		s.outputCtrl = value
		if value&outCtrlIE != 0 {
			s.outputStatus |= outStatusIE
		} else {
			s.outputStatus &^= outStatusIE
		}
		dev.SetInterruptStatus(s.outputStatus&outStatusIE != 0 && s.outputStatus&outStatusRFT != 0, LevelTermOut)
	}
}

func termWriteData_(dev *Device, s *terminalState, value uint16) {
	c := byte(value) &^ 0x80

	s.outputStatus &^= outStatusRFT
	dev.SetInterruptStatus(s.outputStatus&outStatusIE != 0 && s.outputStatus&outStatusRFT != 0, LevelTermOut)

	if s.inputControl&inCtrlTestMode != 0 {
		TerminalQueueKeyCode(dev, c)
	} else if dev.Char.Output != nil {
		dev.Char.Output(dev, c)
	} else {
		fmt.Printf("%c", c)
	}

	dev.QueueIODelay(IODelayTerminal, termWriteEnd, 0, LevelTermOut)
}

func termWriteEnd(dev *Device, _ int) bool {
	s := termOf(dev)
	s.outputStatus |= outStatusRFT
	s.checkTick = 0
	active := s.outputStatus&outStatusIE != 0 && s.outputStatus&outStatusRFT != 0
	dev.SetInterruptStatus(active, LevelTermOut)
	return false
}

// termIdent clears IE for the side owning level (12=input, 10=output),
// clears the pending bit, and returns the ident code.
func termIdent(dev *Device, level uint16) uint16 {
	if dev.InterruptBits&(1<<level) == 0 {
		return 0
	}
	s := termOf(dev)
	switch level {
	case LevelTermInput:
		s.inputStatus &^= inStatusIE
	case LevelTermOut:
		s.outputStatus &^= outStatusIE
	}
	dev.SetInterruptStatus(false, level)
	return dev.IdentCode
}

// TerminalQueueKeyCode appends a keystroke to the software input queue,
// setting overrun and dropping the byte if the queue is full.
func TerminalQueueKeyCode(dev *Device, keycode byte) {
	s := termOf(dev)
	if s.queueCount >= TerminalQueueSize {
		s.inputStatus |= inStatusOverrun
		return
	}
	s.queue[s.queueTail] = keycode
	s.queueTail = (s.queueTail + 1) % TerminalQueueSize
	s.queueCount++
}

type terminalDefinition struct {
	addrBase      uint32
	identCode     uint16
	logicalDevice uint16
	name          string
}

// terminalFactoryTable is the full 52-entry table. Thumbwheel indexes
// this table directly (0-based, see SPEC_FULL.md Part E resolution on
// terminal thumbwheel indexing): TW0 is row 0, the console.
var terminalFactoryTable = []terminalDefinition{
	{0o300, 0o01, 0o01, "CONSOLE TERMINAL - TERMINAL 1"},
	{0o310, 0o05, 0o11, "TERMINAL 2/ TET15"},
	{0o320, 0o06, 0o42, "TERMINAL 3/ TET14"},
	{0o330, 0o07, 0o43, "TERMINAL 4/ TET15"},
	{0o340, 0o44, 0o44, "TERMINAL 5/ TET12"},
	{0o350, 0o45, 0o45, "TERMINAL 6/ TET11"},
	{0o360, 0o46, 0o46, "TERMINAL 7/ TET10"},
	{0o370, 0o47, 0o47, "TERMINAL 8/ TET9"},

	{0o1300, 0o50, 0o60, "TERMINAL 9"},
	{0o1310, 0o51, 0o61, "TERMINAL 10"},
	{0o1320, 0o52, 0o62, "TERMINAL 11"},
	{0o1330, 0o53, 0o63, "TERMINAL 12"},
	{0o1340, 0o54, 0o64, "TERMINAL 13"},
	{0o1350, 0o55, 0o65, "TERMINAL 14"},
	{0o1360, 0o56, 0o66, "TERMINAL 15"},
	{0o1370, 0o57, 0o67, "TERMINAL 16"},

	{0o200, 0o60, 7, "TERMINAL 17"},
	{0o210, 0o61, 0o17, "TERMINAL 18"},
	{0o220, 0o62, 0o52, "TERMINAL 19"},
	{0o230, 0o63, 0o53, "TERMINAL 20"},
	{0o240, 0o64, 0o54, "TERMINAL 21"},
	{0o250, 0o65, 0o55, "TERMINAL 22"},
	{0o260, 0o66, 0o56, "TERMINAL 23"},
	{0o270, 0o67, 0o57, "TERMINAL 24"},

	{0o1200, 0o70, 0o70, "TERMINAL 25"},
	{0o1210, 0o71, 0o71, "TERMINAL 26"},
	{0o1220, 0o72, 0o72, "TERMINAL 27"},
	{0o1230, 0o73, 0o73, "TERMINAL 28"},
	{0o1240, 0o74, 0o74, "TERMINAL 29/PHOTOS.1"},
	{0o1250, 0o75, 0o75, "TERMINAL 30/PHOTOS.2"},
	{0o1260, 0o76, 0o76, "TERMINAL 31/PHOTOS.3"},
	{0o1270, 0o77, 0o77, "TERMINAL 32/PHOTOS.4"},

	{0o640, 0o124, 0o1040, "TERMINAL 33"},
	{0o650, 0o125, 0o1041, "TERMINAL 34"},
	{0o660, 0o126, 0o1042, "TERMINAL 35"},
	{0o670, 0o127, 0o1043, "TERMINAL 36"},

	{0o1100, 0o130, 0o1044, "TERMINAL 37"},
	{0o1110, 0o131, 0o1045, "TERMINAL 38"},
	{0o1120, 0o132, 0o1046, "TERMINAL 39"},
	{0o1130, 0o133, 0o1047, "TERMINAL 40"},
	{0o1140, 0o134, 0o1050, "TERMINAL 41"},
	{0o1150, 0o135, 0o1051, "TERMINAL 42"},
	{0o1160, 0o136, 0o1052, "TERMINAL 43"},
	{0o1170, 0o137, 0o1053, "TERMINAL 44"},

	{0o1400, 0o140, 0o1054, "TERMINAL 45"},
	{0o1410, 0o141, 0o1055, "TERMINAL 46"},
	{0o1420, 0o142, 0o1056, "TERMINAL 47"},
	{0o1430, 0o143, 0o1057, "TERMINAL 48"},

	{0o1500, 0o144, 0o1060, "TERMINAL 49"},
	{0o1510, 0o145, 0o1061, "TERMINAL 50"},
	{0o1520, 0o146, 0o1062, "TERMINAL 51"},
	{0o1530, 0o147, 0o1063, "TERMINAL 52"},
}

// CreateTerminalDevice is the C9 factory entry point for Terminal.
func CreateTerminalDevice(thumbwheel int) *Device {
	if thumbwheel < 0 || thumbwheel >= len(terminalFactoryTable) {
		return nil
	}
	def := terminalFactoryTable[thumbwheel]
	return NewTerminalDevice(def.addrBase, def.identCode, def.logicalDevice, def.name)
}
