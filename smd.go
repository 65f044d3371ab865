// smd.go - SMD disk controller (C8): a 4-unit, flip-flop multiplexed
// register file driving CHS-addressed transfers against host physical
// memory via DMA.

package main

import (
	"golang.org/x/sync/errgroup"
)

const (
	smdReadMemoryAddress  = 0
	smdLoadMemoryAddress  = 1
	smdReadSeekCondition  = 2
	smdLoadBlockAddress   = 3
	smdReadStatusRegister = 4
	smdLoadControlWord    = 5
	smdReadBlockAddress   = 6
	smdLoadWordCounter    = 7
)

// Device operation codes, control-word bits 11-14.
const (
	smdOpReadTransfer    = 0
	smdOpWriteTransfer   = 1
	smdOpReadParity      = 2
	smdOpCompareTransfer = 3
	smdOpInitiateSeek    = 4
	smdOpWriteFormat     = 5
	smdOpSeekComplete    = 6
	smdOpReturnToZero    = 7
	smdOpRunECC          = 8
	smdOpSelectRelease   = 9
)

// Status register bits.
const (
	smdStatusIE               = 1 << 0
	smdStatusErrorIE          = 1 << 1
	smdStatusActive           = 1 << 2
	smdStatusRFT              = 1 << 3
	smdStatusHardwareError    = 1 << 4
	smdStatusIllegalLoad      = 1 << 5
	smdStatusTimeout          = 1 << 6
	smdStatusHardwareError2   = 1 << 7
	smdStatusAddressMismatch  = 1 << 8
	smdStatusComparerError    = 1 << 10
	smdStatusDiskUnitNotReady = 1 << 13
	smdStatusOnCylinder       = 1 << 14
	smdStatusRegMultiplex     = 1 << 15
)

// Control word bits.
const (
	smdCtrlEnableInterruptNotActive = 1 << 0
	smdCtrlEnableInterruptOnErrors  = 1 << 1
	smdCtrlActive                   = 1 << 2
	smdCtrlTestMode                 = 1 << 3
	smdCtrlDeviceClear              = 1 << 4
	smdCtrlAddressBit16             = 1 << 5
	smdCtrlAddressBit17             = 1 << 6
	smdCtrlUnitSelectShift          = 7
	smdCtrlUnitSelectMask           = 0x7 << smdCtrlUnitSelectShift
	smdCtrlMarginalRecovery         = 1 << 10
	smdCtrlDeviceOpShift            = 11
	smdCtrlDeviceOpMask             = 0xF << smdCtrlDeviceOpShift
	smdCtrlRegMultiplex             = 1 << 15
)

// Seek condition register bits.
const (
	smdSeekCompleteMask     = 0xFF
	smdSeekUnitSelectedShift = 8
	smdSeekUnitSelectedMask  = 0x7 << smdSeekUnitSelectedShift
	smdSeekError             = 1 << 11
	smdSeekIs15MHz           = 1 << 12
)

// IODelaySMD is the ticks-to-completion for SMD transfer commands.
const IODelaySMD = 10

// SMDControllerType selects which physical SMD controller variant a
// device emulates. The legacy BIG_DISC/ECC_DISC controllers have no
// address flip-flops: the two high core-address bits come from the
// control word (bits 5-6) instead of a second LoadMemoryAddress write,
// and every load/read of the multiplexed registers goes straight to
// the non-multiplexed half.
type SMDControllerType int

const (
	SMDControllerBigDisc SMDControllerType = iota
	SMDControllerECCDisc
	SMDController10MHz
	SMDController15MHz
)

func (ct SMDControllerType) hasFlipFlops() bool {
	return ct == SMDController10MHz || ct == SMDController15MHz
}

type smdControllerRegs struct {
	controllerType SMDControllerType
	hasFlipFlops   bool

	wcwFlipFlop    bool
	wcrFlipFlop    bool
	wcEccwFlipFlop bool
	mawFlipFlop    bool
	marFlipFlop    bool

	selectedUnit      uint8
	blockAddressI     uint16
	blockAddressII    uint16
	coreAddress       uint16
	coreAddressHiBits uint16
	wordCounter       uint16
	wordCounterHI     uint16
	eccControl        uint16
	eccControlHI      uint16
	eccPattern        uint16
	eccCount          uint16

	disks        [4]*SMDDiskInfo
	selectedDisk *SMDDiskInfo
}

type smdState struct {
	status        uint16
	control       uint16
	seekCondition uint16
	regs          smdControllerRegs
}

func smdOf(dev *Device) *smdState {
	return dev.Data.(*smdState)
}

// NewSMDDevice builds an SMD controller with 4 units, emulating the
// 15MHz SMD interface (flip-flop-multiplexed registers) that the
// original factory function always selects. paths[i], if non-empty,
// names the backing image for unit i; the four are opened
// concurrently since each is an independent file and nothing depends
// on ordering between them.
func NewSMDDevice(startAddr uint32, identCode uint16, name string, paths [4]string) *Device {
	return NewSMDDeviceWithType(startAddr, identCode, name, paths, SMDController15MHz)
}

// NewSMDDeviceWithType builds an SMD controller of the given
// controller variant. See SMDControllerType for the legacy
// (no-flip-flop) addressing path this selects for BIG_DISC/ECC_DISC.
func NewSMDDeviceWithType(startAddr uint32, identCode uint16, name string, paths [4]string, controllerType SMDControllerType) *Device {
	dev := NewDevice(ClassBlock, 2048)
	dev.StartAddr = startAddr
	dev.EndAddr = startAddr + 7
	dev.IdentCode = identCode
	dev.InterruptLevel = LevelFloppy
	dev.MemoryName = name
	dev.DeviceType = "SMD"

	s := &smdState{}
	s.regs.controllerType = controllerType
	s.regs.hasFlipFlops = controllerType.hasFlipFlops()
	disks := [4]*SMDDiskInfo{}
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		i := i
		g.Go(func() error {
			disks[i] = NewSMDDiskInfo(uint8(i), SMDDisk75MB, paths[i])
			return nil
		})
	}
	_ = g.Wait()
	s.regs.disks = disks
	dev.Data = s

	dev.Hooks = Hooks{
		Reset:   smdReset,
		Tick:    smdTick,
		Read:    smdRead,
		Write:   smdWrite,
		Ident:   smdIdent,
		Boot:    smdBoot,
		Destroy: smdDestroy,
	}
	smdReset(dev)
	return dev
}

// smdDestroy releases the four backing files concurrently.
func smdDestroy(dev *Device) {
	s := smdOf(dev)
	var g errgroup.Group
	for _, d := range s.regs.disks {
		d := d
		if d == nil {
			continue
		}
		g.Go(func() error { return d.Close() })
	}
	_ = g.Wait()
}

func smdReset(dev *Device) {
	s := smdOf(dev)
	s.status = 0
	s.control = 0
	s.seekCondition = 0
	s.regs.blockAddressI = 0
	s.regs.blockAddressII = 0
	s.regs.coreAddress = 0
	s.regs.coreAddressHiBits = 0
	s.regs.wordCounter = 0
	s.regs.wordCounterHI = 0
	s.regs.selectedUnit = 0
	s.regs.selectedDisk = nil
}

func smdTick(dev *Device) uint16 {
	dev.TickIODelay()
	return dev.InterruptBits
}

func smdClearFlipFlops(r *smdControllerRegs) {
	r.wcwFlipFlop = false
	r.wcEccwFlipFlop = false
	r.wcrFlipFlop = false
	r.mawFlipFlop = false
	r.marFlipFlop = false
}

func smdRead(dev *Device, addr uint32) uint16 {
	s := smdOf(dev)
	r := &s.regs
	if r.selectedDisk == nil {
		return 0
	}

	switch dev.RegisterAddress(addr) {
	case smdReadMemoryAddress:
		if s.control&smdCtrlRegMultiplex != 0 {
			if !r.wcrFlipFlop || !r.hasFlipFlops {
				r.wcrFlipFlop = true
				return r.wordCounter
			}
			r.wcrFlipFlop = false
			return r.wordCounterHI
		}
		if !r.marFlipFlop || !r.hasFlipFlops {
			r.marFlipFlop = true
			return r.coreAddress
		}
		r.marFlipFlop = false
		return r.coreAddressHiBits

	case smdReadSeekCondition:
		if s.control&smdCtrlRegMultiplex != 0 {
			return r.eccCount
		}
		s.seekCondition &^= smdSeekUnitSelectedMask
		s.seekCondition |= (uint16(r.selectedUnit) << smdSeekUnitSelectedShift) & smdSeekUnitSelectedMask
		if r.hasFlipFlops {
			s.seekCondition |= smdSeekIs15MHz
		} else {
			s.seekCondition &^= smdSeekIs15MHz
		}
		return s.seekCondition

	case smdReadStatusRegister:
		if s.control&smdCtrlRegMultiplex != 0 {
			r.eccPattern = (0b111 << 11) | (1 << 15)
			if !r.hasFlipFlops {
				// Bit 14 distinguishes the legacy HD-100-style
				// controller from the 10/15MHz SMD interface.
				r.eccPattern |= 1 << 14
			}
			return r.eccPattern
		}
		if s.status&(smdStatusIllegalLoad|smdStatusTimeout|smdStatusComparerError|smdStatusAddressMismatch) != 0 ||
			s.seekCondition&smdSeekError != 0 {
			s.status |= smdStatusHardwareError
		} else {
			s.status &^= smdStatusHardwareError
		}
		if r.selectedDisk.onCylinder {
			s.status |= smdStatusOnCylinder
		} else {
			s.status &^= smdStatusOnCylinder
		}
		if r.selectedDisk.diskUnitNotReady {
			s.status |= smdStatusDiskUnitNotReady
		} else {
			s.status &^= smdStatusDiskUnitNotReady
		}
		value := s.status
		smdClearFlipFlops(r)
		return value

	case smdReadBlockAddress:
		if s.control&smdCtrlRegMultiplex != 0 {
			return r.blockAddressII
		}
		return r.blockAddressI

	default:
		return 0
	}
}

func smdWrite(dev *Device, addr uint32, value uint16) {
	s := smdOf(dev)
	r := &s.regs

	switch dev.RegisterAddress(addr) {
	case smdLoadMemoryAddress:
		if s.control&smdCtrlRegMultiplex != 0 {
			if s.control&smdCtrlTestMode != 0 && s.control&smdCtrlMarginalRecovery != 0 {
				r.coreAddress++
				r.wordCounter--
			}
			return
		}
		if s.status&smdStatusActive != 0 {
			smdHandleError(dev, smdErrIllegalWhileActive)
			return
		}
		if !r.mawFlipFlop || !r.hasFlipFlops {
			r.coreAddress = value
			r.mawFlipFlop = r.hasFlipFlops
		} else {
			r.coreAddressHiBits = value & 0xFF
			r.mawFlipFlop = false
		}

	case smdLoadBlockAddress:
		if s.status&smdStatusActive != 0 {
			smdHandleError(dev, smdErrIllegalWhileActive)
			return
		}
		if s.control&smdCtrlRegMultiplex != 0 {
			r.blockAddressII = value
		} else {
			r.blockAddressI = value
		}

	case smdLoadControlWord:
		if s.status&smdStatusActive != 0 {
			return
		}
		smdLoadControl(dev, value)

	case smdLoadWordCounter:
		if s.control&smdCtrlRegMultiplex != 0 {
			if !r.wcEccwFlipFlop || !r.hasFlipFlops {
				r.eccControl = value
				if r.eccControl&1 != 0 {
					r.eccCount = 0
				}
				if r.eccControl&(1<<1) != 0 {
					s.status |= smdStatusHardwareError2
				}
				r.wcEccwFlipFlop = r.hasFlipFlops
			} else {
				r.eccControlHI = value & 0xFF
				r.wcEccwFlipFlop = false
			}
			return
		}
		if !r.wcwFlipFlop || !r.hasFlipFlops {
			r.wordCounter = value
			r.wcwFlipFlop = r.hasFlipFlops
		} else {
			r.wordCounterHI = value & 0xFF
			r.wcwFlipFlop = false
		}
	}
}

func smdLoadControl(dev *Device, value uint16) {
	s := smdOf(dev)
	r := &s.regs

	s.control = value
	if value&smdCtrlActive != 0 {
		s.status |= smdStatusActive
	} else {
		s.status &^= smdStatusActive
	}
	if value&smdCtrlRegMultiplex != 0 {
		s.status |= smdStatusRegMultiplex
	} else {
		s.status &^= smdStatusRegMultiplex
	}
	s.status |= smdStatusRFT

	if value&smdCtrlEnableInterruptNotActive != 0 {
		s.status |= smdStatusIE
	} else {
		s.status &^= smdStatusIE
		dev.SetInterruptStatus(false, dev.InterruptLevel)
	}
	if value&smdCtrlEnableInterruptOnErrors != 0 {
		s.status |= smdStatusErrorIE
	} else {
		s.status &^= smdStatusErrorIE
	}

	// Legacy (no-flip-flop) controllers never load the address
	// extension bits through a second LoadMemoryAddress write; they
	// carry address bits 16-17 directly in the control word instead.
	if !r.hasFlipFlops {
		r.coreAddressHiBits = (value & (smdCtrlAddressBit16 | smdCtrlAddressBit17)) >> 5
	}

	unit := uint8((value & smdCtrlUnitSelectMask) >> smdCtrlUnitSelectShift)
	r.selectedUnit = unit & 0x3
	r.selectedDisk = r.disks[r.selectedUnit]

	if value&smdCtrlDeviceClear != 0 {
		if r.selectedDisk != nil {
			r.selectedDisk.diskUnitNotReady = false
		}
		s.seekCondition |= 1 << r.selectedUnit
		s.status &^= smdStatusActive
		r.coreAddress = 0
		r.coreAddressHiBits = 0
		r.blockAddressI = 0
		r.blockAddressII = 0
		r.wordCounter = 0
		r.wordCounterHI = 0
		s.status &^= smdStatusRFT
		smdClearFlipFlops(r)
		smdClearErrors(dev)
	}

	if r.selectedDisk != nil {
		r.selectedDisk.onCylinder = true
	}

	if s.status&smdStatusActive != 0 {
		if r.selectedDisk == nil {
			s.status |= smdStatusDiskUnitNotReady
			smdHandleError(dev, smdErrDriveNotSelected)
			return
		}
		r.selectedDisk.onCylinder = true
		r.selectedDisk.diskUnitNotReady = false
		smdExecuteGo(dev)
		return
	}

	if s.control&smdCtrlTestMode != 0 {
		dev.SetInterruptStatus(s.status&smdStatusIE != 0, dev.InterruptLevel)
	} else {
		dev.SetInterruptStatus(s.status&smdStatusIE != 0 && s.status&smdStatusRFT != 0, dev.InterruptLevel)
	}
}

func smdIdent(dev *Device, level uint16) uint16 {
	if dev.InterruptBits&(1<<level) == 0 {
		return 0
	}
	s := smdOf(dev)
	s.status &^= smdStatusIE
	dev.SetInterruptStatus(false, level)
	return dev.IdentCode
}

// smdBoot reads the first 2KW of unit 0 into physical memory address 0,
// the SMD controller's bootstrap path.
func smdBoot(dev *Device, _ uint16) int32 {
	s := smdOf(dev)
	r := &s.regs
	r.selectedUnit = 0
	r.selectedDisk = r.disks[0]
	if r.selectedDisk == nil || r.selectedDisk.file == nil {
		smdHandleError(dev, smdErrReadError)
		return -1
	}
	if _, err := r.selectedDisk.file.Seek(0, 0); err != nil {
		smdHandleError(dev, smdErrSeekError)
		return -1
	}
	for i := 0; i < 2048; i++ {
		w, ok := IOReadWord(r.selectedDisk.file)
		if !ok {
			smdHandleError(dev, smdErrReadError)
			return -1
		}
		dev.DMAWrite(uint32(i), w)
	}
	return 0
}

const (
	smdErrNoDiskAttached = iota
	smdErrAddressMismatch
	smdErrSeekError
	smdErrReadError
	smdErrComparerError
	smdErrDriveNotSelected
	smdErrIllegalWhileActive
	smdErrWriteProtect
)

func smdHandleError(dev *Device, code int) {
	s := smdOf(dev)
	switch code {
	case smdErrNoDiskAttached, smdErrSeekError, smdErrReadError, smdErrDriveNotSelected:
		s.status |= smdStatusDiskUnitNotReady
	case smdErrAddressMismatch:
		s.status |= smdStatusAddressMismatch
	case smdErrComparerError:
		s.status |= smdStatusComparerError
	case smdErrIllegalWhileActive:
		s.status |= smdStatusIllegalLoad
	case smdErrWriteProtect:
		s.status |= smdStatusDiskUnitNotReady
	}
}

func smdClearErrors(dev *Device) {
	s := smdOf(dev)
	s.status &^= smdStatusHardwareError | smdStatusHardwareError2 | smdStatusIllegalLoad |
		smdStatusTimeout | smdStatusComparerError | smdStatusAddressMismatch
	s.seekCondition &^= smdSeekError
}

func smdIncrementCoreAddress(r *smdControllerRegs) uint32 {
	address := (uint32(r.coreAddressHiBits) << 16) | uint32(r.coreAddress)
	address++
	r.coreAddress = uint16(address & 0xFFFF)
	r.coreAddressHiBits = uint16((address >> 16) & 0xFF)
	return address
}

func smdDecrementWordCounter(r *smdControllerRegs) uint32 {
	counter := (uint32(r.wordCounterHI) << 16) | uint32(r.wordCounter)
	counter--
	r.wordCounter = uint16(counter & 0xFFFF)
	r.wordCounterHI = uint16((counter >> 16) & 0xFF)
	return counter
}

// smdExecuteGo performs the device operation named by the control
// word's device-operation field against the selected unit.
func smdExecuteGo(dev *Device) {
	s := smdOf(dev)
	r := &s.regs
	disk := r.selectedDisk
	if disk == nil {
		return
	}

	sector := int(r.blockAddressI & 0xFF)
	head := int((r.blockAddressI >> 8) & 0xFF)
	cylinder := int(r.blockAddressII)

	lba := convertCHSToLBA(disk, cylinder, head, sector)
	position := lba * int64(disk.bytesPerSector)

	s.seekCondition &^= 1 << r.selectedUnit

	maxLBA := convertCHSToLBA(disk, disk.maxCylinders, disk.headsPerCylinder, disk.sectorsPerTrack)
	maxPosition := maxLBA * int64(disk.bytesPerSector)

	deviceOp := int((s.control & smdCtrlDeviceOpMask) >> smdCtrlDeviceOpShift)

	if (position > maxPosition || head >= disk.maxCylinders || sector >= disk.sectorsPerTrack) &&
		s.control&smdCtrlTestMode == 0 {
		smdHandleError(dev, smdErrAddressMismatch)
		return
	}

	if disk.writeProtected && (deviceOp == smdOpWriteTransfer || deviceOp == smdOpWriteFormat) {
		disk.diskUnitNotReady = true
		smdHandleError(dev, smdErrWriteProtect)
		return
	}

	if disk.file == nil {
		smdHandleError(dev, smdErrReadError)
		return
	}

	if _, err := disk.file.Seek(position, 0); err != nil {
		smdHandleError(dev, smdErrSeekError)
		return
	}

	wordCounter := (uint32(r.wordCounterHI) << 16) | uint32(r.wordCounter)
	coreAddress := (uint32(r.coreAddressHiBits) << 16) | uint32(r.coreAddress)

	switch deviceOp {
	case smdOpReadTransfer, smdOpReadParity:
		for wordCounter > 0 {
			w, ok := IOReadWord(disk.file)
			if !ok {
				smdHandleError(dev, smdErrReadError)
				return
			}
			if deviceOp == smdOpReadTransfer {
				dev.DMAWrite(coreAddress, w)
			}
			coreAddress = smdIncrementCoreAddress(r)
			wordCounter = smdDecrementWordCounter(r)
		}
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpWriteTransfer:
		for wordCounter > 0 {
			w := dev.DMARead(coreAddress)
			if !IOWriteWord(disk.file, w) {
				smdHandleError(dev, smdErrReadError)
				return
			}
			coreAddress = smdIncrementCoreAddress(r)
			wordCounter = smdDecrementWordCounter(r)
		}
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpCompareTransfer:
		for wordCounter > 0 {
			diskWord, ok := IOReadWord(disk.file)
			if !ok {
				smdHandleError(dev, smdErrReadError)
				return
			}
			memWord := dev.DMARead(coreAddress)
			if diskWord != memWord {
				smdHandleError(dev, smdErrComparerError)
				return
			}
			coreAddress = smdIncrementCoreAddress(r)
			wordCounter = smdDecrementWordCounter(r)
		}
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpInitiateSeek:
		s.seekCondition &^= smdSeekError
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpWriteFormat:
		// Physical formatting against a plain image file isn't
		// meaningful; acknowledged as a clean completion.
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpSeekComplete:
		disk.onCylinder = true
		s.seekCondition &^= smdSeekError
		s.seekCondition |= 1 << r.selectedUnit
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpReturnToZero:
		s.seekCondition &^= smdSeekError
		disk.onCylinder = true
		s.seekCondition |= 1 << r.selectedUnit
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpRunECC:
		// ECC correction against a plain image file has nothing to
		// recompute; acknowledged as a clean completion.
		dev.QueueIODelay(IODelaySMD, smdReadEnd, int(disk.unit), dev.InterruptLevel)

	case smdOpSelectRelease:
		r.selectedDisk = nil
	}
}

func smdReadEnd(dev *Device, drive int) bool {
	s := smdOf(dev)
	s.status &^= smdStatusActive
	s.status |= smdStatusRFT
	smdClearFlipFlops(&s.regs)
	s.seekCondition &^= smdSeekCompleteMask
	s.seekCondition |= 1 << uint(drive)
	return s.status&smdStatusIE != 0
}

var smdFactoryTable = []struct {
	startAddr uint32
	identCode uint16
	name      string
}{
	{0o1540, 0o17, "SMD 1540"},
	{0o1550, 0o20, "SMD 1550"},
	{0o540, 0o23, "SMD 540"},
	{0o550, 0o6, "SMD 550"},
}

// CreateSMDDevice is the C9 factory entry point for the SMD controller.
// unitPaths names the backing image for units 0-3; empty strings leave
// that unit unattached.
func CreateSMDDevice(thumbwheel int, unitPaths [4]string) *Device {
	if thumbwheel < 0 || thumbwheel >= len(smdFactoryTable) {
		return nil
	}
	row := smdFactoryTable[thumbwheel]
	return NewSMDDevice(row.startAddr, row.identCode, row.name, unitPaths)
}

// CreateLegacySMDDevice is CreateSMDDevice for the legacy BIG_DISC
// controller variant: same thumbwheel/address/ident-code table, but
// with the no-flip-flop addressing path instead of the 15MHz
// controller's register-multiplexed one.
func CreateLegacySMDDevice(thumbwheel int, unitPaths [4]string) *Device {
	if thumbwheel < 0 || thumbwheel >= len(smdFactoryTable) {
		return nil
	}
	row := smdFactoryTable[thumbwheel]
	return NewSMDDeviceWithType(row.startAddr, row.identCode, row.name, unitPaths, SMDControllerBigDisc)
}
