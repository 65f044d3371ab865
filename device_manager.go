// device_manager.go - fixed-capacity device registry and bus dispatch

package main

import "fmt"

// MaxDevices bounds the registry exactly as the original's fixed-size
// device array does; AddDevice refuses a 17th registration.
const MaxDevices = 16

// DeviceManager owns every controller on the bus and fans out ticks,
// address-range dispatch, IDENT arbitration and master-clear across
// them in registration order.
type DeviceManager struct {
	devices []*Device
	mem     PhysicalMemory
}

// NewDeviceManager creates a manager backed by the given shared
// physical memory. mem is injected rather than a singleton so tests can
// swap in a small address space or a fault-injecting fake.
func NewDeviceManager(mem PhysicalMemory) *DeviceManager {
	return &DeviceManager{
		devices: make([]*Device, 0, MaxDevices),
		mem:     mem,
	}
}

// AddDevice registers dev, wiring in the shared physical memory. Address
// uniqueness across devices is a precondition the caller is responsible
// for, not something enforced here - two overlapping ranges simply mean
// the earlier-registered device always wins dispatch, matching the
// original's unchecked registration.
func (m *DeviceManager) AddDevice(dev *Device) error {
	if len(m.devices) >= MaxDevices {
		return fmt.Errorf("device manager: registry full (max %d devices)", MaxDevices)
	}
	dev.Mem = m.mem
	m.devices = append(m.devices, dev)
	return nil
}

// MasterClear resets every registered device in registration order.
func (m *DeviceManager) MasterClear() {
	for _, dev := range m.devices {
		dev.Reset()
	}
}

// Destroy tears down every registered device and empties the registry.
func (m *DeviceManager) Destroy() {
	for _, dev := range m.devices {
		dev.Destroy()
	}
	m.devices = m.devices[:0]
}

// deviceAt returns the device whose address range contains addr, or nil.
func (m *DeviceManager) deviceAt(addr uint32) *Device {
	for _, dev := range m.devices {
		if dev.IsInAddress(addr) {
			return dev
		}
	}
	return nil
}

// Read dispatches a bus read to the owning device, returning 0 if no
// device claims addr.
func (m *DeviceManager) Read(addr uint32) uint16 {
	dev := m.deviceAt(addr)
	if dev == nil {
		return 0
	}
	return dev.Read(addr)
}

// Write dispatches a bus write to the owning device. A write to an
// unmapped address is silently dropped.
func (m *DeviceManager) Write(addr uint32, value uint16) {
	dev := m.deviceAt(addr)
	if dev == nil {
		return
	}
	dev.Write(addr, value)
}

// Ident arbitrates IDENT for the given interrupt level: the first
// registered device (in registration order) with a pending interrupt at
// that level wins and its Ident hook is invoked; all others are not
// consulted. Returns 0 if no device has a pending interrupt at level.
func (m *DeviceManager) Ident(level uint16) uint16 {
	for _, dev := range m.devices {
		if dev.InterruptBits&(1<<level) != 0 {
			return dev.Ident(level)
		}
	}
	return 0
}

// Tick advances every device by one quantum, in registration order,
// and returns the OR of every device's resulting interrupt bits — the
// bus-level tick the CPU side consults to decide whether to issue
// IDENT. Each device's Tick hook ticks its own I/O-delay queue once.
func (m *DeviceManager) Tick() uint16 {
	var pending uint16
	for _, dev := range m.devices {
		dev.Tick()
		pending |= dev.InterruptBits
	}
	return pending
}

// Boot locates the registered device whose IdentCode matches deviceID
// and invokes its Boot hook. Returns -1 if no device matches.
func (m *DeviceManager) Boot(deviceID uint16) int32 {
	for _, dev := range m.devices {
		if dev.IdentCode == deviceID {
			return dev.Boot(deviceID)
		}
	}
	return -1
}

// DeviceByAddress exposes deviceAt for callers (factory wiring, tests)
// that need direct access to a registered device's typed Data.
func (m *DeviceManager) DeviceByAddress(addr uint32) *Device {
	return m.deviceAt(addr)
}

// Devices returns the registration-ordered list of managed devices.
// Callers must not mutate the returned slice.
func (m *DeviceManager) Devices() []*Device {
	return m.devices
}
