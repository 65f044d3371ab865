// Command nd100io is a small demo host: it wires one instance of each
// peripheral controller into a DeviceManager backed by an in-process
// physical memory, then drives the tick loop a CPU host would normally
// own.
package main

import (
	"flag"
	"fmt"
	"time"
)

func main() {
	terminalPath := flag.String("terminal", "interactive", "terminal mode: interactive or headless")
	paperTapePath := flag.String("papertape", "", "backing byte stream for the paper tape reader")
	floppyPIOImage := flag.String("floppy-pio", "", "backing image for the Floppy PIO controller")
	floppyDMAImage := flag.String("floppy-dma", "", "backing image for the Floppy DMA controller")
	smdUnit0 := flag.String("smd0", "", "backing image for SMD unit 0")
	smdUnit1 := flag.String("smd1", "", "backing image for SMD unit 1")
	smdUnit2 := flag.String("smd2", "", "backing image for SMD unit 2")
	smdUnit3 := flag.String("smd3", "", "backing image for SMD unit 3")
	ticks := flag.Int("ticks", 11000, "number of bus ticks to run")
	flag.Parse()

	mem := NewInMemoryPhysicalMemory(1 << 20)
	mgr := NewDeviceManager(mem)

	rtc0 := CreateRTCDevice(0)
	term0 := CreateTerminalDevice(0)
	tape0 := CreatePaperTapeDevice(0, *paperTapePath)
	fpio0 := CreateFloppyPIODevice(0, *floppyPIOImage)
	fdma0 := CreateFloppyDMADevice(0, *floppyDMAImage)
	smd0 := CreateSMDDevice(0, [4]string{*smdUnit0, *smdUnit1, *smdUnit2, *smdUnit3})

	for _, dev := range []*Device{rtc0, term0, tape0, fpio0, fdma0, smd0} {
		if dev == nil {
			continue
		}
		if err := mgr.AddDevice(dev); err != nil {
			fmt.Printf("main: failed to register %s: %v\n", dev.MemoryName, err)
		}
	}

	var host *TerminalHost
	if *terminalPath == "interactive" {
		host = NewTerminalHost(term0)
		host.Start()
		defer host.Stop()
	}

	mgr.MasterClear()

	for i := 0; i < *ticks; i++ {
		pending := mgr.Tick()
		// Mirror the CPU host's IDENT decision: bus_tick returns the OR
		// of every device's interrupt bits, and it's up to the CPU side
		// to notice a nonzero result and poll the interrupt system for
		// the highest-priority pending level (13 down to 10).
		for level := uint16(13); pending != 0 && level >= 10; level-- {
			if pending&(1<<level) != 0 {
				mgr.Ident(level)
				break
			}
		}
		if host != nil {
			host.PrintOutput()
			time.Sleep(time.Millisecond)
		}
	}

	mgr.Destroy()
}
