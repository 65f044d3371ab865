// smd_disk.go - per-unit SMD disk geometry and backing storage (C8).

package main

import "os"

// SMDDiskType names a supported geometry, grounded on the original
// driver's fixed disk-type table.
type SMDDiskType int

const (
	SMDDisk38MB SMDDiskType = iota
	SMDDisk75MB
	SMDDisk150MB
	SMDDisk288MB
	SMDDisk474MB
	SMDDisk515MB
	SMDDisk825MB
)

// smdDiskGeometry is (heads/cylinder, sectors/track, max cylinders) per
// disk type; bytes/sector is constant across types at 1024.
var smdDiskGeometry = map[SMDDiskType]struct{ heads, sectors, cylinders int }{
	SMDDisk38MB:  {5, 18, 411},
	SMDDisk75MB:  {5, 18, 823},
	SMDDisk150MB: {10, 18, 823},
	SMDDisk288MB: {19, 18, 823},
	SMDDisk474MB: {20, 24, 842},
	SMDDisk515MB: {24, 26, 711},
	SMDDisk825MB: {16, 44, 1024},
}

// SMDDiskInfo holds the per-unit geometry and backing file for one SMD
// drive. unit is the drive's 0-3 selection index.
type SMDDiskInfo struct {
	unit               uint8
	diskType           SMDDiskType
	bytesPerSector     int
	headsPerCylinder   int
	sectorsPerTrack    int
	maxCylinders       int
	maxWordCount       int
	diskUnitNotReady   bool
	onCylinder         bool
	writeProtected     bool
	fileName           string
	file               *os.File
}

// NewSMDDiskInfo builds a disk descriptor for unit, opening path
// read/write if non-empty. A disk with no backing file reports
// diskUnitNotReady until one is attached.
func NewSMDDiskInfo(unit uint8, diskType SMDDiskType, path string) *SMDDiskInfo {
	d := &SMDDiskInfo{unit: unit, fileName: path, diskUnitNotReady: true}
	d.setDiskType(diskType)
	if path != "" {
		if f, err := os.OpenFile(path, os.O_RDWR, 0o644); err == nil {
			d.file = f
			d.diskUnitNotReady = false
		}
	}
	return d
}

func (d *SMDDiskInfo) setDiskType(dt SMDDiskType) {
	d.diskType = dt
	d.bytesPerSector = 1024
	d.maxWordCount = 4095
	g := smdDiskGeometry[dt]
	d.headsPerCylinder = g.heads
	d.sectorsPerTrack = g.sectors
	d.maxCylinders = g.cylinders
}

func (d *SMDDiskInfo) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// convertCHSToLBA follows the original's unconventional sector-origin
// convention: sector 0 is the first sector of a track, not sector 1, so
// no -1 adjustment is applied.
func convertCHSToLBA(d *SMDDiskInfo, cylinder, head, sector int) int64 {
	if cylinder == 0 && head == 0 && sector == 0 {
		return 0
	}
	return int64(cylinder*d.headsPerCylinder+head)*int64(d.sectorsPerTrack) + int64(sector)
}
