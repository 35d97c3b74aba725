// devices.go - block-device and video-device collaborator contracts
//
// New relative to the teacher: IntuitionEngine's device model is a
// chip-level Amiga custom-chipset bus, not applicable here. These
// interfaces and FileBlockDevice are grounded directly on spec.md §6's
// "Block-device collaborator" and "Video device" contracts; the
// default file-backed implementation follows no pack library because
// none of the retrieved repos carries a disk-image-format dependency
// (see DESIGN.md).

package main

import "io"

// BlockDevice is the disk collaborator BIOS INT 13h handlers read
// through, per spec.md §6.
type BlockDevice interface {
	ReadSectors(lba uint64, count uint16) ([]byte, error)
	SectorSize() uint16
	Geometry() (cylinders, heads, sectorsPerTrack uint32)
}

// FileBlockDevice backs a BlockDevice with a file or any ReaderAt,
// the default stub spec.md §6 calls out.
type FileBlockDevice struct {
	r          io.ReaderAt
	sectorSize uint16
	cylinders  uint32
	heads      uint32
	spt        uint32
}

// NewFileBlockDevice wraps r as a 512-byte-sector block device with
// the given CHS geometry (used only by CHS-style INT 13h AH=02 reads;
// LBA reads ignore it).
func NewFileBlockDevice(r io.ReaderAt, cylinders, heads, sectorsPerTrack uint32) *FileBlockDevice {
	return &FileBlockDevice{
		r:          r,
		sectorSize: 512,
		cylinders:  cylinders,
		heads:      heads,
		spt:        sectorsPerTrack,
	}
}

func (d *FileBlockDevice) SectorSize() uint16 { return d.sectorSize }

func (d *FileBlockDevice) Geometry() (cylinders, heads, sectorsPerTrack uint32) {
	return d.cylinders, d.heads, d.spt
}

func (d *FileBlockDevice) ReadSectors(lba uint64, count uint16) ([]byte, error) {
	buf := make([]byte, uint32(count)*uint32(d.sectorSize))
	off := int64(lba) * int64(d.sectorSize)
	n, err := d.r.ReadAt(buf, off)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// CHSToLBA converts a cylinder/head/sector triple to an LBA using this
// device's geometry, per the classic CHS formula sectors-per-track
// values use (sector numbers are 1-based).
func (d *FileBlockDevice) CHSToLBA(cyl, head, sector uint32) uint64 {
	return uint64(cyl)*uint64(d.heads)*uint64(d.spt) + uint64(head)*uint64(d.spt) + uint64(sector-1)
}

// VideoModeInfo describes one VBE mode's static metadata, filled into
// the guest-visible mode-info block by the INT 10h intercept.
type VideoModeInfo struct {
	Mode          uint16
	Width         uint16
	Height        uint16
	BitsPerPixel  byte
	Attributes    uint16
	FrameBufferPA uint32
}

// VideoDevice is the video collaborator spec.md §6 describes: it owns
// VBE info fields and a mode table, and supplies the frame-buffer
// pointer the INT 10h intercept writes into the mode-info block.
type VideoDevice interface {
	Modes() []VideoModeInfo
	FrameBufferAddress() uint32
}

// nullVideoDevice reports a single default mode, sufficient for boot
// loaders that only probe VBE capability before falling back to text
// mode.
type nullVideoDevice struct{}

func (nullVideoDevice) Modes() []VideoModeInfo {
	return []VideoModeInfo{{Mode: 0x141, Width: 1024, Height: 768, BitsPerPixel: 32, Attributes: 0x009B}}
}

func (nullVideoDevice) FrameBufferAddress() uint32 { return 0xFD000000 }
