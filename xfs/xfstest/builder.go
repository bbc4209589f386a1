// Package xfstest builds synthetic, byte-exact XFS images for testing
// the xfs package, in the spirit of go-diskfs's testhelper.FileImpl: a
// small in-memory stand-in for a real disk image that the package under
// test cannot tell apart from a file.
package xfstest

import (
	"encoding/binary"
	"fmt"
)

// Image is an in-memory filesystem image that implements backend.Reader
// (ReadAt/Close) so it can be handed directly to xfs.ReadGeometry,
// xfs.WalkAG, and xfs.Scan in tests.
type Image struct {
	data []byte
}

// NewImage allocates a zeroed image of size bytes.
func NewImage(size int) *Image {
	return &Image{data: make([]byte, size)}
}

// Bytes returns the underlying buffer for direct inspection in tests.
func (img *Image) Bytes() []byte { return img.data }

func (img *Image) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || int(off) > len(img.data) {
		return 0, fmt.Errorf("xfstest: read at %d out of range", off)
	}
	n := copy(p, img.data[off:])
	return n, nil
}

func (img *Image) Close() error { return nil }

func (img *Image) put(off int, b []byte) {
	copy(img.data[off:], b)
}

func (img *Image) putU16(off int, v uint16) {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	img.put(off, b)
}

func (img *Image) putU32(off int, v uint32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	img.put(off, b)
}

func (img *Image) putU64(off int, v uint64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	img.put(off, b)
}

// Geometry bundles the superblock fields a test needs to pick, mirroring
// xfs.Geometry but writable.
type Geometry struct {
	BlockSize      uint32
	SectorSize     uint16
	InodeSize      uint16
	InodesPerBlock uint16
	AGBlocks       uint32
	AGCount        uint32
	DataBlocks     uint64
	AGBlockLog     uint8
	InodeCount     uint64
}

// WriteSuperblock writes g's fields at the offsets specified in
// spec.md section 6.
func (img *Image) WriteSuperblock(g Geometry) {
	img.putU32(4, g.BlockSize)
	img.putU64(8, g.DataBlocks)
	img.putU32(84, g.AGBlocks)
	img.putU32(88, g.AGCount)
	img.putU16(102, g.SectorSize)
	img.putU16(104, g.InodeSize)
	img.putU16(106, g.InodesPerBlock)
	img.data[124] = g.AGBlockLog
	img.putU64(128, g.InodeCount)
}

// agByteBase mirrors xfs.Geometry.agByteBase for test construction.
func (g Geometry) agByteBase(ag uint32) int64 {
	return int64(ag) * int64(g.AGBlocks) * int64(g.BlockSize)
}

func (g Geometry) blockByteOffset(ag, blockWithinAG uint32) int64 {
	return int64(g.BlockSize) * (int64(ag)*int64(g.AGBlocks) + int64(blockWithinAG))
}

// WriteAGI writes the AGI sector for ag with the given root block
// number (relative to ag).
func (img *Image) WriteAGI(g Geometry, ag uint32, agiRoot uint32) {
	off := g.agByteBase(ag) + 2*int64(g.SectorSize)
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, agiRoot)
	img.put(int(off)+20, b)
}

// WriteBTreeLeaf writes a leaf block (level 0) for format "IABT" or
// "IAB3" at block blockWithinAG of ag, with one leaf record per entry
// in agiStarts.
func (img *Image) WriteBTreeLeaf(g Geometry, ag, blockWithinAG uint32, format string, agiStarts []uint32) {
	headerSize := headerSizeFor(format)
	base := int(g.blockByteOffset(ag, blockWithinAG))

	img.put(base, []byte(format))
	img.putU16(base+4, 0) // level = 0 (leaf)
	img.putU16(base+6, uint16(len(agiStarts)))

	for i, start := range agiStarts {
		off := base + headerSize + i*16
		img.putU32(off, start)
	}
}

// WriteBTreeNode writes an internal node (level 1) for format "IABT" or
// "IAB3" at block blockWithinAG of ag, pointing at children.
func (img *Image) WriteBTreeNode(g Geometry, ag, blockWithinAG uint32, format string, children []uint32) {
	headerSize := headerSizeFor(format)
	base := int(g.blockByteOffset(ag, blockWithinAG))

	img.put(base, []byte(format))
	img.putU16(base+4, 1) // level = 1 (internal)
	img.putU16(base+6, uint16(len(children)))

	ptrBase := base + (int(g.BlockSize)+headerSize)/2
	for i, child := range children {
		img.putU32(ptrBase+i*4, child)
	}
}

func headerSizeFor(format string) int {
	if format == "IAB3" {
		return 56
	}
	return 16
}

// ExtentSpec describes one extent to pack into an inode slot.
type ExtentSpec struct {
	LogicalOffset uint64
	AAG           uint32
	ABlock        uint32
	Count         uint32
	Unwritten     bool
}

// WriteDeletedInodeSlot writes a candidate deleted-inode slot at cluster
// block blockWithinAG of ag, slot index slotIndex, with the given
// inode number, ctime, and packed extents.
func (img *Image) WriteDeletedInodeSlot(g Geometry, ag, blockWithinAG uint32, slotIndex int, inodeNumber uint64, ctime uint32, extents []ExtentSpec) {
	base := int(g.blockByteOffset(ag, blockWithinAG)) + slotIndex*int(g.InodeSize)

	img.put(base+0, []byte{0x49, 0x4E, 0x00, 0x00, 0x03, 0x02, 0x00, 0x00})
	img.putU32(base+48, ctime)
	img.putU64(base+152, inodeNumber)

	for i, e := range extents {
		off := base + 176 + i*16
		hi, lo := packExtent(e, g.AGBlockLog)
		img.putU64(off, hi)
		img.putU64(off+8, lo)
	}
}

func packExtent(e ExtentSpec, agBlockLog uint8) (hi, lo uint64) {
	if e.Unwritten {
		setBitsMSB(&hi, &lo, 0, 0, 1)
	}
	setBitsMSB(&hi, &lo, 1, 54, e.LogicalOffset)

	ablockWidth := int(agBlockLog)
	aagEnd := 106 - ablockWidth
	setBitsMSB(&hi, &lo, 55, aagEnd, uint64(e.AAG))
	setBitsMSB(&hi, &lo, aagEnd+1, 106, uint64(e.ABlock))
	setBitsMSB(&hi, &lo, 107, 127, uint64(e.Count))
	return hi, lo
}

// setBitsMSB sets bits [startBit, endBit] (inclusive, 0 = MSB of hi) of
// the 128-bit value hi:lo to value's low (endBit-startBit+1) bits. It is
// the constructive inverse of xfs's extractBits128, kept deliberately
// simple (bit-by-bit) since it only runs in test setup.
func setBitsMSB(hi, lo *uint64, startBit, endBit int, value uint64) {
	width := endBit - startBit + 1
	for i := 0; i < width; i++ {
		bitVal := (value >> uint(width-1-i)) & 1
		if bitVal == 0 {
			continue
		}
		pos := startBit + i
		if pos < 64 {
			*hi |= 1 << uint(63-pos)
		} else {
			*lo |= 1 << uint(63-(pos-64))
		}
	}
}
