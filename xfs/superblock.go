// Package xfs implements a read-only decoder for the on-disk structures
// of an XFS filesystem image: the superblock, the per-allocation-group
// inode B+tree (both the IABT and IAB3 formats), and the inode slots
// and packed extent records needed to recover recently deleted files.
//
// It never mounts, repairs, or writes to the source image.
package xfs

import (
	"encoding/binary"
	"fmt"

	"github.com/go-xfs/xfsundelete/backend"
)

// defaultSectorSize is a conservative size used only for the initial read
// of sector 0, before the real sector_size field has been decoded. It must
// be large enough to contain every superblock field this package reads.
const defaultSectorSize = 512

// defaultAGCount is used only as a fallback when sb_agcount reads as zero,
// which should not happen on any valid image; see DESIGN.md for the
// rationale for reading sb_agcount instead of hard-coding this value.
const defaultAGCount = 4

// Geometry holds the immutable filesystem layout extracted from the
// superblock. It is read once and never mutated afterward; every other
// component in this package takes a *Geometry by value or pointer and
// treats it as read-only.
type Geometry struct {
	BlockSize      uint32 // bytes per filesystem block
	SectorSize     uint16 // bytes per sector
	InodeSize      uint16 // bytes per on-disk inode
	InodesPerBlock uint16 // inodes per cluster block (sb_inopblock)
	AGBlocks       uint32 // blocks per allocation group
	AGCount        uint32 // number of allocation groups (sb_agcount)
	DataBlocks     uint64 // total data blocks in the filesystem
	AGBlockLog     uint8  // log2 of AGBlocks, used to split packed extent fields
	InodeCount     uint64 // total inode count, for progress reporting only
}

// ReadGeometry reads sector 0 of src and extracts the geometry fields
// needed by the rest of this package. It is the only place that assumes
// a default sector size; every subsequent read in this package uses
// g.SectorSize, g.BlockSize, etc.
func ReadGeometry(src backend.Reader) (*Geometry, error) {
	buf := make([]byte, defaultSectorSize)
	if _, err := src.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}

	g := &Geometry{
		BlockSize:      binary.BigEndian.Uint32(buf[4:8]),
		DataBlocks:     binary.BigEndian.Uint64(buf[8:16]),
		AGBlocks:       binary.BigEndian.Uint32(buf[84:88]),
		AGCount:        binary.BigEndian.Uint32(buf[88:92]),
		SectorSize:     binary.BigEndian.Uint16(buf[102:104]),
		InodeSize:      binary.BigEndian.Uint16(buf[104:106]),
		InodesPerBlock: binary.BigEndian.Uint16(buf[106:108]),
		AGBlockLog:     buf[124],
		InodeCount:     binary.BigEndian.Uint64(buf[128:136]),
	}

	if g.AGCount == 0 {
		g.AGCount = defaultAGCount
	}

	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// validate rejects geometry that would make later offset arithmetic
// overflow or loop forever. These are the only superblock-derived errors
// this package treats as fatal; everything else is a per-unit anomaly
// handled where it is discovered.
func (g *Geometry) validate() error {
	if g.BlockSize == 0 {
		return fmt.Errorf("xfs: superblock reports zero block size")
	}
	if g.SectorSize == 0 {
		return fmt.Errorf("xfs: superblock reports zero sector size")
	}
	if g.InodeSize == 0 {
		return fmt.Errorf("xfs: superblock reports zero inode size")
	}
	if g.InodesPerBlock == 0 {
		return fmt.Errorf("xfs: superblock reports zero inodes per block")
	}
	if g.AGBlocks == 0 {
		return fmt.Errorf("xfs: superblock reports zero blocks per allocation group")
	}
	return nil
}

// agByteBase returns the absolute byte offset of the start of ag.
func (g *Geometry) agByteBase(ag uint32) int64 {
	return int64(ag) * int64(g.AGBlocks) * int64(g.BlockSize)
}

// blockByteOffset returns the absolute byte offset of block
// blockWithinAG inside ag.
func (g *Geometry) blockByteOffset(ag, blockWithinAG uint32) int64 {
	return int64(g.BlockSize) * (int64(ag)*int64(g.AGBlocks) + int64(blockWithinAG))
}
