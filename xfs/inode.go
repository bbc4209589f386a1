package xfs

import (
	"encoding/binary"

	"github.com/go-xfs/xfsundelete/backend"
)

const (
	inodeMagic        = "IN"
	ctimeOffset       = 48
	inodeNumberOffset = 152
	extentArrayOffset = 176

	maxLogicalByteOffset = 1<<63 - 1 // unrepresentable for byte-addressed tooling
)

// DeletedSignatures are the 8-byte patterns (magic + version/format +
// mode bits) this package treats as evidence of a freshly deleted,
// regular-file-like inode whose on-disk image still carries extents.
// Only one signature is known today; see DESIGN.md for why this is a
// slice rather than a single constant.
var DeletedSignatures = [][8]byte{
	{0x49, 0x4E, 0x00, 0x00, 0x03, 0x02, 0x00, 0x00},
}

// DiskRun is where one logical block range of a recovered file actually
// lives on the source image.
type DiskRun struct {
	Block uint64
	Count uint32
}

// DeletedInode is a candidate recovered file: a freed inode whose extent
// map survived and passed the validity filters in spec.md section 4.4.
type DeletedInode struct {
	Inode   uint64
	CTime   uint32
	Extents map[uint64]DiskRun // logical block offset -> disk run
}

// ProgressFunc is invoked once per candidate inode slot encountered
// ("checking inode N"), independent of whether the slot turns out to be
// a recoverable deletion. It is advisory and must never affect recovery
// output.
type ProgressFunc func(inode uint64, examined, total uint64)

// ScanClusterBlock reads the inode cluster block identified by cb,
// iterates its fixed-size inode slots, and reports every surviving,
// freshly-deleted candidate to emit. examined is the caller's running
// count of inode slots seen so far across the whole run; it is advanced
// in place so the caller can keep reporting progress across calls.
func ScanClusterBlock(src backend.Reader, g *Geometry, cb ClusterBlock, minCTime uint32, examined *uint64, progress ProgressFunc, emit func(DeletedInode)) error {
	buf := make([]byte, g.BlockSize)
	if _, err := src.ReadAt(buf, g.blockByteOffset(cb.AG, cb.IBlock)); err != nil {
		return err
	}

	for s := 0; s+int(g.InodeSize) <= len(buf); s += int(g.InodeSize) {
		slot := buf[s : s+int(g.InodeSize)]
		if string(slot[0:2]) != inodeMagic {
			continue
		}

		inodeNumber := binary.BigEndian.Uint64(slot[inodeNumberOffset : inodeNumberOffset+8])
		*examined++
		if progress != nil {
			progress(inodeNumber, *examined, g.InodeCount)
		}

		if !matchesDeletedSignature(slot) {
			continue
		}

		ctime := binary.BigEndian.Uint32(slot[ctimeOffset : ctimeOffset+4])
		if ctime < minCTime {
			continue
		}

		extents := decodeExtentArray(slot, uint64(g.AGBlocks), g.AGBlockLog, g.DataBlocks, g.BlockSize)
		if len(extents) == 0 {
			continue
		}
		if _, hasZero := extents[0]; !hasZero {
			continue
		}

		emit(DeletedInode{Inode: inodeNumber, CTime: ctime, Extents: extents})
	}
	return nil
}

func matchesDeletedSignature(slot []byte) bool {
	for _, sig := range DeletedSignatures {
		if bytesEqual8(slot, sig) {
			return true
		}
	}
	return false
}

func bytesEqual8(slot []byte, sig [8]byte) bool {
	for i := 0; i < 8; i++ {
		if slot[i] != sig[i] {
			return false
		}
	}
	return true
}

// decodeExtentArray walks the in-inode extent array (stride
// extentRecordSize starting at extentArrayOffset) and applies the
// per-extent validity filters from spec.md section 4.4: discard
// unwritten extents, discard extents that fall outside the image,
// discard unrepresentable logical offsets, and last-writer-wins on a
// duplicate logical offset.
func decodeExtentArray(slot []byte, agBlocks uint64, agBlockLog uint8, dataBlocks uint64, blockSize uint32) map[uint64]DiskRun {
	extents := map[uint64]DiskRun{}
	for off := extentArrayOffset; off+extentRecordSize <= len(slot); off += extentRecordSize {
		rec := slot[off : off+extentRecordSize]
		if isZeroExtentSlot(rec) {
			continue
		}

		ext := decodeExtent(rec, agBlocks, agBlockLog)
		if ext.Unwritten {
			continue
		}
		if ext.AbsoluteBlock+uint64(ext.Count) >= dataBlocks {
			continue
		}
		// Same test as LogicalOffset*blockSize >= maxLogicalByteOffset,
		// written as a division so the product cannot wrap around.
		if ext.LogicalOffset > (maxLogicalByteOffset-1)/uint64(blockSize) {
			continue
		}

		extents[ext.LogicalOffset] = DiskRun{Block: ext.AbsoluteBlock, Count: ext.Count}
	}
	return extents
}
