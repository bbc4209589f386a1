package xfs

import "encoding/binary"

// extentRecordSize is the on-disk width of one packed extent descriptor.
const extentRecordSize = 16

// Extent is a decoded in-inode extent: a contiguous run of disk blocks
// backing a contiguous run of the file's logical blocks.
type Extent struct {
	LogicalOffset uint64 // file block offset (in filesystem blocks)
	AbsoluteBlock uint64 // absolute disk block number
	Count         uint32 // number of contiguous blocks
	Unwritten     bool   // preallocated/unwritten flag was set
}

// decodeExtent unpacks one 16-byte big-endian packed extent record per
// the bit layout below (bit 0 is the MSB of byte 0):
//
//	bit 0           preallocated/unwritten flag
//	bits 1..54      logical file offset, in blocks (54 bits)
//	bits 55..(106-agBlockLog)  absolute AG index
//	bits (107-agBlockLog)..106 block-within-AG
//	bits 107..127   extent length in blocks (21 bits)
//
// The AG-index/block-within-AG split depends on agBlockLog, which comes
// from the superblock (Geometry.AGBlockLog).
func decodeExtent(b []byte, agBlocks uint64, agBlockLog uint8) Extent {
	hi := binary.BigEndian.Uint64(b[0:8])
	lo := binary.BigEndian.Uint64(b[8:16])

	unwritten := extractBits128(hi, lo, 0, 0) != 0
	logicalOffset := extractBits128(hi, lo, 1, 54)

	ablockWidth := int(agBlockLog)
	aagEnd := 106 - ablockWidth
	aag := extractBits128(hi, lo, 55, aagEnd)
	ablock := extractBits128(hi, lo, aagEnd+1, 106)
	count := extractBits128(hi, lo, 107, 127)

	return Extent{
		LogicalOffset: logicalOffset,
		AbsoluteBlock: aag*agBlocks + ablock,
		Count:         uint32(count),
		Unwritten:     unwritten,
	}
}

// isZeroExtentSlot reports whether b (an extentRecordSize-byte slice) is
// an all-zero, unused extent slot.
func isZeroExtentSlot(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// extractBits128 returns the unsigned integer formed by bits
// [startBit, endBit] (inclusive, 0 = MSB of the 128-bit value hi:lo) of
// the big-endian 128-bit value. Callers in this file never request a
// width of 64 bits or more, so the result always fits in a uint64.
func extractBits128(hi, lo uint64, startBit, endBit int) uint64 {
	width := endBit - startBit + 1
	shift := 127 - endBit

	var resLo uint64
	switch {
	case shift == 0:
		resLo = lo
	case shift < 64:
		resLo = (lo >> uint(shift)) | (hi << uint(64-shift))
	default:
		resLo = hi >> uint(shift-64)
	}

	mask := uint64(1)<<uint(width) - 1
	return resLo & mask
}
