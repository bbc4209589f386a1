package xfs_test

import (
	"testing"

	"github.com/go-xfs/xfsundelete/xfs"
	"github.com/go-xfs/xfsundelete/xfs/xfstest"
)

// TestExtentRoundTrip checks that packing an extent spec the way a real
// XFS image would encode it, then decoding it back out through a full
// Scan, recovers the exact fields, across several ag_block_log values.
func TestExtentRoundTrip(t *testing.T) {
	for _, agBlockLog := range []uint8{5, 10, 15, 21} {
		agBlockLog := agBlockLog
		t.Run("", func(t *testing.T) {
			agBlocks := uint32(1) << agBlockLog
			g := xfstest.Geometry{
				BlockSize:      testBlockSize,
				SectorSize:     testSectorSize,
				InodeSize:      testInodeSize,
				InodesPerBlock: testInopBlock,
				AGBlocks:       agBlocks,
				AGCount:        1,
				DataBlocks:     uint64(agBlocks) * 2,
				AGBlockLog:     agBlockLog,
				InodeCount:     10,
			}
			// Only AG 0, blocks 0-1 are ever touched; the image need not
			// span the whole (possibly huge) allocation group.
			const minBlocks = 4
			img := xfstest.NewImage(minBlocks * testBlockSize)
			img.WriteSuperblock(g)
			img.WriteAGI(g, 0, 1)
			img.WriteBTreeLeaf(g, 0, 1, "IABT", []uint32{0})
			img.WriteDeletedInodeSlot(g, 0, 0, testSlot, 5, 55, []xfstest.ExtentSpec{
				{LogicalOffset: 0, AAG: 0, ABlock: 1, Count: 1},
				{LogicalOffset: 3, AAG: 0, ABlock: 7, Count: 9},
			})

			geom := readGeometry(t, img)
			var found []xfs.DeletedInode
			xfs.Scan(img, geom, xfs.ScanOptions{}, func(d xfs.DeletedInode) {
				found = append(found, d)
			})
			if len(found) != 1 {
				t.Fatalf("expected one recovered inode, got %d", len(found))
			}
			run, ok := found[0].Extents[3]
			if !ok {
				t.Fatalf("missing extent at logical offset 3")
			}
			if run.Block != 7 || run.Count != 9 {
				t.Errorf("got block=%d count=%d, want block=7 count=9", run.Block, run.Count)
			}
		})
	}
}
