package xfs_test

import (
	"testing"

	"github.com/go-test/deep"

	"github.com/go-xfs/xfsundelete/xfs"
	"github.com/go-xfs/xfsundelete/xfs/xfstest"
)

const (
	testBlockSize  = 4096
	testSectorSize = 512
	testInodeSize  = 512
	testInopBlock  = 8 // 4096 / 512
	testAGBlocks   = 1024
	testAGBlockLog = 10 // log2(1024)
	// testSlot is the inode slot used in AG 0's cluster block 0: slot 0
	// of that block overlaps the superblock in sector 0.
	testSlot = 1
)

func baseGeometry(agCount uint32, dataBlocks uint64, inodeCount uint64) xfstest.Geometry {
	return xfstest.Geometry{
		BlockSize:      testBlockSize,
		SectorSize:     testSectorSize,
		InodeSize:      testInodeSize,
		InodesPerBlock: testInopBlock,
		AGBlocks:       testAGBlocks,
		AGCount:        agCount,
		DataBlocks:     dataBlocks,
		AGBlockLog:     testAGBlockLog,
		InodeCount:     inodeCount,
	}
}

func imageFor(g xfstest.Geometry, agCount uint32) *xfstest.Image {
	size := int64(agCount) * int64(g.AGBlocks) * int64(g.BlockSize)
	img := xfstest.NewImage(int(size))
	img.WriteSuperblock(g)
	return img
}

// S1: empty AGI leaves in every AG yield zero recovered files.
func TestScanEmptyAGI(t *testing.T) {
	g := baseGeometry(4, 1_000_000, 0)
	img := imageFor(g, 4)
	for ag := uint32(0); ag < 4; ag++ {
		img.WriteAGI(g, ag, 1)
		img.WriteBTreeLeaf(g, ag, 1, "IABT", nil)
	}

	geom := readGeometry(t, img)
	var found []xfs.DeletedInode
	xfs.Scan(img, geom, xfs.ScanOptions{}, func(d xfs.DeletedInode) {
		found = append(found, d)
	})
	if len(found) != 0 {
		t.Fatalf("expected zero recovered inodes, got %d", len(found))
	}
}

// S2: single deleted inode with one extent at logical offset 0 is recovered.
func TestScanSingleDeletedInode(t *testing.T) {
	g := baseGeometry(1, 1_000_000, 200)
	img := imageFor(g, 1)
	img.WriteAGI(g, 0, 1)
	img.WriteBTreeLeaf(g, 0, 1, "IABT", []uint32{0})
	img.WriteDeletedInodeSlot(g, 0, 0, testSlot, 131, 1_600_000_000, []xfstest.ExtentSpec{
		{LogicalOffset: 0, AAG: 0, ABlock: 5, Count: 1},
	})

	geom := readGeometry(t, img)
	var found []xfs.DeletedInode
	xfs.Scan(img, geom, xfs.ScanOptions{}, func(d xfs.DeletedInode) {
		found = append(found, d)
	})
	if len(found) != 1 {
		t.Fatalf("expected one recovered inode, got %d", len(found))
	}
	want := xfs.DeletedInode{
		Inode: 131,
		CTime: 1_600_000_000,
		Extents: map[uint64]xfs.DiskRun{
			0: {Block: 5, Count: 1},
		},
	}
	if diff := deep.Equal(found[0], want); diff != nil {
		t.Errorf("recovered inode mismatch: %v", diff)
	}
}

// S3: a preallocated (unwritten) extent is discarded; since it was the
// only extent, the inode has no offset-0 extent left and is dropped.
func TestScanPreallocatedExtentDiscarded(t *testing.T) {
	g := baseGeometry(1, 1_000_000, 200)
	img := imageFor(g, 1)
	img.WriteAGI(g, 0, 1)
	img.WriteBTreeLeaf(g, 0, 1, "IABT", []uint32{0})
	img.WriteDeletedInodeSlot(g, 0, 0, testSlot, 131, 1_600_000_000, []xfstest.ExtentSpec{
		{LogicalOffset: 0, AAG: 0, ABlock: 5, Count: 1, Unwritten: true},
	})

	geom := readGeometry(t, img)
	var found []xfs.DeletedInode
	xfs.Scan(img, geom, xfs.ScanOptions{}, func(d xfs.DeletedInode) {
		found = append(found, d)
	})
	if len(found) != 0 {
		t.Fatalf("expected no recovered inode, got %d", len(found))
	}
}

// S5: an out-of-image extent is dropped while an in-range extent at
// offset 0 survives.
func TestScanOutOfImageExtentDropped(t *testing.T) {
	dataBlocks := uint64(testAGBlocks) // deliberately small so one extent overflows
	g := baseGeometry(1, dataBlocks, 200)
	img := imageFor(g, 1)
	img.WriteAGI(g, 0, 1)
	img.WriteBTreeLeaf(g, 0, 1, "IABT", []uint32{0})
	img.WriteDeletedInodeSlot(g, 0, 0, testSlot, 7, 42, []xfstest.ExtentSpec{
		{LogicalOffset: 0, AAG: 0, ABlock: 5, Count: 1},
		{LogicalOffset: 1, AAG: 0, ABlock: uint32(dataBlocks - 1), Count: 2}, // overflows dataBlocks
	})

	geom := readGeometry(t, img)
	var found []xfs.DeletedInode
	xfs.Scan(img, geom, xfs.ScanOptions{}, func(d xfs.DeletedInode) {
		found = append(found, d)
	})
	if len(found) != 1 {
		t.Fatalf("expected one recovered inode, got %d", len(found))
	}
	if _, ok := found[0].Extents[1]; ok {
		t.Errorf("out-of-image extent at logical offset 1 should have been dropped")
	}
	if len(found[0].Extents) != 1 {
		t.Errorf("expected exactly one surviving extent, got %d", len(found[0].Extents))
	}
}

// S6: both IABT and IAB3 tree formats are walked, in AG order.
func TestScanBothTreeFormats(t *testing.T) {
	g := baseGeometry(2, 1_000_000, 200)
	img := imageFor(g, 2)

	img.WriteAGI(g, 0, 2)
	img.WriteBTreeNode(g, 0, 2, "IABT", []uint32{1})
	img.WriteBTreeLeaf(g, 0, 1, "IABT", []uint32{0})
	img.WriteDeletedInodeSlot(g, 0, 0, testSlot, 10, 100, []xfstest.ExtentSpec{
		{LogicalOffset: 0, AAG: 0, ABlock: 5, Count: 1},
	})

	img.WriteAGI(g, 1, 2)
	img.WriteBTreeNode(g, 1, 2, "IAB3", []uint32{1})
	img.WriteBTreeLeaf(g, 1, 1, "IAB3", []uint32{0})
	img.WriteDeletedInodeSlot(g, 1, 0, 0, 20, 200, []xfstest.ExtentSpec{
		{LogicalOffset: 0, AAG: 1, ABlock: 5, Count: 1},
	})

	geom := readGeometry(t, img)
	var order []uint64
	xfs.Scan(img, geom, xfs.ScanOptions{}, func(d xfs.DeletedInode) {
		order = append(order, d.Inode)
	})
	if diff := deep.Equal(order, []uint64{10, 20}); diff != nil {
		t.Errorf("expected AG-major traversal order: %v", diff)
	}
}

// minimum-ctime filter: inodes older than the configured floor are skipped.
func TestScanMinCTimeFilter(t *testing.T) {
	g := baseGeometry(1, 1_000_000, 200)
	img := imageFor(g, 1)
	img.WriteAGI(g, 0, 1)
	img.WriteBTreeLeaf(g, 0, 1, "IABT", []uint32{0})
	img.WriteDeletedInodeSlot(g, 0, 0, testSlot, 1, 100, []xfstest.ExtentSpec{
		{LogicalOffset: 0, AAG: 0, ABlock: 5, Count: 1},
	})

	geom := readGeometry(t, img)
	var found []xfs.DeletedInode
	xfs.Scan(img, geom, xfs.ScanOptions{MinCTime: 101}, func(d xfs.DeletedInode) {
		found = append(found, d)
	})
	if len(found) != 0 {
		t.Fatalf("expected inode older than min-ctime to be skipped, got %d", len(found))
	}
}

func readGeometry(t *testing.T, img *xfstest.Image) *xfs.Geometry {
	t.Helper()
	g, err := xfs.ReadGeometry(img)
	if err != nil {
		t.Fatalf("ReadGeometry: %v", err)
	}
	return g
}
