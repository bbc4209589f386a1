package xfs

import (
	"encoding/binary"

	"github.com/go-xfs/xfsundelete/backend"
)

const (
	agiInfoSectorMultiple = 2    // AGI sector lives at 2*sector_size within the AG
	agiRootOffset         = 20   // byte offset of agi_root within the AGI sector
	magicIABT             = "IABT"
	magicIAB3             = "IAB3"
	headerSizeIABT        = 16
	headerSizeIAB3        = 56
	leafRecordSize        = 16 // same stride for both tree formats, see DESIGN.md
	pointerSize           = 4
	inodesPerChunk        = 64
)

// ClusterBlock identifies one inode cluster block discovered by the
// B+tree walk: iblock is relative to the start of ag.
type ClusterBlock struct {
	AG     uint32
	IBlock uint32
}

// WalkAG reads the AG inode information sector for ag, locates the root
// of its inode B+tree, and walks it, invoking emit once per inode
// cluster block the tree's leaves describe. A read failure on the AGI
// sector is returned to the caller; everything below the AGI read is a
// per-subtree anomaly that is skipped rather than propagated, per
// spec's error-handling policy for format anomalies.
func WalkAG(src backend.Reader, g *Geometry, ag uint32, emit func(ClusterBlock)) error {
	agiSector := make([]byte, g.SectorSize)
	off := g.agByteBase(ag) + agiInfoSectorMultiple*int64(g.SectorSize)
	if _, err := src.ReadAt(agiSector, off); err != nil {
		return err
	}
	agiRoot := binary.BigEndian.Uint32(agiSector[agiRootOffset : agiRootOffset+4])

	w := &treeWalker{src: src, g: g, ag: ag, emit: emit, visited: map[uint32]bool{}}
	w.walk(agiRoot)
	return nil
}

// treeWalker holds the per-AG state for one inode B+tree traversal. The
// walk is iterative (a worklist, not recursion) so that a pathologically
// deep or cyclic tree cannot exhaust the call stack; visited guards
// against revisiting the same block twice on a cyclic tree.
type treeWalker struct {
	src     backend.Reader
	g       *Geometry
	ag      uint32
	emit    func(ClusterBlock)
	visited map[uint32]bool
}

func (w *treeWalker) walk(root uint32) {
	worklist := []uint32{root}
	for len(worklist) > 0 {
		block := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		if w.visited[block] {
			continue
		}
		w.visited[block] = true

		children, ok := w.visitBlock(block)
		if !ok {
			continue
		}
		// Push in reverse so the first child is popped first, keeping
		// the walk in left-to-right pre-order.
		for i := len(children) - 1; i >= 0; i-- {
			worklist = append(worklist, children[i])
		}
	}
}

// visitBlock reads one B+tree block and, for an internal node, returns
// its child block numbers; for a leaf, it emits cluster blocks directly
// and returns no children. ok is false when the block's magic is not
// recognized, which is silently skipped per spec.
func (w *treeWalker) visitBlock(block uint32) (children []uint32, ok bool) {
	buf := make([]byte, w.g.BlockSize)
	if _, err := w.src.ReadAt(buf, w.g.blockByteOffset(w.ag, block)); err != nil {
		return nil, false
	}

	var headerSize int
	switch string(buf[0:4]) {
	case magicIABT:
		headerSize = headerSizeIABT
	case magicIAB3:
		headerSize = headerSizeIAB3
	default:
		return nil, false
	}

	level := binary.BigEndian.Uint16(buf[4:6])
	numrecs := binary.BigEndian.Uint16(buf[6:8])

	if level > 0 {
		return w.internalChildren(buf, headerSize, numrecs), true
	}
	w.emitLeaf(buf, headerSize, numrecs)
	return nil, true
}

func (w *treeWalker) internalChildren(buf []byte, headerSize int, numrecs uint16) []uint32 {
	ptrBase := (len(buf) + headerSize) / 2
	children := make([]uint32, 0, numrecs)
	for i := 0; i < int(numrecs); i++ {
		off := ptrBase + i*pointerSize
		if off+pointerSize > len(buf) {
			break
		}
		children = append(children, binary.BigEndian.Uint32(buf[off:off+pointerSize]))
	}
	return children
}

func (w *treeWalker) emitLeaf(buf []byte, headerSize int, numrecs uint16) {
	for i := 0; i < int(numrecs); i++ {
		off := headerSize + i*leafRecordSize
		if off+4 > len(buf) {
			break
		}
		agiStart := binary.BigEndian.Uint32(buf[off : off+4])
		for i := uint32(0); i < inodesPerChunk; i += uint32(w.g.InodesPerBlock) {
			iblock := (agiStart + i) / uint32(w.g.InodesPerBlock)
			w.emit(ClusterBlock{AG: w.ag, IBlock: iblock})
		}
	}
}
