package xfs

import "github.com/go-xfs/xfsundelete/backend"

// ScanOptions configures a full-image scan.
type ScanOptions struct {
	// MinCTime skips inodes whose change-time is strictly less than this
	// value. Zero means no minimum.
	MinCTime uint32
	// Progress, if set, is invoked once per candidate inode slot seen.
	Progress ProgressFunc
	// OnAGError, if set, is invoked when an allocation group's AGI sector
	// cannot be read. The AG is then skipped; the run continues. This is
	// advisory only, mirroring Progress.
	OnAGError func(ag uint32, err error)
}

// Scan walks every allocation group in g, AG index ascending, tree
// pre-order, slot offset ascending, and reports every surviving deleted
// inode to emit. Scan never returns an error: per spec.md section 7,
// only the superblock read is a fatal precondition, and that happens
// before Scan is called (see ReadGeometry). Every anomaly encountered
// while scanning is skipped at the narrowest possible scope.
func Scan(src backend.Reader, g *Geometry, opts ScanOptions, emit func(DeletedInode)) {
	var examined uint64
	for ag := uint32(0); ag < g.AGCount; ag++ {
		err := WalkAG(src, g, ag, func(cb ClusterBlock) {
			_ = ScanClusterBlock(src, g, cb, opts.MinCTime, &examined, opts.Progress, emit)
		})
		if err != nil && opts.OnAGError != nil {
			opts.OnAGError(ag, err)
		}
	}
}
