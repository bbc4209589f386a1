package recovery

import "github.com/google/uuid"

// Summary accumulates run-level bookkeeping. It does not influence any
// per-inode recovery decision; it exists solely so a run's log lines can
// be correlated and so the final "Done." diagnostic can report totals.
type Summary struct {
	RunID           string
	InodesExamined  uint64
	InodesRecovered uint64
	FilesFiltered   uint64
	BytesCopied     uint64
}

// NewSummary starts a Summary tagged with a fresh run id.
func NewSummary() *Summary {
	return &Summary{RunID: uuid.NewString()}
}
