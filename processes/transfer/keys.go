package transfer

import "fmt"

const (
	// ProcessingPrefix holds staged files awaiting a load.
	ProcessingPrefix = "processing_zone/"
	// UnprocessedPrefix quarantines files whose load failed, for out-of-process retry.
	UnprocessedPrefix = "unprocess_zone/"
)

func fileName(table string, partitionID string) string {
	return fmt.Sprintf("%s_%s.csv", table, partitionID)
}

// StagedKey is deterministic per table+date, so a re-run of the same partition overwrites
// a leftover file instead of accumulating duplicates.
func StagedKey(table string, partitionID string) string {
	return ProcessingPrefix + fileName(table, partitionID)
}

func QuarantineKey(table string, partitionID string) string {
	return UnprocessedPrefix + fileName(table, partitionID)
}
