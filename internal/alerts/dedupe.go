package alerts

import "fmt"

// DedupeKey identifies the logical alert for a stored result. The same
// string is built in SQL by the backfill query; keep the two in sync.
func DedupeKey(searchID, resultID uint64) string {
	return fmt.Sprintf("s%d:r%d", searchID, resultID)
}
