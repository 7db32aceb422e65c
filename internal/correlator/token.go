package correlator

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// formatToken joins a millisecond timestamp, a process sequence and a random
// suffix. The sequence alone rules out collisions within one process.
func formatToken(now time.Time, seq uint64) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	var b strings.Builder
	b.Grow(40)
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	b.WriteByte('.')
	b.WriteString(strconv.FormatUint(seq, 10))
	b.WriteByte('.')
	b.WriteString(random)
	return b.String()
}
