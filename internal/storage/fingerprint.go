package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/zeebo/xxh3"

	"warehouse/internal/records"
)

// Fingerprint summarizes the contents of a record set independent of row
// order. Columns named in exclude (typically the lineage column) are ignored,
// so two loads of the same source at different times compare equal.
//
// Values are rendered with %v except time.Time, which is normalized to UTC so
// that backends returning different zones still agree.
func Fingerprint(set records.Set, exclude ...string) uint64 {
	fields := make([]string, 0, len(set.Fields))
	for _, f := range set.Fields {
		if !slices.Contains(exclude, f) {
			fields = append(fields, f)
		}
	}
	slices.Sort(fields)

	var sum uint64
	buf := make([]byte, 0, 256)
	for _, r := range set.Rows {
		buf = buf[:0]
		for _, f := range fields {
			buf = append(buf, f...)
			buf = append(buf, '=')
			buf = appendValue(buf, r[f])
			buf = append(buf, 0x1f)
		}
		sum += xxh3.Hash(buf)
	}
	return sum ^ uint64(len(set.Rows))
}

func appendValue(buf []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(buf, 0x00)
	case time.Time:
		return x.UTC().AppendFormat(buf, time.RFC3339Nano)
	case []byte:
		return append(buf, x...)
	default:
		return fmt.Appendf(buf, "%v", x)
	}
}
