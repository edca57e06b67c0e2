package ddl

import "testing"

func TestMapType(t *testing.T) {
	t.Parallel()

	for kind, want := range map[string]string{
		"bigint":    "INTEGER",
		"Boolean":   "INTEGER",
		"real":      "REAL",
		"decimal":   "NUMERIC",
		"date":      "DATE",
		"datetime":  "TIMESTAMP",
		"blob":      "BLOB",
		"string":    "TEXT",
		"somethin'": "TEXT",
	} {
		if got := MapType(kind); got != want {
			t.Errorf("MapType(%q) = %q, want %q", kind, got, want)
		}
	}
}
