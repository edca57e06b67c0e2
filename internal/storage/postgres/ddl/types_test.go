package ddl

import "testing"

func TestMapType(t *testing.T) {
	t.Parallel()

	for kind, want := range map[string]string{
		"int":         "BIGINT",
		" Integer ":   "BIGINT",
		"decimal":     "DOUBLE PRECISION",
		"boolean":     "BOOLEAN",
		"date":        "DATE",
		"datetime":    "TIMESTAMPTZ",
		"timestamptz": "TIMESTAMPTZ",
		"varchar":     "TEXT",
		"geometry":    "TEXT",
		"":            "TEXT",
	} {
		if got := MapType(kind); got != want {
			t.Errorf("MapType(%q) = %q, want %q", kind, got, want)
		}
	}
}
