package storage

import (
	"testing"
	"time"

	"warehouse/internal/records"
)

func TestFingerprint_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := records.Set{
		Fields: []string{"id", "name"},
		Rows: []records.Record{
			{"id": int64(1), "name": "a"},
			{"id": int64(2), "name": "b"},
		},
	}
	b := records.Set{
		Fields: []string{"name", "id"},
		Rows: []records.Record{
			{"id": int64(2), "name": "b"},
			{"id": int64(1), "name": "a"},
		},
	}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("fingerprints differ for reordered rows and fields")
	}
}

func TestFingerprint_ExcludesColumns(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(ts time.Time) records.Set {
		return records.Set{
			Fields: []string{"id", records.LineageColumn},
			Rows:   []records.Record{{"id": int64(1), records.LineageColumn: ts}},
		}
	}
	if Fingerprint(mk(t1)) == Fingerprint(mk(t1.Add(time.Hour))) {
		t.Fatal("lineage column should affect fingerprint when not excluded")
	}
	if Fingerprint(mk(t1), records.LineageColumn) != Fingerprint(mk(t1.Add(time.Hour)), records.LineageColumn) {
		t.Fatal("excluded lineage column changed fingerprint")
	}
}

func TestFingerprint_DetectsChanges(t *testing.T) {
	t.Parallel()

	base := records.Set{Fields: []string{"v"}, Rows: []records.Record{{"v": "x"}}}
	changed := records.Set{Fields: []string{"v"}, Rows: []records.Record{{"v": "y"}}}
	null := records.Set{Fields: []string{"v"}, Rows: []records.Record{{"v": nil}}}
	dup := records.Set{Fields: []string{"v"}, Rows: []records.Record{{"v": "x"}, {"v": "x"}}}

	fp := Fingerprint(base)
	for name, s := range map[string]records.Set{"changed": changed, "null": null, "duplicate": dup} {
		if Fingerprint(s) == fp {
			t.Fatalf("%s set has the same fingerprint as base", name)
		}
	}
	loc := time.FixedZone("x", 3600)
	ts := time.Date(2024, 1, 1, 1, 0, 0, 0, loc)
	u := records.Set{Fields: []string{"t"}, Rows: []records.Record{{"t": ts}}}
	w := records.Set{Fields: []string{"t"}, Rows: []records.Record{{"t": ts.UTC()}}}
	if Fingerprint(u) != Fingerprint(w) {
		t.Fatal("time zone changed fingerprint")
	}
}
