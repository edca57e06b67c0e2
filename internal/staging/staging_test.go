package staging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"warehouse/internal/config"
	"warehouse/internal/records"
)

func customers() records.Set {
	return records.Set{
		Fields: []string{"id", "full_name", "gender"},
		Rows: []records.Record{
			{"id": int64(1), "full_name": "Jane Doe", "gender": "F"},
			{"id": int64(2), "full_name": "Li, Wei", "gender": nil},
		},
	}
}

func TestWriteAndRead(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &Writer{Dir: dir}
	ts := time.Date(2024, 6, 1, 12, 0, 0, 123456789, time.FixedZone("x", 7200))

	art, err := w.Write(context.Background(), "customers", "", customers(), ts)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if art.Path != filepath.Join(dir, "customers.csv") || art.Rows != 2 {
		t.Fatalf("artifact = %+v", art)
	}
	if !art.Timestamp.Equal(ts.Truncate(time.Microsecond)) || art.Timestamp.Location() != time.UTC {
		t.Fatalf("artifact timestamp = %v, want UTC microsecond precision", art.Timestamp)
	}

	set, err := Read(context.Background(), art.Path, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if strings.Join(set.Fields, ",") != "id,full_name,gender,etl_timestamp" {
		t.Fatalf("fields = %v", set.Fields)
	}
	if set.Len() != 2 {
		t.Fatalf("rows = %d, want 2", set.Len())
	}
	want := "2024-06-01T10:00:00.123456Z"
	for i, r := range set.Rows {
		if r[records.LineageColumn] != want {
			t.Fatalf("row %d lineage = %v, want %s", i, r[records.LineageColumn], want)
		}
	}
	if set.Rows[1]["full_name"] != "Li, Wei" {
		t.Fatalf("quoted cell = %v", set.Rows[1]["full_name"])
	}
	if set.Rows[1]["gender"] != nil {
		t.Fatalf("empty cell = %#v, want nil", set.Rows[1]["gender"])
	}
}

func TestWriteNestedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &Writer{Dir: dir}
	art, err := w.Write(context.Background(), "customers", filepath.Join("sub", "customers.csv"), customers(), time.Now())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if want := filepath.Join(dir, "sub", "customers.csv"); art.Path != want {
		t.Fatalf("path = %s, want %s", art.Path, want)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "sub"))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "customers.csv" {
		t.Fatalf("sub dir entries = %v, want only customers.csv", entries)
	}
	set, err := Read(context.Background(), art.Path, 0)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("rows = %d, want 2", set.Len())
	}
}

func TestWriteReplacesPreviousArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &Writer{Dir: dir, Comma: ';'}
	ctx := context.Background()

	if _, err := w.Write(ctx, "customers", "c.csv", customers(), time.Now()); err != nil {
		t.Fatalf("first Write() error = %v", err)
	}
	one := records.Set{Fields: []string{"id"}, Rows: []records.Record{{"id": "9"}}}
	art, err := w.Write(ctx, "customers", "c.csv", one, time.Now())
	if err != nil {
		t.Fatalf("second Write() error = %v", err)
	}
	set, err := Read(ctx, art.Path, ';')
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if set.Len() != 1 || set.Rows[0]["id"] != "9" {
		t.Fatalf("artifact not replaced: %+v", set.Rows)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("dir has %d entries, want only the artifact", len(entries))
	}
}

func TestWriteFailureKeepsPreviousArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w := &Writer{Dir: dir}
	ctx := context.Background()
	art, err := w.Write(ctx, "customers", "", customers(), time.Now())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	before, _ := os.ReadFile(art.Path)

	bad := records.Set{Fields: []string{"id", records.LineageColumn}}
	_, err = w.Write(ctx, "customers", "", bad, time.Now())
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("Write() error = %v, want *WriteError", err)
	}
	if we.Entity != "customers" || we.Path != art.Path {
		t.Fatalf("WriteError = %+v", we)
	}
	after, _ := os.ReadFile(art.Path)
	if string(before) != string(after) {
		t.Fatal("failed write modified previous artifact")
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := w.Write(canceled, "customers", "", customers(), time.Now()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write() with canceled ctx = %v", err)
	}
}

func TestReadStripsBOM(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "bom.csv")
	if err := os.WriteFile(p, []byte("\uFEFFid,name\n1,\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	set, err := Read(context.Background(), p, ',')
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if set.Fields[0] != "id" {
		t.Fatalf("header[0] = %q", set.Fields[0])
	}
	if set.Rows[0]["name"] != nil {
		t.Fatalf("empty cell = %#v", set.Rows[0]["name"])
	}

	if _, err := Read(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), 0); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestFormatCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]byte("b"), "b"},
		{int64(7), "7"},
		{1234.5, "1234.5"},
		{true, "true"},
		{time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), "2024-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		if got := formatCell(tt.in); got != tt.want {
			t.Fatalf("formatCell(%#v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// fakeStore records mirror calls.
type fakeStore struct {
	exists  bool
	made    int
	puts    []string
	failPut error
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return f.exists, nil }

func (f *fakeStore) MakeBucket(context.Context, string, minio.MakeBucketOptions) error {
	f.made++
	f.exists = true
	return nil
}

func (f *fakeStore) FPutObject(_ context.Context, bucket, object, _ string, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPut != nil {
		return minio.UploadInfo{}, f.failPut
	}
	f.puts = append(f.puts, bucket+"/"+object)
	return minio.UploadInfo{Size: 1}, nil
}

func TestMirror(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	m := newMirror(store, config.Mirror{Bucket: "staging", Prefix: "/warehouse/"})
	w := &Writer{Dir: t.TempDir(), Mirror: m, RunID: "run-1"}

	ctx := context.Background()
	for _, e := range []string{"customers", "goals"} {
		if _, err := w.Write(ctx, e, "", customers(), time.Now()); err != nil {
			t.Fatalf("Write(%s) error = %v", e, err)
		}
	}
	if store.made != 1 {
		t.Fatalf("MakeBucket calls = %d, want 1", store.made)
	}
	want := []string{"staging/warehouse/run-1/customers.csv", "staging/warehouse/run-1/goals.csv"}
	if strings.Join(store.puts, ",") != strings.Join(want, ",") {
		t.Fatalf("puts = %v, want %v", store.puts, want)
	}

	store.failPut = errors.New("denied")
	var we *WriteError
	if _, err := w.Write(ctx, "performance", "", customers(), time.Now()); !errors.As(err, &we) {
		t.Fatalf("mirror failure error = %v, want *WriteError", err)
	}
}

func TestNewMinIOMirrorValidates(t *testing.T) {
	t.Parallel()

	if _, err := NewMinIOMirror(config.Mirror{Bucket: "b"}); err == nil {
		t.Fatal("missing endpoint: error = nil")
	}
	if _, err := NewMinIOMirror(config.Mirror{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("missing bucket: error = nil")
	}
	m, err := NewMinIOMirror(config.Mirror{Endpoint: "https://minio.local:9000", Bucket: "b", Prefix: "p"})
	if err != nil {
		t.Fatalf("NewMinIOMirror() error = %v", err)
	}
	if m.Key("x.csv") != "p/x.csv" {
		t.Fatalf("Key() = %q", m.Key("x.csv"))
	}
}
