// Package staging writes and reads the flat-file artifacts that sit between
// source extraction and the raw warehouse layer.
//
// An artifact is a header-first CSV with the lineage column appended to every
// row. Writes go through a temp file in the target directory, are fsynced,
// then renamed over the previous artifact, so a reader sees either the old
// file or the new one.
package staging

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"warehouse/internal/records"
)

// TimestampLayout renders lineage timestamps in artifacts.
const TimestampLayout = time.RFC3339Nano

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Artifact is an immutable reference to a finished staging file.
type Artifact struct {
	Entity    string
	Path      string
	Timestamp time.Time
	Rows      int
	Fields    []string
}

// WriteError reports a failed staging write. The previous artifact, if any, is
// left in place.
type WriteError struct {
	Entity string
	Path   string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("staging: write %s (%s): %v", e.Entity, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Mirror copies a finished artifact to secondary storage.
type Mirror interface {
	Put(ctx context.Context, key, path string) error
}

// Writer produces staging artifacts under Dir.
type Writer struct {
	Dir    string
	Comma  rune   // field delimiter; ',' when zero
	Mirror Mirror // optional
	RunID  string // mirror key segment; empty skips the segment
}

// LineageValue normalizes ts the way it is stored: UTC with microsecond
// precision, which every warehouse backend can represent exactly.
func LineageValue(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Microsecond)
}

// Write stores set as <Dir>/<file> with the lineage column appended. An empty
// file name defaults to <entity>.csv. Every row receives the same timestamp.
func (w *Writer) Write(ctx context.Context, entity, file string, set records.Set, ts time.Time) (Artifact, error) {
	if strings.TrimSpace(file) == "" {
		file = entity + ".csv"
	}
	path := filepath.Join(w.Dir, file)
	fail := func(err error) (Artifact, error) {
		return Artifact{}, &WriteError{Entity: entity, Path: path, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if set.Has(records.LineageColumn) {
		return fail(fmt.Errorf("input already carries %s", records.LineageColumn))
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}

	ts = LineageValue(ts)
	stamp := ts.Format(TimestampLayout)
	fields := append(append([]string(nil), set.Fields...), records.LineageColumn)

	tmp := filepath.Join(dir, "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	if err := writeCSV(tmp, w.comma(), fields, set, stamp); err != nil {
		_ = os.Remove(tmp)
		return fail(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fail(err)
	}

	art := Artifact{Entity: entity, Path: path, Timestamp: ts, Rows: set.Len(), Fields: fields}
	log.Printf("staging: entity=%s path=%s rows=%d etl_timestamp=%s", entity, path, art.Rows, stamp)

	if w.Mirror != nil {
		key := filepath.ToSlash(filepath.Clean(file))
		if w.RunID != "" {
			key = w.RunID + "/" + file
		}
		if err := w.Mirror.Put(ctx, key, path); err != nil {
			return fail(fmt.Errorf("mirror: %w", err))
		}
	}
	return art, nil
}

func (w *Writer) comma() rune {
	if w.Comma == 0 {
		return ','
	}
	return w.Comma
}

func writeCSV(path string, comma rune, fields []string, set records.Set, stamp string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	cw := csv.NewWriter(f)
	cw.Comma = comma
	if err := cw.Write(fields); err != nil {
		return err
	}
	rec := make([]string, len(fields))
	for _, r := range set.Rows {
		for i, name := range set.Fields {
			rec[i] = formatCell(r[name])
		}
		rec[len(rec)-1] = stamp
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// formatCell renders one value. NULL becomes an empty cell.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}

// Read parses an artifact back into a record set. Every value is a string;
// empty cells are NULL. A UTF-8 BOM on the first header cell is stripped.
func Read(ctx context.Context, path string, comma rune) (records.Set, error) {
	if err := ctx.Err(); err != nil {
		return records.Set{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return records.Set{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	if comma != 0 {
		cr.Comma = comma
	}
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return records.Set{}, fmt.Errorf("read %s: missing header", path)
	}
	if err != nil {
		return records.Set{}, fmt.Errorf("read %s: %w", path, err)
	}
	header = stripHeaderBOM(header)

	set := records.Set{Fields: header}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records.Set{}, fmt.Errorf("read %s: %w", path, err)
		}
		rec := make(records.Record, len(header))
		for i, name := range header {
			if row[i] == "" {
				rec[name] = nil
				continue
			}
			rec[name] = row[i]
		}
		set.Rows = append(set.Rows, rec)
	}
	return set, nil
}

// stripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func stripHeaderBOM(headers []string) []string {
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}
