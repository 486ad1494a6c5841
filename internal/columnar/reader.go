// Package columnar reads named columns out of the wide price parquet
// file, one row group at a time.
//
// The price file has one `date` column plus one float column per
// ticker. Reads are restricted to the requested columns, dates are
// normalized to canonical YYYY-MM-DD strings regardless of the file's
// native temporal encoding, and non-finite values are mapped to an
// explicit missing marker before records leave this package.
//
// A corrupt row group is logged and skipped rather than failing the
// whole read: a single bad chunk must not fail an otherwise valid
// multi-ticker request. Only when every chunk yields nothing does the
// aggregate ErrNoValidRecords surface.
package columnar

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
	"github.com/thanos-io/objstore"

	"github.com/quantio/quantd/internal/errors"
	"github.com/quantio/quantd/internal/logging"
)

// DateColumn is the canonical name of the date column in price files.
const DateColumn = "date"

var log = logging.Component("columnar")

// Record is one cleaned row: a canonical date plus the values observed
// for the requested tickers on that date. Missing observations are
// absent from Values.
type Record struct {
	Date   string
	Values map[string]float64
}

// Reader reads column subsets from parquet objects in a bucket.
//
// Remote objects are cached on local disk between reads; the filesystem
// provider makes local files a degenerate case of the same path.
type Reader struct {
	bucket   objstore.Bucket
	cacheDir string
}

// NewReader creates a reader over the given bucket, caching downloaded
// objects under cacheDir.
func NewReader(bucket objstore.Bucket, cacheDir string) *Reader {
	return &Reader{bucket: bucket, cacheDir: cacheDir}
}

// Columns returns the column names of a parquet object, date included.
// Useful for discovering which tickers a price file carries.
func (r *Reader) Columns(ctx context.Context, location string) ([]string, error) {
	pf, closer, err := r.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	paths := pf.Schema().Columns()
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		if len(p) == 1 {
			names = append(names, p[0])
		}
	}
	return names, nil
}

// Read loads the date column plus the named ticker columns from a
// parquet object and returns cleaned records in file row order.
//
// When rowGroups is non-empty, only those row group indexes are read;
// otherwise every row group is. Row groups that fail to decode are
// skipped. Returns ErrSourceNotFound when the object does not exist and
// ErrNoValidRecords when no surviving row contains any requested field.
func (r *Reader) Read(ctx context.Context, location string, fields []string, rowGroups ...int) ([]Record, error) {
	pf, closer, err := r.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	schema := pf.Schema()

	dateCol, ok := schema.Lookup(DateColumn)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNoValidRecords, "%s: no %q column", location, DateColumn)
	}

	// Resolve requested tickers against the file schema up front so one
	// unknown column does not poison the per-chunk loop.
	type column struct {
		name string
		leaf parquet.LeafColumn
	}
	cols := make([]column, 0, len(fields))
	for _, name := range fields {
		leaf, ok := schema.Lookup(name)
		if !ok {
			log.Warn("requested column not in source", "location", location, "column", name)
			continue
		}
		cols = append(cols, column{name: name, leaf: leaf})
	}
	if len(cols) == 0 {
		return nil, errors.Wrapf(errors.ErrNoValidRecords, "%s: none of %v present", location, fields)
	}

	groups := pf.RowGroups()
	selected := rowGroups
	if len(selected) == 0 {
		selected = make([]int, len(groups))
		for i := range groups {
			selected[i] = i
		}
	}

	var records []Record
	usable := 0

	for _, gi := range selected {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if gi < 0 || gi >= len(groups) {
			log.Warn("row group index out of range", "location", location, "row_group", gi)
			continue
		}
		rg := groups[gi]

		dates, err := readDates(rg, dateCol)
		if err != nil {
			log.Warn("skipping row group", "location", location, "row_group", gi, "error", err)
			continue
		}

		chunk := make([]Record, len(dates))
		for i, d := range dates {
			chunk[i] = Record{Date: d, Values: make(map[string]float64, len(cols))}
		}

		ok := true
		for _, c := range cols {
			values, err := readColumn(rg, c.leaf.ColumnIndex)
			if err != nil || len(values) != len(dates) {
				log.Warn("skipping row group", "location", location, "row_group", gi,
					"column", c.name, "error", err)
				ok = false
				break
			}
			for i, v := range values {
				f, valid := floatValue(v)
				if !valid {
					continue
				}
				chunk[i].Values[c.name] = f
			}
		}
		if !ok {
			continue
		}

		for _, rec := range chunk {
			if len(rec.Values) > 0 {
				usable++
			}
		}
		records = append(records, chunk...)
	}

	if usable == 0 {
		return nil, errors.Wrapf(errors.ErrNoValidRecords, "%s: tickers %v", location, fields)
	}
	return records, nil
}

// open fetches the object into the local cache and opens it as parquet.
func (r *Reader) open(ctx context.Context, location string) (*parquet.File, io.Closer, error) {
	path, err := r.ensureLocal(ctx, location)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open cached object")
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "stat cached object")
	}

	pf, err := parquet.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "parse parquet %s", location)
	}
	return pf, f, nil
}

// ensureLocal downloads the object if it is not already cached.
func (r *Reader) ensureLocal(ctx context.Context, location string) (string, error) {
	path := filepath.Join(r.cacheDir, filepath.FromSlash(location))

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	rc, err := r.bucket.Get(ctx, location)
	if err != nil {
		if r.bucket.IsObjNotFoundErr(err) {
			return "", fmt.Errorf("object %s: %w", location, errors.ErrSourceNotFound)
		}
		return "", errors.Wrapf(err, "fetch %s", location)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, "create cache dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return "", errors.Wrap(err, "create cache file")
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrapf(err, "download %s", location)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return path, nil
}

// readDates reads and normalizes the date column of one row group.
func readDates(rg parquet.RowGroup, leaf parquet.LeafColumn) ([]string, error) {
	values, err := readColumn(rg, leaf.ColumnIndex)
	if err != nil {
		return nil, err
	}

	lt := leaf.Node.Type().LogicalType()
	dates := make([]string, len(values))
	for i, v := range values {
		d, err := normalizeDate(v, lt)
		if err != nil {
			return nil, err
		}
		dates[i] = d
	}
	return dates, nil
}

// readColumn reads every value of one leaf column chunk, nulls included,
// so positions stay aligned with the date column.
func readColumn(rg parquet.RowGroup, columnIndex int) ([]parquet.Value, error) {
	chunks := rg.ColumnChunks()
	if columnIndex < 0 || columnIndex >= len(chunks) {
		return nil, fmt.Errorf("column index %d out of range", columnIndex)
	}

	pages := chunks[columnIndex].Pages()
	defer pages.Close()

	var out []parquet.Value
	for {
		page, err := pages.ReadPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read page")
		}

		buf := make([]parquet.Value, page.NumValues())
		reader := page.Values()
		for len(buf) > 0 {
			n, err := reader.ReadValues(buf)
			out = append(out, buf[:n]...)
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.Wrap(err, "read values")
			}
			buf = buf[n:]
		}
	}
	return out, nil
}

// floatValue converts a parquet value to a usable float64. Nulls, NaN
// and infinities all come back as not valid.
func floatValue(v parquet.Value) (float64, bool) {
	if v.IsNull() {
		return 0, false
	}

	var f float64
	switch v.Kind() {
	case parquet.Double:
		f = v.Double()
	case parquet.Float:
		f = float64(v.Float())
	case parquet.Int64:
		f = float64(v.Int64())
	case parquet.Int32:
		f = float64(v.Int32())
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalizeDate renders a date value as YYYY-MM-DD whatever the source
// encoding: UTF8 strings, DATE days, or TIMESTAMP integers.
func normalizeDate(v parquet.Value, lt *format.LogicalType) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("null date value")
	}

	switch v.Kind() {
	case parquet.ByteArray, parquet.FixedLenByteArray:
		s := string(v.ByteArray())
		if len(s) >= 10 {
			return s[:10], nil
		}
		return "", fmt.Errorf("unparseable date string %q", s)

	case parquet.Int32:
		// DATE logical type: days since the Unix epoch.
		return time.Unix(int64(v.Int32())*86400, 0).UTC().Format("2006-01-02"), nil

	case parquet.Int64:
		return timestampToDate(v.Int64(), lt), nil

	default:
		return "", fmt.Errorf("unsupported date encoding %s", v.Kind())
	}
}

// timestampToDate converts an integer timestamp to a date string, using
// the logical type's unit when declared and falling back to a magnitude
// heuristic for raw integers.
func timestampToDate(ts int64, lt *format.LogicalType) string {
	var t time.Time
	switch {
	case lt != nil && lt.Timestamp != nil && lt.Timestamp.Unit.Nanos != nil:
		t = time.Unix(0, ts)
	case lt != nil && lt.Timestamp != nil && lt.Timestamp.Unit.Micros != nil:
		t = time.UnixMicro(ts)
	case lt != nil && lt.Timestamp != nil && lt.Timestamp.Unit.Millis != nil:
		t = time.UnixMilli(ts)
	case ts > 1e17:
		t = time.Unix(0, ts)
	case ts > 1e14:
		t = time.UnixMicro(ts)
	case ts > 1e11:
		t = time.UnixMilli(ts)
	default:
		t = time.Unix(ts, 0)
	}
	return t.UTC().Format("2006-01-02")
}
