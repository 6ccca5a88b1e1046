// Package batch discovers timetable exports in a directory and converts each
// into a sibling calendar file. A failing file or row never stops the others.
package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"ttcal/internal/ics"
	appLog "ttcal/internal/log"
	"ttcal/internal/model"
	"ttcal/internal/sheet"
	"ttcal/internal/timetable"
)

// Options controls discovery and output naming.
type Options struct {
	// Extensions selects input files, e.g. ".xlsx". Matching ignores case.
	Extensions []string
	// OutputExt replaces the input extension, e.g. ".ics".
	OutputExt string
	// Parallelism bounds concurrently converted files; <= 1 is sequential.
	Parallelism int
	Envelope    ics.Envelope
}

// Report is the outcome of converting one file.
type Report struct {
	Input  string
	Output string

	Descriptors []model.Descriptor
	RowErrors   []*timetable.RowError
	// Document is the serialized calendar, nil when Err is set.
	Document []byte
	// Err is a file-level failure; the output file was not written.
	Err error
}

// OK reports whether the file was converted and written.
func (r Report) OK() bool { return r.Err == nil }

// Driver runs conversions.
type Driver struct {
	engine *timetable.Engine
	reader sheet.Reader
	sink   Sink
	opts   Options
}

// NewDriver builds a Driver. A nil sink writes files next to their input.
func NewDriver(engine *timetable.Engine, reader sheet.Reader, sink Sink, opts Options) (*Driver, error) {
	if engine == nil {
		return nil, errors.New("batch: engine is required")
	}
	if reader == nil {
		return nil, errors.New("batch: reader is required")
	}
	if sink == nil {
		sink = FileSink{}
	}
	if opts.OutputExt == "" {
		opts.OutputExt = ".ics"
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 1
	}
	return &Driver{engine: engine, reader: reader, sink: sink, opts: opts}, nil
}

// Discover lists candidate input files in dir, in name order. Office lock
// files ("~$name.xlsx") are ignored.
func (d *Driver) Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if d.matches(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func (d *Driver) matches(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range d.opts.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// OutputPath returns the sibling output path for input.
func (d *Driver) OutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + d.opts.OutputExt
}

// Run converts every discovered file in dir. Reports follow discovery order
// regardless of Parallelism. The returned error is only set when dir itself
// cannot be listed or ctx is cancelled.
func (d *Driver) Run(ctx context.Context, dir string) ([]Report, error) {
	files, err := d.Discover(dir)
	if err != nil {
		appLog.Error("batch: discovery failed", err, "dir", dir)
		return nil, err
	}
	if len(files) == 0 {
		appLog.Info("batch: no input files", "dir", dir, "extensions", d.opts.Extensions)
		return nil, nil
	}
	return d.ConvertFiles(ctx, files)
}

// ConvertFiles converts the given files, at most Parallelism at a time.
func (d *Driver) ConvertFiles(ctx context.Context, files []string) ([]Report, error) {
	reports := make([]Report, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Parallelism)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			reports[i] = d.ConvertFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reports, err
	}
	return reports, nil
}

// ConvertFile converts one file and writes its document through the sink.
func (d *Driver) ConvertFile(path string) Report {
	rep := Report{Input: path, Output: d.OutputPath(path)}
	name := filepath.Base(path)

	appLog.Info("batch: processing", "file", name)

	rows, err := d.reader.Read(path)
	if err != nil {
		rep.Err = err
		appLog.Error("batch: read failed", err, "file", name)
		return rep
	}

	rep.Descriptors, rep.RowErrors = d.engine.Rows(rows)

	doc, err := ics.Render(rep.Descriptors, d.opts.Envelope)
	if err != nil {
		rep.Err = err
		appLog.Error("batch: render failed", err, "file", name)
		return rep
	}
	if err := d.sink.WriteDocument(rep.Output, doc); err != nil {
		rep.Err = err
		appLog.Error("batch: write failed", err, "file", name, "output", rep.Output)
		return rep
	}
	rep.Document = doc

	appLog.Info("batch: generated",
		"file", name,
		"output", filepath.Base(rep.Output),
		"rows", len(rows),
		"events", len(rep.Descriptors),
		"row_errors", len(rep.RowErrors),
	)
	return rep
}

// Sink accepts finished documents.
type Sink interface {
	WriteDocument(path string, doc []byte) error
}

// FileSink writes documents atomically via a temp file + rename.
type FileSink struct{}

// WriteDocument implements Sink.
func (FileSink) WriteDocument(path string, doc []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".ttcal-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// MemorySink keeps documents in memory, keyed by output path.
type MemorySink struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// WriteDocument implements Sink.
func (m *MemorySink) WriteDocument(path string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs == nil {
		m.docs = make(map[string][]byte)
	}
	m.docs[path] = append([]byte(nil), doc...)
	return nil
}

// Get returns the document stored for path.
func (m *MemorySink) Get(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	return doc, ok
}
