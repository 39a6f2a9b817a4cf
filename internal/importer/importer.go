// Package importer loads every CSV file dropped into a directory.
//
// Each run parses the *.csv files of the directory in name order with one
// schema and hands the bound records to a sink in batches. Afterwards a
// file is moved into Uploaded/ when it was imported, or into Failed/ when
// the parse aborted. Rows that failed binding are reported in
// Failed/<name> - failed.csv next to the raw line.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvbind/internal/core"
	"github.com/JonMunkholm/csvbind/internal/sink"
)

const (
	UploadedDir = "Uploaded"
	FailedDir   = "Failed"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("import already running")

// Config selects what an Importer loads.
type Config struct {
	Dir       string
	Schema    string
	BatchSize int           // <= 0 uses the engine default
	Settle    time.Duration // Quiet period before a watched run
}

// FileResult is the outcome of one file.
type FileResult struct {
	File        string
	Rows        int64 // Records written to the sink
	Failed      int   // Rows reported in the failed file
	Err         error // Terminal error; the file was moved to Failed/
	Duration    time.Duration
	Destination string
}

// Result is the outcome of one run.
type Result struct {
	ID       uuid.UUID // Logged as run_id
	Files    []FileResult
	Duration time.Duration
}

// Rows returns the records written across all files.
func (r *Result) Rows() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.Rows
	}
	return n
}

// Importer runs directory imports. Runs never overlap.
type Importer struct {
	engine *core.Engine
	open   sink.Opener
	cfg    Config
	logger *slog.Logger

	mu sync.Mutex
}

// New creates an importer. A nil logger uses slog.Default().
func New(engine *core.Engine, open sink.Opener, cfg Config, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}
	return &Importer{
		engine: engine,
		open:   open,
		cfg:    cfg,
		logger: logger.With("component", "importer", "dir", cfg.Dir, "schema", cfg.Schema),
	}
}

// Run imports every CSV file currently in the directory.
func (im *Importer) Run(ctx context.Context) (*Result, error) {
	if !im.mu.TryLock() {
		return nil, ErrBusy
	}
	defer im.mu.Unlock()

	start := time.Now()
	res := &Result{ID: uuid.New()}
	log := im.logger.With("run_id", res.ID)

	schema, ok := im.engine.Catalog().Get(im.cfg.Schema)
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSchema, im.cfg.Schema)
	}

	files, err := csvFiles(im.cfg.Dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		log.Debug("nothing to import")
		return res, nil
	}

	s, err := im.open(ctx, schema)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			res.Duration = time.Since(start)
			return res, err
		}
		res.Files = append(res.Files, im.importFile(ctx, log, schema, s, path))
	}

	res.Duration = time.Since(start)
	log.Info("import complete",
		"files", len(res.Files),
		"rows", res.Rows(),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (im *Importer) importFile(ctx context.Context, log *slog.Logger, schema *core.Schema, s sink.Sink, path string) FileResult {
	start := time.Now()
	name := filepath.Base(path)
	fr := FileResult{File: name}
	log = log.With("file", name)

	before := s.Rows()
	f, err := os.Open(path)
	if err != nil {
		fr.Err = fmt.Errorf("open file: %w", err)
		log.Error("import failed", "error", fr.Err)
		return fr
	}

	rowErrs, err := im.engine.ParseBatches(ctx, f, schema.Name(), im.cfg.BatchSize, s.Write)
	fr.Rows = s.Rows() - before
	fr.Err = err
	fr.Duration = time.Since(start)

	if len(rowErrs) > 0 {
		fr.Failed = len(rowErrs)
		if werr := writeFailed(filepath.Join(im.cfg.Dir, FailedDir), name, schema.Separator(), rowErrs); werr != nil {
			log.Error("write failed rows", "error", werr)
		}
	}

	destDir := UploadedDir
	if err != nil {
		destDir = FailedDir
		log.Error("import failed", "rows", fr.Rows, "failed", fr.Failed, "error", err)
	} else {
		log.Info("file imported", "rows", fr.Rows, "failed", fr.Failed, "duration_ms", fr.Duration.Milliseconds())
	}

	dest, merr := moveInto(path, filepath.Join(im.cfg.Dir, destDir))
	if merr != nil {
		log.Error("move file", "error", merr)
	}
	fr.Destination = dest
	return fr
}

// Start runs the import on a cron schedule until ctx is done.
// An empty schedule runs it once.
func (im *Importer) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		im.runLogged(ctx)
		return nil
	}
	return im.schedule(ctx, schedule)
}

func (im *Importer) runLogged(ctx context.Context) {
	if _, err := im.Run(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			im.logger.Debug("import skipped", "reason", err)
			return
		}
		im.logger.Error("import run failed", "error", err)
	}
}

func csvFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && isCSV(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func isCSV(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".csv")
}

// moveInto moves path into dir, creating dir. An existing file of the same
// name gets a timestamp suffix instead of being replaced.
func moveInto(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + "." + strconv.FormatInt(time.Now().UnixNano(), 10) + ext
	}
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FailedName returns the report file name for the CSV file name.
func FailedName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + " - failed.csv"
}

// writeFailed writes one line per failed row: line number, reasons, raw line.
func writeFailed(dir, name string, sep rune, rowErrs []*core.RowError) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, FailedName(name)))
	if err != nil {
		return err
	}

	w := core.NewLineWriter(f, sep, true)
	header := []string{"line", "reason", "data"}
	if err := w.WriteLine([]*string{&header[0], &header[1], &header[2]}); err != nil {
		w.Close()
		return err
	}
	for _, re := range rowErrs {
		line := strconv.Itoa(re.LineNumber)
		reason := strings.Join(re.Messages(), "; ")
		data := re.Line
		if err := w.WriteLine([]*string{&line, &reason, &data}); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
