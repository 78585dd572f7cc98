package imagepipe

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Artifact is one image file written to the export tree.
type Artifact struct {
	Table  string
	Key    string
	Field  string
	Format Format
	Path   string
}

// Job is one container blob queued for export.
type Job struct {
	Table string
	Key   string
	Field string
	Data  []byte
}

// Stats summarizes an export run.
type Stats struct {
	Written int64
	Skipped int64
	Failed  int64
	Errs    []*DecodeError
}

// Exporter writes each blob once per configured format, keyed by the row
// key so reruns are deterministic. Existing files are skipped unless
// overwrite is set, which is what makes image runs resumable for free.
type Exporter struct {
	root      string
	formats   []Format
	quality   int
	overwrite bool

	mu    sync.Mutex
	stats Stats

	jobs chan Job
	wg   sync.WaitGroup
}

const DefaultJPEGQuality = 90

func NewExporter(root string, formats []Format, quality int, overwrite bool, workers int) (*Exporter, error) {
	if len(formats) == 0 {
		formats = []Format{FormatJPG, FormatWebP}
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	if workers <= 0 {
		workers = 4
	}
	for _, f := range formats {
		if err := os.MkdirAll(filepath.Join(root, "images", string(f)), 0755); err != nil {
			return nil, fmt.Errorf("create image directory: %w", err)
		}
	}

	e := &Exporter{root: root, formats: formats, quality: quality, overwrite: overwrite,
		jobs: make(chan Job, workers*2)}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	return e, nil
}

// Submit queues one blob. Blocks when all workers are busy, which keeps
// memory bounded to roughly the queue depth times the blob size.
func (e *Exporter) Submit(j Job) {
	e.jobs <- j
}

// Wait drains the queue, stops the workers and returns the run stats.
// The exporter cannot be reused afterwards.
func (e *Exporter) Wait() Stats {
	close(e.jobs)
	e.wg.Wait()
	return e.stats
}

// Path returns the deterministic output path for a key and format.
func (e *Exporter) Path(key string, f Format) string {
	ext := string(f)
	if f == FormatJPG {
		ext = "jpg"
	}
	return filepath.Join(e.root, "images", string(f), sanitizeKey(key)+"."+ext)
}

func (e *Exporter) worker() {
	defer e.wg.Done()
	for j := range e.jobs {
		e.export(j)
	}
}

func (e *Exporter) export(j Job) {
	// Decode once, encode per format; skip the decode entirely when every
	// target file already exists.
	var pending []Format
	for _, f := range e.formats {
		path := e.Path(j.Key, f)
		if !e.overwrite {
			if _, err := os.Stat(path); err == nil {
				e.mu.Lock()
				e.stats.Skipped++
				e.mu.Unlock()
				continue
			}
		}
		pending = append(pending, f)
	}
	if len(pending) == 0 {
		return
	}

	img, err := Decode(j.Data)
	if err != nil {
		e.fail(j, err, len(pending))
		return
	}

	for _, f := range pending {
		var buf bytes.Buffer
		if err := Encode(&buf, img, f, e.quality); err != nil {
			e.fail(j, fmt.Errorf("encode %s: %w", f, err), 1)
			continue
		}
		if err := os.WriteFile(e.Path(j.Key, f), buf.Bytes(), 0644); err != nil {
			e.fail(j, fmt.Errorf("write %s: %w", f, err), 1)
			continue
		}
		e.mu.Lock()
		e.stats.Written++
		e.mu.Unlock()
	}
}

func (e *Exporter) fail(j Job, err error, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Failed += int64(n)
	e.stats.Errs = append(e.stats.Errs, &DecodeError{Table: j.Table, Key: j.Key, Field: j.Field, Err: err})
}

// sanitizeKey maps a row key to a safe file name.
func sanitizeKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, key)
}
