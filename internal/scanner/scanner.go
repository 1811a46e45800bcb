// Package scanner produces documents for the ingestion pipeline from
// watched directories: files already present are submitted on startup,
// and fsnotify events feed new or rewritten files in afterwards.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/mihari/internal/extract"
	"github.com/hyperjump/mihari/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Submit delivers a document to the ingestion channel. It may block
// (backpressure) and should honor ctx.
type Submit func(ctx context.Context, doc *models.TextSource) error

// Scanner watches directory roots and turns matching files into
// TextSources. Each file submission carries the file's base name as the
// document label.
type Scanner struct {
	roots      []string
	extensions []string
	recursive  bool
	submit     Submit
	extractor  *extract.Extractor
	logger     *zap.Logger
	debounce   time.Duration

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	pending  map[string]*time.Timer
	started  bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets a logger for debug events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithDebounce overrides the write-event settle window.
func WithDebounce(d time.Duration) Option {
	return func(s *Scanner) { s.debounce = d }
}

// New creates a scanner over roots. extensions filters which files are
// submitted (empty = all); submit pushes each extracted document toward
// the pipeline.
func New(roots, extensions []string, recursive bool, submit Submit, opts ...Option) *Scanner {
	s := &Scanner{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		submit:     submit,
		extractor:  extract.NewExtractor(),
		logger:     zap.NewNop(),
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins watching. It returns once watches are registered; events
// are handled on a background goroutine until ctx is cancelled or Stop
// is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.watcher = watcher
	s.started = true
	for _, root := range s.roots {
		if err := s.addRootLocked(root); err != nil {
			_ = watcher.Close()
			s.watcher = nil
			s.started = false
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()
	s.logger.Debug("scanner started", zap.Strings("roots", s.roots), zap.Strings("extensions", s.extensions))
	go s.run(ctx, watcher)
	return nil
}

// run handles events until the watcher closes or ctx is cancelled. The
// watcher is passed in rather than read from the struct so Stop can nil
// the field without racing this loop.
func (s *Scanner) run(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-s.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				s.logger.Debug("scanner watch error", zap.Error(err))
			}
		}
	}
}

func (s *Scanner) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if s.recursive {
			s.watchSubtree(ev.Name)
			s.SyncDirectory(ctx, ev.Name)
		}
		return
	}
	if !matchExtension(ev.Name, s.extensions) {
		return
	}
	s.debounceSubmit(ctx, ev.Name)
}

// debounceSubmit waits for writes to settle before reading the file, so
// a file being copied in is not submitted half-written.
func (s *Scanner) debounceSubmit(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.pending[path]; ok {
		t.Stop()
	}
	s.pending[path] = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		delete(s.pending, path)
		s.mu.Unlock()
		s.submitFile(ctx, path)
	})
}

// submitFile extracts path's text and hands it to the pipeline. Errors
// are logged and swallowed: one unreadable file must not stop the scan.
func (s *Scanner) submitFile(ctx context.Context, path string) {
	text, err := s.extractor.Extract(path)
	if err != nil {
		s.logger.Warn("scanner extract failed", zap.String("path", path), zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	doc := models.NewTextSource(text, filepath.Base(path))
	if err := s.submit(ctx, doc); err != nil {
		s.logger.Warn("scanner submit failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("scanner submitted file",
		zap.String("path", path),
		zap.Uint64("document_id", uint64(doc.ID)),
	)
}

// SyncExistingFiles submits every matching file already present under
// the watched roots. Call after Start.
func (s *Scanner) SyncExistingFiles(ctx context.Context) {
	s.mu.Lock()
	roots := append([]string(nil), s.roots...)
	s.mu.Unlock()
	for _, root := range roots {
		s.SyncDirectory(ctx, root)
	}
}

// SyncDirectory walks root and submits each matching file.
func (s *Scanner) SyncDirectory(ctx context.Context, root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if matchExtension(path, s.extensions) {
			s.submitFile(ctx, path)
		}
		return nil
	})
}

// Stop stops watching and releases resources.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.started || s.watcher == nil {
		s.mu.Unlock()
		return
	}
	for path, t := range s.pending {
		t.Stop()
		delete(s.pending, path)
	}
	_ = s.watcher.Close()
	s.watcher = nil
	s.started = false
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.done) })
}

func (s *Scanner) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		return err
	}
	if !s.recursive {
		return s.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return s.watcher.Add(path)
		}
		return nil
	})
}

// watchSubtree registers watches for a directory created after Start.
func (s *Scanner) watchSubtree(dir string) {
	s.mu.Lock()
	watcher := s.watcher
	s.mu.Unlock()
	if watcher == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() {
			_ = watcher.Add(path)
		}
		return nil
	})
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
