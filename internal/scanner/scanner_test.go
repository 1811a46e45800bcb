package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/mihari/internal/models"
)

type collector struct {
	mu   sync.Mutex
	docs []*models.TextSource
}

func (c *collector) submit(_ context.Context, doc *models.TextSource) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	return nil
}

func (c *collector) names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, d := range c.docs {
		out = append(out, d.Name)
	}
	return out
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.txt", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestScanner_SyncExistingFiles_submitsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "a.txt"), "hello world"); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(dir, "ignore.xyz"), "x"); err != nil {
		t.Fatal(err)
	}

	c := &collector{}
	s := New([]string{dir}, []string{".txt"}, true, c.submit)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	s.SyncExistingFiles(ctx)

	names := c.names()
	if len(names) != 1 || names[0] != "a.txt" {
		t.Errorf("expected one submitted document a.txt, got %v", names)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.docs[0].Data != "hello world" {
		t.Errorf("Data = %q, want %q", c.docs[0].Data, "hello world")
	}
	if c.docs[0].ID == 0 {
		t.Error("document id should be assigned")
	}
}

func TestScanner_SubmitsCreatedFileAfterDebounce(t *testing.T) {
	dir := t.TempDir()

	c := &collector{}
	s := New([]string{dir}, []string{".txt"}, true, c.submit, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := writeFile(filepath.Join(dir, "f.txt"), "new content"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.names()) >= 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	names := c.names()
	if len(names) < 1 || names[0] != "f.txt" {
		t.Fatalf("expected f.txt to be submitted, got %v", names)
	}
}

func TestScanner_RecursiveNewDirectory(t *testing.T) {
	dir := t.TempDir()

	c := &collector{}
	s := New([]string{dir}, []string{".txt"}, true, c.submit, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	nested := filepath.Join(dir, "level1")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	found := false
	for time.Now().Before(deadline) {
		for _, n := range c.names() {
			if n == "deep.txt" {
				found = true
			}
		}
		if found {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !found {
		t.Errorf("expected deep.txt to be submitted, got %v", c.names())
	}
}

func TestScanner_EmptyFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := writeFile(filepath.Join(dir, "empty.txt"), ""); err != nil {
		t.Fatal(err)
	}

	c := &collector{}
	s := New([]string{dir}, []string{".txt"}, false, c.submit)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	s.SyncExistingFiles(ctx)
	if names := c.names(); len(names) != 0 {
		t.Errorf("empty file should not be submitted, got %v", names)
	}
}

func TestScanner_StartMissingRootFails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "does", "not", "exist")
	s := New([]string{root}, nil, true, (&collector{}).submit)
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error for missing root")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
