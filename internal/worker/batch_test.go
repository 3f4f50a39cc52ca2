package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/coursework/internal/model"
	"github.com/ppiankov/coursework/internal/pipeline"
)

// mockParser records the course of every parse and fails on "boom"
type mockParser struct {
	mu      sync.Mutex
	courses []string
}

func (m *mockParser) Parse(ctx context.Context, text string, opts pipeline.Options, onProgress pipeline.ProgressFunc) (*model.ParseResult, error) {
	m.mu.Lock()
	m.courses = append(m.courses, opts.Course)
	m.mu.Unlock()
	if strings.Contains(text, "boom") {
		return nil, model.WrapError(model.ErrExtraction, "regex", errors.New("boom"))
	}
	return &model.ParseResult{
		Assignments: []model.Assignment{{Text: strings.TrimSpace(text), Course: opts.Course}},
	}, nil
}

// mockFetcher serves fixed bodies by URL
type mockFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls int
}

func (m *mockFetcher) FetchWithRetry(ctx context.Context, rawURL string) (*pipeline.FetchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	body, ok := m.pages[rawURL]
	if !ok {
		return nil, &pipeline.FetchError{StatusCode: 404, Status: "Not Found"}
	}
	return &pipeline.FetchResult{Text: body, StatusCode: 200, FinalURL: rawURL}, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBatchProcessor_MixedSources(t *testing.T) {
	dir := t.TempDir()
	quiz := writeFile(t, dir, "quiz.txt", "Quiz 1 due May 12")
	bad := writeFile(t, dir, "bad.txt", "boom")

	parser := &mockParser{}
	fetcher := &mockFetcher{pages: map[string]string{"https://lms.example.edu/essay": "Essay 1 due May 30"}}
	processor := NewBatchProcessor(parser, fetcher, 3, 0, 0, nil)

	sources := []Source{
		{Location: quiz},
		{Location: "https://lms.example.edu/essay", Course: "ENG 101"},
		{Location: bad},
		{Location: "https://lms.example.edu/missing"},
		{Location: filepath.Join(dir, "absent.txt")},
	}
	results := processor.Process(context.Background(), sources, pipeline.Options{Course: "BIO 101"})

	if len(results) != len(sources) {
		t.Fatalf("expected %d results, got %d", len(sources), len(results))
	}
	for i, r := range results {
		if r.Source != sources[i] {
			t.Errorf("result %d is for %q, want %q", i, r.Source.Location, sources[i].Location)
		}
	}

	if results[0].Error != nil || results[0].Result.Assignments[0].Course != "BIO 101" {
		t.Errorf("file source: %+v", results[0])
	}
	if results[1].Error != nil || results[1].Result.Assignments[0].Text != "Essay 1 due May 30" {
		t.Errorf("url source: %+v", results[1])
	}
	if results[1].Result.Assignments[0].Course != "ENG 101" {
		t.Errorf("expected per-source course, got %q", results[1].Result.Assignments[0].Course)
	}
	if !model.IsKind(results[2].Error, model.ErrExtraction) {
		t.Errorf("expected extraction error, got %v", results[2].Error)
	}
	var fe *pipeline.FetchError
	if !errors.As(results[3].Error, &fe) || fe.StatusCode != 404 {
		t.Errorf("expected fetch error, got %v", results[3].Error)
	}
	if !model.IsKind(results[4].Error, model.ErrInvalidInput) {
		t.Errorf("expected input error for missing file, got %v", results[4].Error)
	}
	if fetcher.calls != 2 {
		t.Errorf("expected 2 fetches, got %d", fetcher.calls)
	}
}

func TestBatchProcessor_URLWithoutFetcher(t *testing.T) {
	processor := NewBatchProcessor(&mockParser{}, nil, 1, 0, 0, nil)
	results := processor.Process(context.Background(), []Source{{Location: "https://lms.example.edu/x"}}, pipeline.Options{})
	if len(results) != 1 || results[0].Error == nil {
		t.Fatalf("expected an error without a fetcher, got %+v", results)
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockParser{}, nil, 2, 0, 0, nil)
	if results := processor.Process(context.Background(), nil, pipeline.Options{}); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "Quiz 1 due May 12")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	processor := NewBatchProcessor(&mockParser{}, nil, 1, 0, 0, nil)
	results := processor.Process(ctx, []Source{{Location: path}, {Location: path + "2"}}, pipeline.Options{})
	if len(results) != 2 {
		t.Fatalf("expected a result per source, got %d", len(results))
	}
}

func TestReadSourcesFromFile(t *testing.T) {
	content := `https://lms.example.edu/modules
# comment
NURS 210 | notes/week1.txt

   
https://lms.example.edu/modules
BIO 101 |   `
	path := writeFile(t, t.TempDir(), "sources.txt", content)

	sources, err := ReadSourcesFromFile(path)
	if err != nil {
		t.Fatalf("ReadSourcesFromFile failed: %v", err)
	}
	expected := []Source{
		{Location: "https://lms.example.edu/modules"},
		{Location: "notes/week1.txt", Course: "NURS 210"},
	}
	if len(sources) != len(expected) {
		t.Fatalf("expected %d sources, got %d: %+v", len(expected), len(sources), sources)
	}
	for i := range expected {
		if sources[i] != expected[i] {
			t.Errorf("source %d = %+v, want %+v", i, sources[i], expected[i])
		}
	}
}

func TestReadSourcesFromFile_NonExistent(t *testing.T) {
	if _, err := ReadSourcesFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "Quiz 1 due May 12")
	b := writeFile(t, dir, "b.txt", "Lab 2 due May 14")
	list := writeFile(t, dir, "list.txt", a+"\n# skip\n"+b+"\n")

	processor := NewBatchProcessor(&mockParser{}, nil, 2, 0, 0, nil)
	results, err := processor.ProcessFile(context.Background(), list, pipeline.Options{})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if r.GetError() != nil {
			t.Errorf("unexpected error for %s: %v", r.Source.Location, r.GetError())
		}
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&mockParser{}, nil, 2, 0, 0, nil)
	if _, err := processor.ProcessFile(context.Background(), "no_such_file.txt", pipeline.Options{}); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

// delayFetcher asks for a crawl delay on every host
type delayFetcher struct {
	mockFetcher
	delay time.Duration
}

func (d *delayFetcher) CrawlDelay(ctx context.Context, rawURL string) time.Duration {
	return d.delay
}

func TestBatchProcessor_HonoursCrawlDelay(t *testing.T) {
	fetcher := &delayFetcher{
		mockFetcher: mockFetcher{pages: map[string]string{"https://lms.example.edu/a": "Quiz 1"}},
		delay:       10 * time.Second,
	}
	processor := NewBatchProcessor(&mockParser{}, fetcher, 1, 5, 5, nil)
	results := processor.Process(context.Background(), []Source{{Location: "https://lms.example.edu/a"}}, pipeline.Options{})
	if results[0].Error != nil {
		t.Fatalf("unexpected error: %v", results[0].Error)
	}

	if got := processor.limiter.get("lms.example.edu").Limit(); got != 0.1 {
		t.Errorf("expected host limited to 0.1 rps, got %v", got)
	}
	if got := processor.limiter.get("other.example.edu").Limit(); got != 5 {
		t.Errorf("other hosts keep the default rate, got %v", got)
	}
}

func TestBatchProcessor_CrawlDelayNeverSpeedsUp(t *testing.T) {
	fetcher := &delayFetcher{
		mockFetcher: mockFetcher{pages: map[string]string{"https://lms.example.edu/a": "Quiz 1"}},
		delay:       100 * time.Millisecond,
	}
	processor := NewBatchProcessor(&mockParser{}, fetcher, 1, 2, 2, nil)
	processor.Process(context.Background(), []Source{{Location: "https://lms.example.edu/a"}}, pipeline.Options{})

	if got := processor.limiter.get("lms.example.edu").Limit(); got != 2 {
		t.Errorf("expected default 2 rps kept, got %v", got)
	}
}
