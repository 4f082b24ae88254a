package texc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mathforge/internal/state"
)

func okRunner(runs *atomic.Int32) RunFunc {
	return func(_ context.Context, _, dir, texPath string) ([]byte, error) {
		if runs != nil {
			runs.Add(1)
		}
		// Produce the artifact the adapter looks for.
		_ = os.WriteFile(filepath.Join(dir, "document.pdf"), []byte("%PDF"), 0644)
		_ = texPath
		return []byte("Output written on document.pdf (1 page)."), nil
	}
}

func TestParseDiagnostics(t *testing.T) {
	testCases := []struct {
		name string
		log  string
		want []state.CompileError
	}{
		{
			name: "Error with source line marker",
			log:  "! Undefined control sequence.\nl.12 \\badmacro\n",
			want: []state.CompileError{{Line: 12, Message: "Undefined control sequence."}},
		},
		{
			name: "Error with no line number reports line 0",
			log:  "! Emergency stop.\n",
			want: []state.CompileError{{Line: 0, Message: "Emergency stop."}},
		},
		{
			name: "Multiple errors keep order",
			log:  "! Missing $ inserted.\nl.3 x^2\nsome noise\n! Undefined control sequence.\nl.9 \\nope\n",
			want: []state.CompileError{
				{Line: 3, Message: "Missing $ inserted."},
				{Line: 9, Message: "Undefined control sequence."},
			},
		},
		{
			name: "No errors",
			log:  "This is pdfTeX\nOutput written on document.pdf\n",
			want: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseDiagnostics(tc.log)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("mismatched errors:\n got:  %+v\n want: %+v", got, tc.want)
			}
		})
	}
}

func TestCompileSuccessAndContentHashCache(t *testing.T) {
	var runs atomic.Int32
	c := New(Options{Bin: "fake", Workers: 2, QueueDepth: 4, Run: okRunner(&runs)})

	res, err := c.Compile(context.Background(), WrapDocument("Hello"))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	// Identical source must not recompile.
	if _, err := c.Compile(context.Background(), WrapDocument("Hello")); err != nil {
		t.Fatal(err)
	}
	if runs.Load() != 1 {
		t.Errorf("expected exactly 1 compiler run for identical source, got %d", runs.Load())
	}

	// Different source does.
	if _, err := c.Compile(context.Background(), WrapDocument("Other")); err != nil {
		t.Fatal(err)
	}
	if runs.Load() != 2 {
		t.Errorf("expected 2 runs after distinct source, got %d", runs.Load())
	}
}

func TestCompileFailureYieldsStructuredErrors(t *testing.T) {
	c := New(Options{Bin: "fake", Workers: 1, Run: func(_ context.Context, _, _, _ string) ([]byte, error) {
		return []byte("! Missing \\end{document}.\nl.40\n"), errors.New("exit status 1")
	}})

	res, err := c.Compile(context.Background(), "broken doc")
	if err != nil {
		t.Fatalf("adapter must not fail on compiler errors: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 40 {
		t.Errorf("unexpected errors: %+v", res.Errors)
	}
}

func TestCompileFailureWithUnparseableOutput(t *testing.T) {
	c := New(Options{Bin: "fake", Workers: 1, Run: func(_ context.Context, _, _, _ string) ([]byte, error) {
		return []byte("segfault"), errors.New("exit status 139")
	}})

	res, err := c.Compile(context.Background(), "doc")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 0 {
		t.Fatalf("expected single line-0 error, got %+v", res.Errors)
	}
	if !strings.Contains(res.Errors[0].Message, "exit status 139") {
		t.Errorf("message should carry the exit error: %q", res.Errors[0].Message)
	}
}

func TestQueueSaturationFailsFast(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once

	c := New(Options{Bin: "fake", Workers: 1, QueueDepth: 0, Run: func(_ context.Context, _, dir, _ string) ([]byte, error) {
		once.Do(started.Done)
		<-release
		_ = os.WriteFile(filepath.Join(dir, "document.pdf"), []byte("%PDF"), 0644)
		return nil, nil
	}})

	go c.Compile(context.Background(), "doc-a") //nolint:errcheck
	started.Wait()

	// Worker busy, queue depth 0: a different source must fail fast.
	_, err := c.Compile(context.Background(), "doc-b")
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	close(release)
}

func TestSingleFlightSharesOneRun(t *testing.T) {
	var runs atomic.Int32
	slow := func(_ context.Context, _, dir, _ string) ([]byte, error) {
		runs.Add(1)
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "document.pdf"), []byte("%PDF"), 0644)
		return nil, nil
	}
	c := New(Options{Bin: "fake", Workers: 4, QueueDepth: 8, Run: slow})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Compile(context.Background(), "same source"); err != nil {
				t.Errorf("Compile: %v", err)
			}
		}()
	}
	wg.Wait()

	if runs.Load() != 1 {
		t.Errorf("expected one shared run for identical source, got %d", runs.Load())
	}
}

func TestWrapDocument(t *testing.T) {
	doc := WrapDocument("body content")
	for _, want := range []string{"\\documentclass", "\\begin{document}", "body content", "\\end{document}"} {
		if !strings.Contains(doc, want) {
			t.Errorf("wrapped document missing %q", want)
		}
	}
}
