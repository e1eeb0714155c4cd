package file_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vpbank/linkcrawler/transport/file"
)

func newBuf(t *testing.T) (*bytes.Buffer, *file.WriterTransport) {
	t.Helper()
	var buf bytes.Buffer
	tr := file.New(file.Config{Writer: &buf}, nil)
	return &buf, tr
}

func TestSend_WritesDataAndNewline(t *testing.T) {
	buf, tr := newBuf(t)

	if err := tr.Send([]byte(`{"type":"Warning"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := buf.String(); got != "{\"type\":\"Warning\"}\n" {
		t.Errorf("output = %q", got)
	}
}

func TestSend_MultipleMessages(t *testing.T) {
	buf, tr := newBuf(t)
	msgs := []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}

	for _, m := range msgs {
		if err := tr.Send([]byte(m)); err != nil {
			t.Fatalf("Send(%q): %v", m, err)
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	for i, want := range msgs {
		if lines[i] != want {
			t.Errorf("line[%d] = %q, want %q", i, lines[i], want)
		}
	}
}

func TestSend_CustomNewline(t *testing.T) {
	var buf bytes.Buffer
	tr := file.New(file.Config{Writer: &buf, Newline: "\r\n"}, nil)
	_ = tr.Send([]byte(`{"x":1}`))

	if !strings.HasSuffix(buf.String(), "\r\n") {
		t.Errorf("expected CRLF newline, got %q", buf.String())
	}
}

func TestSend_DefaultWriterIsStdout(t *testing.T) {
	tr := file.New(file.Config{}, nil)
	if tr == nil {
		t.Fatal("expected non-nil transport")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close must not close stdout: %v", err)
	}
}

func TestSend_ConcurrentSafe(t *testing.T) {
	buf, tr := newBuf(t)
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_ = tr.Send([]byte(`{"concurrent":true}`))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != n {
		t.Errorf("expected %d lines, got %d", n, len(lines))
	}
	for i, l := range lines {
		if l != `{"concurrent":true}` {
			t.Fatalf("line %d interleaved: %q", i, l)
		}
	}
}

func TestSend_ErrorOnFailingWriter(t *testing.T) {
	tr := file.New(file.Config{Writer: errWriter{}}, nil)
	if err := tr.Send([]byte(`{"x":1}`)); err == nil {
		t.Error("expected error from failing writer, got nil")
	}
}

func TestClose_ClosesOwnedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	tr := file.New(file.Config{Writer: cf}, nil)
	if err := tr.Send([]byte(`{"id":1}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "{\"id\":1}\n" {
		t.Errorf("file content = %q", data)
	}
}

// errWriter always fails.
type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, os.ErrClosed }

var _ file.Transport = (*file.WriterTransport)(nil)
