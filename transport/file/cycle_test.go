package file_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/vpbank/linkcrawler/transport/file"
)

func alertLine(cycle int) []byte {
	return []byte(fmt.Sprintf(`{"id":1,"type":"Warning","crawl_number":%d}`+"\n", cycle))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func mustExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("%s should exist: %v", filepath.Base(path), err)
	}
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("%s should not exist", filepath.Base(path))
	}
}

func TestCycleFile_BasicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "alerts.json")

	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	if err := cf.BeginCycle(1); err != nil {
		t.Fatalf("BeginCycle: %v", err)
	}
	data := alertLine(1)
	n, err := cf.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}
	if got := readFile(t, path); got != string(data) {
		t.Errorf("file content = %q", got)
	}
}

func TestCycleFile_ArchivesOnNewCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	for _, c := range []int{4, 5} {
		if err := cf.BeginCycle(c); err != nil {
			t.Fatalf("BeginCycle(%d): %v", c, err)
		}
		if _, err := cf.Write(alertLine(c)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	if got := readFile(t, path+".4"); got != string(alertLine(4)) {
		t.Errorf("archive of cycle 4 = %q", got)
	}
	if got := readFile(t, path); got != string(alertLine(5)) {
		t.Errorf("active file = %q, want cycle 5 only", got)
	}
}

func TestCycleFile_SameCycleKeepsAppending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	for i := 0; i < 2; i++ {
		if err := cf.BeginCycle(3); err != nil {
			t.Fatalf("BeginCycle: %v", err)
		}
		if _, err := cf.Write(alertLine(3)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	mustNotExist(t, path+".3")
	if got := readFile(t, path); got != string(alertLine(3))+string(alertLine(3)) {
		t.Errorf("active file = %q", got)
	}
}

func TestCycleFile_RecoversCycleFromExistingJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	existing := string(alertLine(6)) + string(alertLine(7))
	if err := os.WriteFile(path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	if cf.Cycle() != 7 {
		t.Fatalf("Cycle = %d, want 7", cf.Cycle())
	}
	if err := cf.BeginCycle(9); err != nil {
		t.Fatalf("BeginCycle: %v", err)
	}
	if got := readFile(t, path+".7"); got != existing {
		t.Errorf("archive of cycle 7 = %q", got)
	}
}

func TestCycleFile_UnknownContentArchivedAsPreviousCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	if err := os.WriteFile(path, []byte("not json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	if err := cf.BeginCycle(3); err != nil {
		t.Fatalf("BeginCycle: %v", err)
	}
	if got := readFile(t, path+".2"); got != "not json\n" {
		t.Errorf("archive of cycle 2 = %q", got)
	}
}

func TestCycleFile_SplitsCycleOnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	line := alertLine(8)
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path, MaxBytes: int64(len(line)) + 1}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	if err := cf.BeginCycle(8); err != nil {
		t.Fatalf("BeginCycle: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := cf.Write(line); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	mustExist(t, path+".8-1")
	mustExist(t, path+".8-2")
	mustNotExist(t, path+".8-3")

	if err := cf.BeginCycle(9); err != nil {
		t.Fatalf("BeginCycle: %v", err)
	}
	if got := readFile(t, path+".8"); got != string(line) {
		t.Errorf("last part of cycle 8 = %q", got)
	}
}

func TestCycleFile_PrunesOldCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	line := alertLine(1)
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path, MaxBytes: int64(len(line)) + 1, MaxCycles: 2}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	defer cf.Close()

	for c := 1; c <= 4; c++ {
		if err := cf.BeginCycle(c); err != nil {
			t.Fatalf("BeginCycle(%d): %v", c, err)
		}
		// Two lines per cycle: one size split plus the final part.
		for i := 0; i < 2; i++ {
			if _, err := cf.Write(alertLine(c)); err != nil {
				t.Fatalf("Write: %v", err)
			}
		}
	}

	// Cycle 4 is active; 2 and 3 are the two archived cycles kept.
	for _, name := range []string{".1", ".1-1"} {
		mustNotExist(t, path+name)
	}
	for _, name := range []string{".2", ".2-1", ".3", ".3-1", ".4-1"} {
		mustExist(t, path+name)
	}
}

func TestCycleFile_RequiresPath(t *testing.T) {
	if _, err := file.NewCycleFile(file.CycleFileConfig{}, nil); err == nil {
		t.Error("expected error for empty Path, got nil")
	}
}

func TestCycleFile_WriteAfterClose(t *testing.T) {
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: filepath.Join(t.TempDir(), "alerts.json")}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	if err := cf.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := cf.Write([]byte("x\n")); err == nil {
		t.Error("expected error writing to a closed journal")
	}
	if err := cf.BeginCycle(1); err == nil {
		t.Error("expected error from BeginCycle on a closed journal")
	}
}

func TestWriterTransport_ForwardsBeginCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.json")
	cf, err := file.NewCycleFile(file.CycleFileConfig{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile: %v", err)
	}
	tr := file.New(file.Config{Writer: cf}, nil)
	defer tr.Close()

	for _, c := range []int{1, 2} {
		if err := tr.BeginCycle(c); err != nil {
			t.Fatalf("BeginCycle: %v", err)
		}
		if err := tr.Send([]byte(fmt.Sprintf(`{"crawl_number":%d}`, c))); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if got := readFile(t, path+".1"); got != "{\"crawl_number\":1}\n" {
		t.Errorf("archive of cycle 1 = %q", got)
	}
}

var _ file.CycleWriter = (*file.CycleFile)(nil)
var _ file.CycleWriter = (*file.WriterTransport)(nil)
var _ file.CycleWriter = (*file.SplitWriterTransport)(nil)
