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

const (
	warningAlert  = `{"id":1,"type":"Warning","severity_score":6,"details":[{"column":"ospf","alert_type":"info"}]}`
	recoveryAlert = `{"id":2,"type":"info","severity_score":0,"details":[{"column":"ospf","alert_type":"info"}]}`
)

func newSplitBufs(t *testing.T) (*bytes.Buffer, *bytes.Buffer, *file.SplitWriterTransport) {
	t.Helper()
	var alerts, recoveries bytes.Buffer
	tr := file.NewSplit(file.SplitConfig{AlertWriter: &alerts, RecoveryWriter: &recoveries}, nil)
	return &alerts, &recoveries, tr
}

func TestSplit_Routing(t *testing.T) {
	alerts, recoveries, tr := newSplitBufs(t)

	if err := tr.Send([]byte(warningAlert)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tr.Send([]byte(recoveryAlert)); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if alerts.String() != warningAlert+"\n" {
		t.Errorf("alert writer = %q", alerts.String())
	}
	if recoveries.String() != recoveryAlert+"\n" {
		t.Errorf("recovery writer = %q", recoveries.String())
	}
}

func TestSplit_DefaultWriters(t *testing.T) {
	tr := file.NewSplit(file.SplitConfig{}, nil)
	if err := tr.Send([]byte(recoveryAlert)); err != nil {
		t.Errorf("recoveries are discarded by default: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSplit_ConcurrentSafe(t *testing.T) {
	alerts, recoveries, tr := newSplitBufs(t)
	const n = 50

	var wg sync.WaitGroup
	wg.Add(2 * n)
	for i := 0; i < n; i++ {
		go func() { defer wg.Done(); _ = tr.Send([]byte(warningAlert)) }()
		go func() { defer wg.Done(); _ = tr.Send([]byte(recoveryAlert)) }()
	}
	wg.Wait()

	if got := strings.Count(alerts.String(), "\n"); got != n {
		t.Errorf("alert lines = %d, want %d", got, n)
	}
	if got := strings.Count(recoveries.String(), "\n"); got != n {
		t.Errorf("recovery lines = %d, want %d", got, n)
	}
}

func TestSplit_ErrorOnFailingWriter(t *testing.T) {
	tr := file.NewSplit(file.SplitConfig{AlertWriter: errWriter{}}, nil)
	if err := tr.Send([]byte(warningAlert)); err == nil {
		t.Error("expected error from failing alert writer")
	}
}

func TestSplit_WithCycleFiles(t *testing.T) {
	dir := t.TempDir()
	alertPath := filepath.Join(dir, "alerts.json")
	recoveryPath := filepath.Join(dir, "recoveries.json")

	acf, err := file.NewCycleFile(file.CycleFileConfig{Path: alertPath, MaxCycles: 2}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile (alerts): %v", err)
	}
	rcf, err := file.NewCycleFile(file.CycleFileConfig{Path: recoveryPath, MaxCycles: 2}, nil)
	if err != nil {
		t.Fatalf("NewCycleFile (recoveries): %v", err)
	}

	tr := file.NewSplit(file.SplitConfig{AlertWriter: acf, RecoveryWriter: rcf}, nil)
	for _, c := range []int{1, 2} {
		if err := tr.BeginCycle(c); err != nil {
			t.Fatalf("BeginCycle(%d): %v", c, err)
		}
		for i := 0; i < 5; i++ {
			_ = tr.Send([]byte(warningAlert))
			_ = tr.Send([]byte(recoveryAlert))
		}
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	alertData, _ := os.ReadFile(alertPath)
	recoveryData, _ := os.ReadFile(recoveryPath)
	if bytes.Contains(alertData, []byte(`"type":"info"`)) {
		t.Error("alert journal must not contain recoveries")
	}
	if bytes.Contains(recoveryData, []byte(`"type":"Warning"`)) {
		t.Error("recovery journal must not contain warnings")
	}
	for _, p := range []string{alertPath + ".1", recoveryPath + ".1"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("cycle 1 should be archived: %v", err)
		}
	}
}

var _ file.Transport = (*file.SplitWriterTransport)(nil)
