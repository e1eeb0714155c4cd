package app_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/linkcrawler/cli/decoder"
	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/app"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/directory"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/session"
	"github.com/vpbank/linkcrawler/store"
	"github.com/vpbank/linkcrawler/store/memory"
	filetransport "github.com/vpbank/linkcrawler/transport/file"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

func interfaces(state string) string {
	return `GigabitEthernet0/0/0/1 is ` + state + `, line protocol is ` + state + `
  Description: TO-CORE-B
  Internet address is 10.1.1.1/30
`
}

const ospf = ` Neighbor 10.0.0.2, interface address 10.1.1.2
    In the area 0 via interface GigabitEthernet0/0/0/1
    Neighbor priority is 1, State is FULL, 6 state changes
`

// fakeDialer answers per host. Hosts listed in down fail to dial.
type fakeDialer struct {
	mu      sync.Mutex
	state   string
	down    map[string]bool
	block   chan struct{}
	entered chan struct{}
}

func newDialer() *fakeDialer {
	return &fakeDialer{state: "up", down: map[string]bool{}}
}

func (d *fakeDialer) setState(s string) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *fakeDialer) Dial(ctx context.Context, host string) (session.Session, error) {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.down[host] {
		return nil, errors.New("connection refused")
	}
	return &fakeSession{replies: map[string]string{
		decoder.CommandInterfaces: interfaces(d.state),
		decoder.CommandOSPF:       ospf,
	}}, nil
}

type fakeSession struct{ replies map[string]string }

func (s *fakeSession) Run(_ context.Context, cmd string) (string, error) {
	return s.replies[cmd], nil
}

func (s *fakeSession) Close() error { return nil }

type brokenCycles struct {
	*memory.Store
}

func (brokenCycles) CurrentCycle(context.Context) (int, error) {
	return 0, errors.New("database is locked")
}

var seed = []models.Device{
	{Name: "core-a", IP: "192.168.1.1"},
	{Name: "core-b", IP: "192.168.1.10"},
}

func newApp(t *testing.T, s store.Store, d session.Dialer, journal filetransport.Transport) *app.App {
	t.Helper()
	return app.New(app.Config{
		Workers:       2,
		DeviceTimeout: 5 * time.Second,
		Seed:          seed,
	}, app.Deps{
		Store:  s,
		Dialer: d,
		Directories: directory.NewLoader(
			directory.StaticIPs{{InterfaceIP: "10.1.1.2", ManagementIP: "192.168.1.10", Hostname: "core-b"}},
			nil,
			directory.RetryConfig{MaxRetries: -1},
			nil,
		),
		Journal: journal,
	}, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// RunOnce
// ─────────────────────────────────────────────────────────────────────────────

func TestRunOnceFirstCycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := newApp(t, s, newDialer(), nil)

	rep, err := a.RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Cycle)
	assert.Equal(t, 2, rep.Devices)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 2, rep.Links)
	assert.Zero(t, rep.Alerts)
	assert.Equal(t, app.PhaseDone, a.Phase())
	assert.False(t, rep.Finished.Before(rep.Started))

	cur, err := s.CurrentCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cur)

	links, err := s.LinksByCycle(ctx, 1)
	require.NoError(t, err)
	require.Len(t, links, 2)
	for _, l := range links {
		require.NotNil(t, l.NeighborDeviceID)
		assert.Equal(t, "10.1.1.2", l.NeighborIP)
	}

	var phases []app.Phase
	for _, p := range rep.Phases {
		phases = append(phases, p.Phase)
	}
	assert.Equal(t, []app.Phase{
		app.PhaseLoading,
		app.PhaseDispatching,
		app.PhaseJoined,
		app.PhaseAlerting,
		app.PhaseAdvancing,
	}, phases)
}

func TestRunOnceRaisesAlertsOnSecondCycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := newDialer()
	var journal bytes.Buffer
	a := newApp(t, s, d, filetransport.New(filetransport.Config{Writer: &journal}, nil))

	_, err := a.RunOnce(ctx)
	require.NoError(t, err)

	d.setState("down")
	rep, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Cycle)
	// physical and protocol status on both devices
	assert.Equal(t, 4, rep.Alerts)

	stored, err := s.AlertsByCycle(ctx, 2)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for _, al := range stored {
		assert.Equal(t, "GigabitEthernet0/0/0/1", al.Link)
		assert.Equal(t, 2, al.CrawlCycle)
	}

	lines := strings.Split(strings.TrimSpace(journal.String()), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "GigabitEthernet0/0/0/1")
}

func TestRunOnceRecoveryRaisesNoAlertAndJournalKeepsCycles(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := newDialer()
	path := filepath.Join(t.TempDir(), "alerts.json")
	cf, err := filetransport.NewCycleFile(filetransport.CycleFileConfig{Path: path}, nil)
	require.NoError(t, err)
	journal := filetransport.New(filetransport.Config{Writer: cf}, nil)
	defer journal.Close()
	a := newApp(t, s, d, journal)

	counts := make([]int, 0, 4)
	for _, state := range []string{"up", "down", "up", "down"} {
		d.setState(state)
		rep, err := a.RunOnce(ctx)
		require.NoError(t, err)
		counts = append(counts, rep.Alerts)
	}
	// down → up is a recovery and raises nothing.
	assert.Equal(t, []int{0, 4, 0, 4}, counts)

	archived, err := os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(archived), `"crawl_number":2`))

	active, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(string(active), `"crawl_number":4`))
	assert.NotContains(t, string(active), `"crawl_number":2`)
}

func TestRunOnceDeviceFailureDoesNotFailRun(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := newDialer()
	d.down["192.168.1.10"] = true
	a := newApp(t, s, d, nil)

	rep, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)

	cur, err := s.CurrentCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cur)
}

func TestRunOnceCounterFailureAborts(t *testing.T) {
	s := brokenCycles{memory.New()}
	a := newApp(t, s, newDialer(), nil)

	_, err := a.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read cycle")

	links, err := s.LinksByCycle(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestRunOnceCancelledStillAdvances(t *testing.T) {
	s := memory.New()
	d := newDialer()
	d.block = make(chan struct{})
	a := newApp(t, s, d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)

	cur, err := s.CurrentCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cur)
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	s := memory.New()
	d := newDialer()
	d.block = make(chan struct{})
	d.entered = make(chan struct{}, 2)
	a := newApp(t, s, d, nil)

	done := make(chan error, 1)
	go func() { done <- a.RunCycle(context.Background()) }()
	<-d.entered

	_, err := a.RunOnce(context.Background())
	assert.ErrorIs(t, err, app.ErrRunning)

	close(d.block)
	require.NoError(t, <-done)
}
