package crawler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpbank/linkcrawler/cli/decoder"
	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/crawler"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/directory"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/resolver"
	"github.com/vpbank/linkcrawler/pkg/linkcrawler/session"
	"github.com/vpbank/linkcrawler/snmp/probe"
	"github.com/vpbank/linkcrawler/store/memory"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

var transcripts = map[string]string{
	decoder.CommandInterfaces: `GigabitEthernet0/0/0/1 is up, line protocol is up
  Description: TO-CORE-B
  Internet address is 10.1.1.1/30
  MTU 9216 bytes, BW 1000000 Kbit (Max: 1000000 Kbit)
GigabitEthernet0/0/0/2 is down, line protocol is down
`,
	decoder.CommandNeighbors: `-------------------------
Device ID: CORE-B
Entry address(es):
  IPv4 address: 10.0.0.2
Platform: cisco ASR9K Series,  Capabilities: Router
Interface: GigabitEthernet0/0/0/1
Port ID (outgoing port): GigabitEthernet0/0/0/0
`,
	decoder.CommandOSPF: ` Neighbor 10.0.0.2, interface address 10.1.1.2
    In the area 0 via interface GigabitEthernet0/0/0/1
    Neighbor priority is 1, State is FULL, 6 state changes
`,
	decoder.CommandLDP: `Peer LDP Identifier: 10.0.0.2:0
  State: Oper; Msgs sent/rcvd: 1/1; Downstream-Unsolicited
  LDP Discovery Sources:
    IPv4: (1)
      GigabitEthernet0/0/0/1
    IPv6: (0)
`,
}

type fakeSession struct {
	d *fakeDialer
}

func (s *fakeSession) Run(ctx context.Context, cmd string) (string, error) {
	s.d.mu.Lock()
	s.d.commands = append(s.d.commands, cmd)
	s.d.mu.Unlock()

	if s.d.panicOn == cmd {
		panic("session exploded")
	}
	if s.d.hangOn == cmd {
		<-ctx.Done()
		return "", &session.TimeoutError{Command: cmd}
	}
	if err, ok := s.d.failOn[cmd]; ok {
		return "", err
	}
	return s.d.replies[cmd], nil
}

func (s *fakeSession) Close() error { return nil }

type fakeDialer struct {
	replies map[string]string
	failOn  map[string]error
	hangOn  string
	panicOn string
	dialErr error

	mu       sync.Mutex
	dials    []string
	commands []string
}

func (d *fakeDialer) Dial(_ context.Context, host string) (session.Session, error) {
	d.mu.Lock()
	d.dials = append(d.dials, host)
	d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return &fakeSession{d: d}, nil
}

type fakeProber struct{ err error }

func (p fakeProber) Probe(context.Context, string) (probe.Result, error) {
	return probe.Result{SysName: "core-a"}, p.err
}

var coreA = models.Device{ID: 1, Name: "core-a", IP: "192.168.1.1"}

func newResolver(s *memory.Store) *resolver.Resolver {
	return resolver.New(resolver.Config{
		IPs: directory.NewIPSnapshot([]directory.IPEntry{
			{InterfaceIP: "10.1.1.2", ManagementIP: "192.168.1.10", Hostname: "core-b"},
		}),
		Devices: []models.Device{coreA, {ID: 2, Name: "core-b", IP: "192.168.1.10"}},
		Sites:   s,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Worker
// ─────────────────────────────────────────────────────────────────────────────

func TestCrawlStoresFusedLinks(t *testing.T) {
	s := memory.New()
	d := &fakeDialer{replies: transcripts}
	w := crawler.NewWorker(crawler.Config{Dialer: d, Resolver: newResolver(s), Links: s})

	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 4})
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, 1, res.Links)
	assert.Equal(t, 1, res.Neighbors)
	assert.Equal(t, decoder.Commands, d.commands)
	assert.Equal(t, []string{"192.168.1.1"}, d.dials)

	stored, err := s.LinksByCycle(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	l := stored[0]
	assert.Equal(t, "GigabitEthernet0/0/0/1", l.Name)
	assert.EqualValues(t, 1, l.DeviceID)
	assert.Equal(t, 4, l.CrawlCycle)
	assert.Equal(t, "up", l.PhysicalStatus)
	assert.Equal(t, "CORE-B", l.CDP)
	assert.Equal(t, "FULL", l.OSPF)
	assert.Equal(t, "up", l.MPLSLDP)
	assert.Equal(t, "192.168.1.10", l.NeighborIP)
	require.NotNil(t, l.NeighborDeviceID)
	assert.EqualValues(t, 2, *l.NeighborDeviceID)
}

func TestCrawlFailedCommandDegrades(t *testing.T) {
	s := memory.New()
	d := &fakeDialer{
		replies: transcripts,
		failOn: map[string]error{
			decoder.CommandOSPF: &session.TimeoutError{Command: decoder.CommandOSPF, After: time.Second},
		},
	}
	w := crawler.NewWorker(crawler.Config{Dialer: d, Resolver: newResolver(s), Links: s})

	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	require.NoError(t, res.Err)
	assert.Len(t, d.commands, len(decoder.Commands))
	assert.Contains(t, res.CommandErrors, decoder.CommandOSPF)

	stored, err := s.LinksByCycle(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Empty(t, stored[0].OSPF)
	assert.False(t, stored[0].HasNeighbor())
}

func TestCrawlDialFailure(t *testing.T) {
	s := memory.New()
	d := &fakeDialer{dialErr: errors.New("connection refused")}
	w := crawler.NewWorker(crawler.Config{Dialer: d, Links: s})

	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	require.Error(t, res.Err)
	assert.False(t, res.OK())

	var de *crawler.DeviceError
	require.ErrorAs(t, res.Err, &de)
	assert.Equal(t, crawler.StageDial, de.Stage)
	assert.Equal(t, "core-a", de.Device)
}

func TestCrawlProbeFailureSkipsDial(t *testing.T) {
	d := &fakeDialer{replies: transcripts}
	w := crawler.NewWorker(crawler.Config{
		Dialer: d,
		Links:  memory.New(),
		Prober: fakeProber{err: probe.ErrUnreachable},
	})

	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	assert.ErrorIs(t, res.Err, probe.ErrUnreachable)
	assert.Empty(t, d.dials)
}

func TestCrawlProbeSuccess(t *testing.T) {
	s := memory.New()
	w := crawler.NewWorker(crawler.Config{
		Dialer: &fakeDialer{replies: transcripts},
		Links:  s,
		Prober: fakeProber{},
	})
	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Links)
}

func TestCrawlDeviceDeadline(t *testing.T) {
	d := &fakeDialer{replies: transcripts, hangOn: decoder.CommandOptics}
	w := crawler.NewWorker(crawler.Config{Dialer: d, Links: memory.New(), DeviceTimeout: 50 * time.Millisecond})

	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, session.ErrTimeout)

	var de *crawler.DeviceError
	require.ErrorAs(t, res.Err, &de)
	assert.Equal(t, crawler.StageDeadline, de.Stage)
	assert.Equal(t, []string{decoder.CommandInterfaces, decoder.CommandOptics}, d.commands)
}

func TestCrawlRecoversPanic(t *testing.T) {
	d := &fakeDialer{replies: transcripts, panicOn: decoder.CommandNeighbors}
	w := crawler.NewWorker(crawler.Config{Dialer: d, Links: memory.New()})

	var res crawler.Result
	require.NotPanics(t, func() {
		res = w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	})
	var de *crawler.DeviceError
	require.ErrorAs(t, res.Err, &de)
	assert.Equal(t, crawler.StagePanic, de.Stage)
	assert.False(t, res.Finished.IsZero())
}

type failingLinks struct{ *memory.Store }

func (failingLinks) CreateLinks(context.Context, []models.Link) error {
	return errors.New("disk full")
}

func TestCrawlPersistFailure(t *testing.T) {
	w := crawler.NewWorker(crawler.Config{
		Dialer: &fakeDialer{replies: transcripts},
		Links:  failingLinks{memory.New()},
	})
	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})

	var de *crawler.DeviceError
	require.ErrorAs(t, res.Err, &de)
	assert.Equal(t, crawler.StagePersist, de.Stage)
}

func TestCrawlEmptyDeviceStoresNothing(t *testing.T) {
	s := memory.New()
	w := crawler.NewWorker(crawler.Config{Dialer: &fakeDialer{}, Links: s})

	res := w.Crawl(context.Background(), crawler.Job{Device: coreA, Cycle: 1})
	require.NoError(t, res.Err)
	assert.Zero(t, res.Links)
}

// ─────────────────────────────────────────────────────────────────────────────
// Pool
// ─────────────────────────────────────────────────────────────────────────────

type countingCrawler struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	panicOn  string
	failOn   string
}

func (c *countingCrawler) Crawl(_ context.Context, job crawler.Job) crawler.Result {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	if job.Device.Name == c.panicOn {
		panic("boom")
	}
	res := crawler.Result{Device: job.Device, Cycle: job.Cycle}
	if job.Device.Name == c.failOn {
		res.Err = errors.New("unreachable")
	}
	return res
}

func jobs(n int) []crawler.Job {
	out := make([]crawler.Job, n)
	for i := range out {
		out[i] = crawler.Job{
			Device: models.Device{ID: int64(i + 1), Name: "dev-" + string(rune('a'+i))},
			Cycle:  7,
		}
	}
	return out
}

func TestPoolBoundedWidthAndOrder(t *testing.T) {
	c := &countingCrawler{}
	p := crawler.NewPool(3, c, nil)

	js := jobs(12)
	results := p.Run(context.Background(), js)
	require.Len(t, results, 12)
	for i, r := range results {
		assert.Equal(t, js[i].Device, r.Device)
		assert.Equal(t, 7, r.Cycle)
	}
	assert.LessOrEqual(t, c.peak.Load(), int32(3))
	assert.Zero(t, c.inFlight.Load())
}

func TestPoolIsolatesFailures(t *testing.T) {
	c := &countingCrawler{panicOn: "dev-b", failOn: "dev-c"}
	p := crawler.NewPool(crawler.DefaultPoolWidth, c, nil)

	results := p.Run(context.Background(), jobs(5))
	require.Len(t, results, 5)

	ok := 0
	for _, r := range results {
		if r.OK() {
			ok++
		}
	}
	assert.Equal(t, 3, ok)

	var de *crawler.DeviceError
	require.ErrorAs(t, results[1].Err, &de)
	assert.Equal(t, crawler.StagePanic, de.Stage)
	assert.Error(t, results[2].Err)
}

func TestPoolCancelledContext(t *testing.T) {
	c := &countingCrawler{}
	p := crawler.NewPool(2, c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := p.Run(ctx, jobs(4))
	require.Len(t, results, 4)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestPoolNoJobs(t *testing.T) {
	p := crawler.NewPool(0, &countingCrawler{}, nil)
	assert.Empty(t, p.Run(context.Background(), nil))
}
