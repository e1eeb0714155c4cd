package file

// Cycle-aware journal files. The active file holds the alerts of one crawl
// cycle. When alerts of a later cycle arrive, BeginCycle archives the active
// file under the cycle it holds:
//
//	alerts.json → alerts.json.41      (cycle 41 is complete)
//	alerts.json → alerts.json.42-1    (cycle 42 outgrew MaxBytes, part 1)
//
// Up to MaxCycles archived cycles are kept; all parts of a cycle count once.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// tailWindow bounds how much of an existing journal is read to recover the
// cycle it holds.
const tailWindow = 64 << 10

// ─────────────────────────────────────────────────────────────────────────────
// CycleFileConfig
// ─────────────────────────────────────────────────────────────────────────────

// CycleFileConfig controls a CycleFile.
type CycleFileConfig struct {
	// Path is the active journal file (required).
	Path string

	// MaxBytes splits a cycle into parts when the active file would exceed
	// this size. Zero disables splitting.
	MaxBytes int64

	// MaxCycles is the number of archived cycles to keep. Zero keeps all.
	MaxCycles int
}

// CycleWriter is implemented by writers that keep one file per crawl cycle.
// Transports forward BeginCycle to their writers.
type CycleWriter interface {
	BeginCycle(cycle int) error
}

// ─────────────────────────────────────────────────────────────────────────────
// CycleFile
// ─────────────────────────────────────────────────────────────────────────────

// CycleFile is an io.WriteCloser journal that rolls over on crawl-cycle
// boundaries. It is safe for concurrent use.
type CycleFile struct {
	mu     sync.Mutex
	cfg    CycleFileConfig
	file   *os.File
	size   int64
	cycle  int // cycle held by the active file, 0 when unknown
	logger *slog.Logger
}

// NewCycleFile opens (or creates) cfg.Path. An existing journal keeps the
// cycle recorded in its last line.
func NewCycleFile(cfg CycleFileConfig, logger *slog.Logger) (*CycleFile, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("transport/file: journal: Path is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport/file: journal: mkdir %s: %w", dir, err)
	}

	cf := &CycleFile{cfg: cfg, logger: logger}
	if err := cf.openFile(); err != nil {
		return nil, err
	}
	if cf.size > 0 {
		cf.cycle = lastCycle(cf.cfg.Path, cf.size)
	}
	return cf, nil
}

// Cycle returns the cycle held by the active file, 0 when unknown.
func (cf *CycleFile) Cycle() int {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.cycle
}

// BeginCycle marks the start of cycle's alerts. A non-empty active file
// holding another cycle is archived first. Content of an unknown cycle is
// archived as cycle-1.
func (cf *CycleFile) BeginCycle(cycle int) error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.file == nil {
		return fmt.Errorf("transport/file: journal: closed")
	}
	if cf.size > 0 && cf.cycle != cycle {
		held := cf.cycle
		if held == 0 {
			held = cycle - 1
		}
		if err := cf.archive(cf.finalName(held)); err != nil {
			return err
		}
		cf.logger.Info("transport/file: journal cycle archived", "cycle", held, "file", cf.cfg.Path)
		cf.prune()
	}
	cf.cycle = cycle
	return nil
}

// Write implements io.Writer. When p would overflow MaxBytes the active file
// is archived as the next part of the current cycle.
func (cf *CycleFile) Write(p []byte) (int, error) {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.file == nil {
		return 0, fmt.Errorf("transport/file: journal: closed")
	}
	if cf.cfg.MaxBytes > 0 && cf.size > 0 && cf.size+int64(len(p)) > cf.cfg.MaxBytes {
		if err := cf.archive(cf.partName(cf.cycle)); err != nil {
			cf.logger.Error("transport/file: journal split failed", "error", err.Error())
			if cf.file == nil {
				return 0, err
			}
		}
	}

	n, err := cf.file.Write(p)
	cf.size += int64(n)
	return n, err
}

// Close closes the active file. Further writes fail.
func (cf *CycleFile) Close() error {
	cf.mu.Lock()
	defer cf.mu.Unlock()

	if cf.file == nil {
		return nil
	}
	err := cf.file.Close()
	cf.file = nil
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (cf *CycleFile) openFile() error {
	f, err := os.OpenFile(cf.cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport/file: journal: open %s: %w", cf.cfg.Path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport/file: journal: stat %s: %w", cf.cfg.Path, err)
	}
	cf.file = f
	cf.size = info.Size()
	return nil
}

// archive renames the active file to dst and opens a fresh one. When the
// rename fails the old file is reopened so writes keep appending to it.
func (cf *CycleFile) archive(dst string) error {
	if err := cf.file.Close(); err != nil {
		cf.logger.Warn("transport/file: journal close error", "error", err.Error())
	}
	cf.file = nil

	renameErr := os.Rename(cf.cfg.Path, dst)
	if err := cf.openFile(); err != nil {
		return err
	}
	if renameErr != nil {
		return fmt.Errorf("transport/file: journal: archive %s: %w", dst, renameErr)
	}
	return nil
}

// finalName is <path>.<cycle>, or the next free part when a previous run
// already archived that cycle.
func (cf *CycleFile) finalName(cycle int) string {
	name := fmt.Sprintf("%s.%d", cf.cfg.Path, cycle)
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return name
	}
	return cf.partName(cycle)
}

// partName is the first free <path>.<cycle>-<n>.
func (cf *CycleFile) partName(cycle int) string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("%s.%d-%d", cf.cfg.Path, cycle, n)
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name
		}
	}
}

// prune removes archives of all but the newest MaxCycles cycles.
func (cf *CycleFile) prune() {
	if cf.cfg.MaxCycles <= 0 {
		return
	}
	dir, base := filepath.Split(cf.cfg.Path)
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		cf.logger.Warn("transport/file: journal prune", "error", err.Error())
		return
	}

	byCycle := make(map[int][]string)
	for _, e := range entries {
		c, ok := archiveCycle(base, e.Name())
		if !ok || e.IsDir() {
			continue
		}
		byCycle[c] = append(byCycle[c], filepath.Join(dir, e.Name()))
	}
	if len(byCycle) <= cf.cfg.MaxCycles {
		return
	}

	cycles := make([]int, 0, len(byCycle))
	for c := range byCycle {
		cycles = append(cycles, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(cycles)))
	for _, c := range cycles[cf.cfg.MaxCycles:] {
		for _, name := range byCycle[c] {
			if err := os.Remove(name); err == nil {
				cf.logger.Debug("transport/file: pruned journal archive", "file", name)
			}
		}
	}
}

// archiveCycle parses the cycle of an archive named <base>.<cycle> or
// <base>.<cycle>-<part>.
func archiveCycle(base, name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, base+".")
	if !ok {
		return 0, false
	}
	num, part, split := strings.Cut(rest, "-")
	if split {
		if _, err := strconv.Atoi(part); err != nil {
			return 0, false
		}
	}
	c, err := strconv.Atoi(num)
	if err != nil {
		return 0, false
	}
	return c, true
}

// lastCycle reads the crawl_number of the last complete JSON line of path,
// or 0.
func lastCycle(path string, size int64) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	off := size - tailWindow
	if off < 0 {
		off = 0
	}
	buf := make([]byte, size-off)
	if _, err := f.ReadAt(buf, off); err != nil && err != io.EOF {
		return 0
	}

	lines := bytes.Split(bytes.TrimRight(buf, "\n"), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		var rec struct {
			Cycle int `json:"crawl_number"`
		}
		if json.Unmarshal(bytes.TrimSpace(lines[i]), &rec) == nil && rec.Cycle > 0 {
			return rec.Cycle
		}
	}
	return 0
}
