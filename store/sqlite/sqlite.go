// Package sqlite implements store.Store on a SQLite database through
// database/sql and github.com/mattn/go-sqlite3.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vpbank/linkcrawler/models"
	"github.com/vpbank/linkcrawler/store"
)

// Store is a SQLite-backed store.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema
// exists. Use ":memory:" for a throwaway database.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection: SQLite serialises writers anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("sqlite: store ready", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS coredevices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			ip TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS sites (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			topology TEXT,
			description TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS site_coredevice_association (
			site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
			coredevice_id INTEGER NOT NULL REFERENCES coredevices(id) ON DELETE CASCADE,
			PRIMARY KEY (site_id, coredevice_id)
		);`,
		`CREATE TABLE IF NOT EXISTS links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			coredevice_id INTEGER NOT NULL,
			neighbor_site_id INTEGER REFERENCES sites(id) ON DELETE SET NULL,
			neighbor_coredevice_id INTEGER,
			neighbor_ip TEXT,
			name TEXT NOT NULL,
			physical_status TEXT, protocol_status TEXT, mpls_ldp TEXT, ospf TEXT,
			ospf_interface_address TEXT, bw TEXT, description TEXT, media_type TEXT,
			cdp TEXT, input_rate TEXT, output_rate TEXT, tx TEXT, rx TEXT, mtu TEXT,
			input_errors TEXT, output_errors TEXT, crc TEXT, interface_ip TEXT,
			crawler_cycle INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			UNIQUE (coredevice_id, name, crawler_cycle)
		);`,
		`CREATE INDEX IF NOT EXISTS links_cycle ON links (crawler_cycle);`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			message TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			network_line TEXT,
			source TEXT,
			severity_score INTEGER,
			details TEXT,
			crawl_number INTEGER,
			coredevice_name TEXT,
			coredevice_id INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS crawler_cycle (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			count INTEGER NOT NULL
		);`,
		`INSERT OR IGNORE INTO crawler_cycle (id, count) VALUES (1, 0);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite: create tables: %w", err)
		}
	}
	return nil
}

// isUnique reports whether err is a UNIQUE or PRIMARY KEY violation.
func isUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// ─────────────────────────────────────────────────────────────────────────────
// Devices
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ip FROM coredevices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		var d models.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.IP); err != nil {
			return nil, fmt.Errorf("sqlite: scan device: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) UpsertDevice(ctx context.Context, d models.Device) (models.Device, error) {
	if d.IP == "" {
		return models.Device{}, fmt.Errorf("sqlite: device ip is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coredevices (name, ip) VALUES (?, ?)
		 ON CONFLICT(ip) DO UPDATE SET name = excluded.name`, d.Name, d.IP)
	if err != nil {
		return models.Device{}, fmt.Errorf("sqlite: upsert device %s: %w", d.IP, err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT id, name, ip FROM coredevices WHERE ip = ?`, d.IP).
		Scan(&d.ID, &d.Name, &d.IP)
	if err != nil {
		return models.Device{}, fmt.Errorf("sqlite: read device %s: %w", d.IP, err)
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Sites
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) SiteByName(ctx context.Context, name string) (models.Site, error) {
	var (
		site       models.Site
		topo, desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, topology, description FROM sites WHERE name = ?`, name).
		Scan(&site.ID, &site.Name, &topo, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Site{}, store.ErrNotFound
	}
	if err != nil {
		return models.Site{}, fmt.Errorf("sqlite: site %q: %w", name, err)
	}
	site.Topology, site.Description = topo.String, desc.String
	return site, nil
}

func (s *Store) CreateSite(ctx context.Context, site models.Site) (models.Site, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (name, topology, description) VALUES (?, ?, ?)`,
		site.Name, site.Topology, site.Description)
	if err != nil {
		if isUnique(err) {
			return models.Site{}, fmt.Errorf("sqlite: site %q: %w", site.Name, store.ErrConflict)
		}
		return models.Site{}, fmt.Errorf("sqlite: create site %q: %w", site.Name, err)
	}
	site.ID, err = res.LastInsertId()
	if err != nil {
		return models.Site{}, fmt.Errorf("sqlite: site id: %w", err)
	}
	return site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]models.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, topology, description FROM sites ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sites: %w", err)
	}
	defer rows.Close()

	var out []models.Site
	for rows.Next() {
		var (
			site       models.Site
			topo, desc sql.NullString
		)
		if err := rows.Scan(&site.ID, &site.Name, &topo, &desc); err != nil {
			return nil, fmt.Errorf("sqlite: scan site: %w", err)
		}
		site.Topology, site.Description = topo.String, desc.String
		out = append(out, site)
	}
	return out, rows.Err()
}

func (s *Store) AttachSite(ctx context.Context, siteID, deviceID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO site_coredevice_association (site_id, coredevice_id) VALUES (?, ?)`,
		siteID, deviceID)
	if err != nil {
		return fmt.Errorf("sqlite: attach site %d to device %d: %w", siteID, deviceID, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Links
// ─────────────────────────────────────────────────────────────────────────────

const linkColumns = `id, coredevice_id, neighbor_site_id, neighbor_coredevice_id, neighbor_ip, name,
	physical_status, protocol_status, mpls_ldp, ospf, ospf_interface_address, bw, description,
	media_type, cdp, input_rate, output_rate, tx, rx, mtu, input_errors, output_errors, crc,
	interface_ip, crawler_cycle, created_at`

func (s *Store) CreateLinks(ctx context.Context, links []models.Link) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO links (
		coredevice_id, neighbor_site_id, neighbor_coredevice_id, neighbor_ip, name,
		physical_status, protocol_status, mpls_ldp, ospf, ospf_interface_address, bw, description,
		media_type, cdp, input_rate, output_rate, tx, rx, mtu, input_errors, output_errors, crc,
		interface_ip, crawler_cycle, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare link insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, l := range links {
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		a := l.LinkAttributes
		_, err := stmt.ExecContext(ctx,
			l.DeviceID, nullInt(l.NeighborSiteID), nullInt(l.NeighborDeviceID), nullString(l.NeighborIP), a.Name,
			a.PhysicalStatus, a.ProtocolStatus, a.MPLSLDP, a.OSPF, a.OSPFInterfaceAddress, a.Bandwidth, a.Description,
			a.MediaType, a.CDP, a.InputRate, a.OutputRate, a.TX, a.RX, a.MTU, a.InputErrors, a.OutputErrors, a.CRC,
			a.InterfaceIP, l.CrawlCycle, created)
		if err != nil {
			if isUnique(err) {
				return fmt.Errorf("sqlite: link %s/%d/%d: %w", a.Name, l.DeviceID, l.CrawlCycle, store.ErrConflict)
			}
			return fmt.Errorf("sqlite: insert link %s: %w", a.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit links: %w", err)
	}
	return nil
}

func (s *Store) LinksByCycle(ctx context.Context, cycle int) ([]models.Link, error) {
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM links WHERE crawler_cycle = ? ORDER BY id`, cycle)
}

func (s *Store) LinksWithNeighbor(ctx context.Context) ([]models.Link, error) {
	return s.queryLinks(ctx, `SELECT `+linkColumns+` FROM links
		WHERE neighbor_coredevice_id IS NOT NULL OR neighbor_site_id IS NOT NULL
		ORDER BY name, coredevice_id, crawler_cycle DESC`)
}

func (s *Store) queryLinks(ctx context.Context, q string, args ...any) ([]models.Link, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query links: %w", err)
	}
	defer rows.Close()

	var out []models.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLink(rows *sql.Rows) (models.Link, error) {
	var (
		l              models.Link
		site, neighbor sql.NullInt64
		nip            sql.NullString
		f              [18]sql.NullString
	)
	err := rows.Scan(&l.ID, &l.DeviceID, &site, &neighbor, &nip, &l.Name,
		&f[0], &f[1], &f[2], &f[3], &f[4], &f[5], &f[6], &f[7], &f[8], &f[9],
		&f[10], &f[11], &f[12], &f[13], &f[14], &f[15], &f[16], &f[17],
		&l.CrawlCycle, &l.CreatedAt)
	if err != nil {
		return models.Link{}, fmt.Errorf("sqlite: scan link: %w", err)
	}
	a := &l.LinkAttributes
	for i, dst := range []*string{
		&a.PhysicalStatus, &a.ProtocolStatus, &a.MPLSLDP, &a.OSPF, &a.OSPFInterfaceAddress,
		&a.Bandwidth, &a.Description, &a.MediaType, &a.CDP, &a.InputRate, &a.OutputRate,
		&a.TX, &a.RX, &a.MTU, &a.InputErrors, &a.OutputErrors, &a.CRC, &a.InterfaceIP,
	} {
		*dst = f[i].String
	}
	if site.Valid {
		l.NeighborSiteID = models.Int64(site.Int64)
	}
	if neighbor.Valid {
		l.NeighborDeviceID = models.Int64(neighbor.Int64)
	}
	l.NeighborIP = nip.String
	return l, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Alerts
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, a := range alerts {
		details, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("sqlite: marshal alert details: %w", err)
		}
		created := a.CreatedAt
		if created.IsZero() {
			created = now
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO alerts
			(type, message, timestamp, network_line, source, severity_score, details, crawl_number, coredevice_name, coredevice_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.Type, a.Message, created, a.Link, a.Source, a.SeverityScore, string(details),
			a.CrawlCycle, a.DeviceName, a.DeviceID)
		if err != nil {
			return fmt.Errorf("sqlite: insert alert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit alerts: %w", err)
	}
	return nil
}

func (s *Store) AlertsByCycle(ctx context.Context, cycle int) ([]models.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, type, message, timestamp, network_line, source,
		severity_score, details, crawl_number, coredevice_name, coredevice_id
		FROM alerts WHERE crawl_number = ? ORDER BY id`, cycle)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		var (
			a       models.Alert
			details sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &a.CreatedAt, &a.Link, &a.Source,
			&a.SeverityScore, &details, &a.CrawlCycle, &a.DeviceName, &a.DeviceID); err != nil {
			return nil, fmt.Errorf("sqlite: scan alert: %w", err)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &a.Details); err != nil {
				s.logger.Warn("sqlite: bad alert details", "alert_id", a.ID, "error", err.Error())
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Cycles
// ─────────────────────────────────────────────────────────────────────────────

func (s *Store) CurrentCycle(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM crawler_cycle WHERE id = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: read crawl cycle: %w", err)
	}
	return n, nil
}

func (s *Store) AdvanceCycle(ctx context.Context, expected int) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crawler_cycle SET count = count + 1 WHERE id = 1 AND count = ?`, expected)
	if err != nil {
		return 0, fmt.Errorf("sqlite: advance crawl cycle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: advance crawl cycle: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("sqlite: expected cycle %d: %w", expected, store.ErrCycleMoved)
	}
	return expected + 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
