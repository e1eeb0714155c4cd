package directory

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"

	"github.com/trinodb/trino-go-client/trino"
)

// DefaultIPTable is the inventory table queried when none is configured.
const DefaultIPTable = `network."crawler-device-interface-inventory"`

// SQLIPSource reads the IP directory from any database/sql connection. In
// production the connection is a Trino data lake opened with OpenTrino.
type SQLIPSource struct {
	db    *sql.DB
	table string
}

// NewSQLIPSource queries table (DefaultIPTable when empty) on db.
func NewSQLIPSource(db *sql.DB, table string) *SQLIPSource {
	if table == "" {
		table = DefaultIPTable
	}
	return &SQLIPSource{db: db, table: table}
}

// LoadIPs implements IPSource. Rows are returned newest first.
func (s *SQLIPSource) LoadIPs(ctx context.Context) ([]IPEntry, error) {
	q := fmt.Sprintf(`SELECT ipv4, device_id, int_ip FROM %s ORDER BY timestamp DESC`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("directory: query ip directory: %w", err)
	}
	defer rows.Close()

	var out []IPEntry
	for rows.Next() {
		var mgmt, host, iface sql.NullString
		if err := rows.Scan(&mgmt, &host, &iface); err != nil {
			return nil, fmt.Errorf("directory: scan ip directory: %w", err)
		}
		out = append(out, IPEntry{
			ManagementIP: mgmt.String,
			Hostname:     host.String,
			InterfaceIP:  iface.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: read ip directory: %w", err)
	}
	return out, nil
}

// TrinoConfig locates the Trino cluster holding the IP directory.
type TrinoConfig struct {
	// URL is the coordinator, e.g. "https://trino.example.net:443".
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Catalog  string `yaml:"catalog"`
	Schema   string `yaml:"schema"`
	Table    string `yaml:"table"`

	// InsecureSkipVerify disables TLS verification for self-signed clusters.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

const trinoClientName = "linkcrawler-insecure"

// OpenTrino opens a database/sql handle through the Trino driver.
func OpenTrino(cfg TrinoConfig) (*sql.DB, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("directory: trino url: %w", err)
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}

	tc := &trino.Config{
		ServerURI: u.String(),
		Source:    "linkcrawler",
		Catalog:   cfg.Catalog,
		Schema:    cfg.Schema,
	}
	if cfg.InsecureSkipVerify {
		client := &http.Client{Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // operator opt-in
		}}
		if err := trino.RegisterCustomClient(trinoClientName, client); err != nil {
			return nil, fmt.Errorf("directory: trino client: %w", err)
		}
		tc.CustomClientName = trinoClientName
	}

	dsn, err := tc.FormatDSN()
	if err != nil {
		return nil, fmt.Errorf("directory: trino dsn: %w", err)
	}
	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: open trino: %w", err)
	}
	return db, nil
}
