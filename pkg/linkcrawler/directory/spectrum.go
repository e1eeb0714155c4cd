package directory

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Spectrum model attribute IDs carrying the management address and the
// location path.
const (
	DefaultAddressAttr  = "0x12d7f"
	DefaultLocationAttr = "0x129e7"
)

// SpectrumConfig locates the asset inventory REST endpoint.
type SpectrumConfig struct {
	// URL is the server root, e.g. "https://spectrum.example.net".
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	AddressAttr  string        `yaml:"address_attr"`
	LocationAttr string        `yaml:"location_attr"`
	ThrottleSize int           `yaml:"throttle_size"`
	Timeout      time.Duration `yaml:"timeout"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

func (c *SpectrumConfig) withDefaults() {
	if c.AddressAttr == "" {
		c.AddressAttr = DefaultAddressAttr
	}
	if c.LocationAttr == "" {
		c.LocationAttr = DefaultLocationAttr
	}
	if c.ThrottleSize <= 0 {
		c.ThrottleSize = 10000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// SpectrumSource reads location entries from the Spectrum REST API.
type SpectrumSource struct {
	cfg    SpectrumConfig
	client *http.Client
}

// NewSpectrumSource builds a source. A nil client gets one derived from cfg.
func NewSpectrumSource(cfg SpectrumConfig, client *http.Client) *SpectrumSource {
	cfg.withDefaults()
	if client == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
		}
		client = &http.Client{Transport: tr, Timeout: cfg.Timeout}
	}
	return &SpectrumSource{cfg: cfg, client: client}
}

// LoadLocations implements LocationSource.
func (s *SpectrumSource) LoadLocations(ctx context.Context) ([]LocationEntry, error) {
	q := url.Values{}
	q.Add("attr", s.cfg.LocationAttr)
	q.Add("attr", s.cfg.AddressAttr)
	q.Set("throttlesize", fmt.Sprint(s.cfg.ThrottleSize))
	endpoint := strings.TrimRight(s.cfg.URL, "/") + "/spectrum/restful/devices?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("directory: spectrum request: %w", err)
	}
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory: spectrum get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("directory: spectrum get: status %s", resp.Status)
	}
	return decodeSpectrum(resp.Body, s.cfg.AddressAttr, s.cfg.LocationAttr)
}

type spectrumModel struct {
	Attributes []struct {
		ID    string `xml:"id,attr"`
		Value string `xml:",chardata"`
	} `xml:"attribute"`
}

// decodeSpectrum streams every <model> element of a model-response document,
// whatever its nesting, and keeps models carrying both attributes.
func decodeSpectrum(r io.Reader, addrAttr, locAttr string) ([]LocationEntry, error) {
	dec := xml.NewDecoder(r)
	var out []LocationEntry
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("directory: spectrum xml: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "model" {
			continue
		}
		var m spectrumModel
		if err := dec.DecodeElement(&m, &se); err != nil {
			return nil, fmt.Errorf("directory: spectrum model: %w", err)
		}
		var e LocationEntry
		for _, a := range m.Attributes {
			switch a.ID {
			case addrAttr:
				e.Address = strings.TrimSpace(a.Value)
			case locAttr:
				e.Location = strings.TrimSpace(a.Value)
			}
		}
		if e.Address != "" && e.Location != "" {
			out = append(out, e)
		}
	}
}
