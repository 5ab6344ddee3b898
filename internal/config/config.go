package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Limit caps the coded picture size a hardware decoder family accepts.
type Limit struct {
	MaxWidth  int `toml:"max_width"`
	MaxHeight int `toml:"max_height"`
}

// Decoder controls decoder family selection and construction.
type Decoder struct {
	// Hardware lists the hardware families to try, most preferred first.
	// Known names are "nvdec", "qsv" and "vaapi". An empty list disables
	// hardware decoding.
	Hardware []string `toml:"hardware"`
	// Limits overrides the built-in maximum picture size per hardware family.
	Limits map[string]Limit `toml:"limits"`
	// Blacklist names processes that must never use hardware decoding.
	Blacklist []string `toml:"blacklist"`
	// Legacy prefers the legacy software family for MPEG-2 and VC-1.
	Legacy       bool `toml:"legacy"`
	Threads      int  `toml:"threads"`
	ReorderDepth int  `toml:"reorder_depth"`
}

// Recovery controls suppression of artifacts after a discontinuity.
type Recovery struct {
	Enabled bool `toml:"enabled"`
	// ThreadDelay, when positive, replaces the delay reported by the
	// decoder family.
	ThreadDelay int `toml:"thread_delay"`
}

// Ingest contains network ingest settings.
type Ingest struct {
	SRTAddr   string `toml:"srt_addr"`
	LatencyMs int    `toml:"latency_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for vdec.
type Config struct {
	Decoder  Decoder  `toml:"decoder"`
	Recovery Recovery `toml:"recovery"`
	Ingest   Ingest   `toml:"ingest"`
	Logging  Logging  `toml:"logging"`
}

// Load reads path, applies defaults and environment overrides, and validates
// the result. A missing file is not an error; the defaults are used. The
// boolean result reports whether the file existed.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	exists := false
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := decode(file, &cfg); err != nil {
				return nil, false, err
			}
			exists = true
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, false, fmt.Errorf("open config: %w", err)
		}
	}

	cfg.normalize()
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, exists, nil
}

// Parse decodes TOML from r on top of the defaults, normalizes and validates
// it. Environment overrides are not applied.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decode(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Encode writes cfg as TOML.
func (c *Config) Encode(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	return enc.Encode(c)
}

// applyEnv overlays VDEC_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("VDEC_SRT_ADDR"); ok && strings.TrimSpace(v) != "" {
		c.Ingest.SRTAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("VDEC_LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		c.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup("VDEC_HW"); ok {
		c.Decoder.Hardware = splitList(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" && part != "none" {
			out = append(out, part)
		}
	}
	return out
}
