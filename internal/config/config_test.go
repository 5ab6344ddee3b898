package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate(): %v", err)
	}
	if !slices.Equal(cfg.Decoder.Hardware, HardwareNames) {
		t.Errorf("Hardware: got %v, want %v", cfg.Decoder.Hardware, HardwareNames)
	}
	if !cfg.Recovery.Enabled {
		t.Error("recovery should be enabled by default")
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	const doc = `
[decoder]
hardware = [" VAAPI ", "nvdec", "vaapi"]
blacklist = ["Obs"]
legacy = true
reorder_depth = 4

[decoder.limits.nvdec]
max_width = 2048
max_height = 1152

[recovery]
thread_delay = 3

[ingest]
srt_addr = ":7000"

[logging]
level = "DEBUG"
format = "json"
`
	cfg, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := []string{"vaapi", "nvdec"}; !slices.Equal(cfg.Decoder.Hardware, want) {
		t.Errorf("Hardware: got %v, want %v", cfg.Decoder.Hardware, want)
	}
	if got := cfg.Decoder.Blacklist; len(got) != 1 || got[0] != "obs" {
		t.Errorf("Blacklist: got %v, want [obs]", got)
	}
	if l := cfg.Decoder.Limits["nvdec"]; l.MaxWidth != 2048 || l.MaxHeight != 1152 {
		t.Errorf("nvdec limit: got %+v", l)
	}
	if !cfg.Decoder.Legacy || cfg.Decoder.ReorderDepth != 4 {
		t.Errorf("decoder: got %+v", cfg.Decoder)
	}
	if cfg.Recovery.ThreadDelay != 3 || !cfg.Recovery.Enabled {
		t.Errorf("recovery: got %+v", cfg.Recovery)
	}
	if cfg.Ingest.SRTAddr != ":7000" || cfg.Ingest.LatencyMs != defaultLatencyMs {
		t.Errorf("ingest: got %+v", cfg.Ingest)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown family", "[decoder]\nhardware = [\"dxva\"]\n"},
		{"unknown limit", "[decoder.limits.dxva]\nmax_width = 1\n"},
		{"negative limit", "[decoder.limits.qsv]\nmax_width = -1\n"},
		{"deep reorder", "[decoder]\nreorder_depth = 17\n"},
		{"bad level", "[logging]\nlevel = \"loud\"\n"},
		{"bad format", "[logging]\nformat = \"xml\"\n"},
		{"unknown key", "[decoder]\nturbo = true\n"},
		{"syntax", "[decoder\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Parse(strings.NewReader(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	cfg, exists, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if exists {
		t.Error("exists: got true, want false")
	}
	if cfg.Ingest.LatencyMs != defaultLatencyMs {
		t.Errorf("LatencyMs: got %d, want %d", cfg.Ingest.LatencyMs, defaultLatencyMs)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vdec.toml")
	if err := os.WriteFile(path, []byte("[recovery]\nenabled = false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Error("exists: got false, want true")
	}
	if cfg.Recovery.Enabled {
		t.Error("recovery.enabled: got true, want false")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"VDEC_SRT_ADDR":  " :9000 ",
		"VDEC_LOG_LEVEL": "WARN",
		"VDEC_HW":        "qsv, none",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Ingest.SRTAddr != ":9000" {
		t.Errorf("SRTAddr: got %q", cfg.Ingest.SRTAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level: got %q", cfg.Logging.Level)
	}
	if !slices.Equal(cfg.Decoder.Hardware, []string{"qsv"}) {
		t.Errorf("Hardware: got %v", cfg.Decoder.Hardware)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Decoder.Limits = map[string]Limit{"qsv": {MaxWidth: 4096, MaxHeight: 2304}}
	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v\n%s", err, buf.String())
	}
	if got.Decoder.Limits["qsv"] != cfg.Decoder.Limits["qsv"] {
		t.Errorf("limits: got %+v", got.Decoder.Limits)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
