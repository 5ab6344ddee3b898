package config

const (
	defaultSRTAddr      = ":6000"
	defaultLatencyMs    = 120
	defaultLogLevel     = "info"
	defaultLogFormat    = "auto"
	defaultThreads      = 1
	defaultReorderDepth = 2
	maxReorderDepth     = 16
)

// HardwareNames lists the hardware family names accepted in
// decoder.hardware, in the default preference order.
var HardwareNames = []string{"nvdec", "qsv", "vaapi"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Decoder: Decoder{
			Hardware:     append([]string(nil), HardwareNames...),
			Threads:      defaultThreads,
			ReorderDepth: defaultReorderDepth,
		},
		Recovery: Recovery{
			Enabled: true,
		},
		Ingest: Ingest{
			SRTAddr:   defaultSRTAddr,
			LatencyMs: defaultLatencyMs,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
