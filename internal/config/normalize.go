package config

import "strings"

func (c *Config) normalize() {
	c.normalizeDecoder()
	c.normalizeIngest()
	c.normalizeLogging()
}

func (c *Config) normalizeDecoder() {
	hw := c.Decoder.Hardware[:0]
	seen := make(map[string]bool)
	for _, name := range c.Decoder.Hardware {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		hw = append(hw, name)
	}
	c.Decoder.Hardware = hw

	if len(c.Decoder.Limits) > 0 {
		limits := make(map[string]Limit, len(c.Decoder.Limits))
		for name, l := range c.Decoder.Limits {
			limits[strings.ToLower(strings.TrimSpace(name))] = l
		}
		c.Decoder.Limits = limits
	}

	for i, p := range c.Decoder.Blacklist {
		c.Decoder.Blacklist[i] = strings.ToLower(strings.TrimSpace(p))
	}

	if c.Decoder.Threads <= 0 {
		c.Decoder.Threads = defaultThreads
	}
	if c.Decoder.ReorderDepth < 0 {
		c.Decoder.ReorderDepth = 0
	}
	if c.Recovery.ThreadDelay < 0 {
		c.Recovery.ThreadDelay = 0
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.SRTAddr = strings.TrimSpace(c.Ingest.SRTAddr)
	if c.Ingest.SRTAddr == "" {
		c.Ingest.SRTAddr = defaultSRTAddr
	}
	if c.Ingest.LatencyMs <= 0 {
		c.Ingest.LatencyMs = defaultLatencyMs
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
