// Command vdec decodes H.264 streams with automatic decoder-family fallback
// and recovery-point tracking.
//
// Usage:
//
//	vdec decode [--fps N] [--format auto|annexb|ts|mp4] <file>
//	vdec serve [--srt :6000] [--pull key@host:port]...
//	vdec config
//
// Configuration is read from a TOML file (--config) and VDEC_* environment
// variables. Set DEBUG or pass --debug for debug logging.
package main
