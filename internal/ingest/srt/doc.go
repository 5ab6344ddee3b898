// Package srt implements SRT (Secure Reliable Transport) ingest of MPEG-TS,
// including both listener-mode (Server) for accepting incoming publish
// connections and caller-mode (Caller) for pulling streams from remote SRT
// sources. Either way the payload is handed to an ingest.Registry.
package srt
