// Package h264 parses the subset of H.264 parameter sets and slice headers
// that decode dispatch needs: frame_num width, picture order count state,
// slice types and resolution. Parsing runs on a bitstream.Cursor over the
// unescaped RBSP; running out of data reports ErrIncomplete.
package h264
