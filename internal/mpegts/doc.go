// Package mpegts demultiplexes MPEG transport streams far enough to feed a
// video decoder: it discovers programs through the PAT and PMT, reassembles
// PES packets per PID with their PTS and DTS, and reports continuity breaks
// on the first unit after the break so consumers can reset decoder state.
//
// The demuxer resynchronizes on the 0x47 sync byte after garbage, drops
// packets flagged with transport errors, and verifies PSI section CRCs.
package mpegts
