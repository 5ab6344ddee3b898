// Package nalu segments H.264 elementary streams into NAL units. It handles
// both start-code delimited (Annex B) buffers and packetized buffers where
// every unit carries a fixed-width big-endian length prefix, and decodes the
// one-byte NAL header.
package nalu
