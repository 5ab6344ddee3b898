// Package bitstream provides MSB-first bit-level reading and writing over
// byte slices, including the Exponential-Golomb codes used throughout H.264
// headers. Reads never fail: asking for more bits than remain yields zero and
// leaves the cursor untouched, so header parsers can treat running out of data
// as a soft stop.
package bitstream
