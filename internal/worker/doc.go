// Package worker runs decoding on one dedicated goroutine per stream.
//
// The producer hands access units over through a single-slot mailbox, so at
// most one unit waits while another decodes and units reach the decoder in
// submission order. Control operations (open, flush, drain, reinit, close,
// shutdown) travel on a separate command channel and each receives exactly
// one reply. Decoded frames are queued by the worker goroutine and delivered
// to the Sink on the caller's goroutine from Submit, EndOfStream and Close.
//
// When the active decoder family reports a hard failure, the worker marks it
// failed, creates the next candidate family with the same stream parameters
// and replays the units that have not produced output yet. A lost device is
// handled the same way but recreates the same family. Only when every
// candidate is exhausted does the stream end, and that error is reported
// once.
package worker
