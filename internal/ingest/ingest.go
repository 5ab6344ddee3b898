// Package ingest manages active ingest connections, coupling network byte
// readers with metadata, lifecycle signaling, and decode dispatch.
package ingest

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ErrKeyInUse is returned by Register when a stream with the same key is
// already connected.
var ErrKeyInUse = errors.New("ingest: stream key in use")

// InputFormat identifies the container format of an ingested stream.
type InputFormat int

// Supported ingest container formats.
const (
	FormatMPEGTS InputFormat = iota
)

func (f InputFormat) String() string {
	switch f {
	case FormatMPEGTS:
		return "mpegts"
	}
	return "unknown"
}

// IngestStats captures connection-level metrics for an ingest stream.
type IngestStats struct {
	BytesReceived int64  `json:"bytesReceived"`
	ReadCount     int64  `json:"readCount"`
	ConnectedAt   int64  `json:"connectedAt"`
	UptimeMs      int64  `json:"uptimeMs"`
	RemoteAddr    string `json:"remoteAddr"`
}

// Stream represents an active ingest connection. Bytes written to the
// internal pipe by the network receiver are read by the decode session.
type Stream struct {
	Key       string
	StartedAt time.Time
	Format    InputFormat
	input     *io.PipeReader
	pw        *io.PipeWriter
	done      chan struct{}

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// Input returns the reader side of the stream's pipe.
func (s *Stream) Input() io.Reader { return s.input }

// Done is closed when the stream has been unregistered.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Abort closes the reader side of the pipe so the receiver's next write
// fails with err. The decode session calls it when it stops consuming.
func (s *Stream) Abort(err error) {
	if err == nil {
		err = io.ErrClosedPipe
	}
	s.input.CloseWithError(err)
}

// RecordRead increments the byte and read counters, called by the
// receiver after each successful socket read.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the remote address of the ingest connection for
// diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// IngestStats returns a snapshot of ingest connection metrics.
func (s *Stream) IngestStats() IngestStats {
	addr, _ := s.remoteAddr.Load().(string)
	return IngestStats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}

// Registry tracks active ingest streams by key and dispatches new streams
// to the onStream callback, which runs a decode session over the stream's
// input. It is the rendezvous point between the network receivers and the
// decode sessions.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream

	onStream func(s *Stream)
}

// NewRegistry creates a Registry. The onStream callback is invoked on its
// own goroutine whenever a new stream is registered.
func NewRegistry(onStream func(s *Stream)) *Registry {
	return &Registry{
		streams:  make(map[string]*Stream),
		onStream: onStream,
	}
}

// Register creates a new ingest stream with the given key and format,
// returning the Stream and a Writer that the receiver should write into.
// A key that is already registered is refused with ErrKeyInUse.
func (r *Registry) Register(key string, format InputFormat) (*Stream, io.Writer, error) {
	pr, pw := io.Pipe()

	stream := &Stream{
		Key:       key,
		StartedAt: time.Now(),
		Format:    format,
		input:     pr,
		pw:        pw,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if _, ok := r.streams[key]; ok {
		r.mu.Unlock()
		return nil, nil, ErrKeyInUse
	}
	r.streams[key] = stream
	r.mu.Unlock()

	if r.onStream != nil {
		go r.onStream(stream)
	}

	return stream, pw, nil
}

// Unregister removes a stream by key, closing its pipe and signaling Done.
// The reader sees io.EOF once the buffered bytes are consumed.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	stream, ok := r.streams[key]
	if ok {
		delete(r.streams, key)
	}
	r.mu.Unlock()

	if ok {
		stream.pw.Close()
		close(stream.done)
	}
}

// Get returns the Stream for the given key, or false if not found.
func (r *Registry) Get(key string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[key]
	return s, ok
}

// Len returns the number of registered streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
