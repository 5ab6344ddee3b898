package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zsiec/vdec/internal/config"
	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/media"
	"github.com/zsiec/vdec/internal/recovery"
)

var (
	// ErrClosed is returned by every method once Close has been called.
	ErrClosed = errors.New("worker: closed")
	// ErrStreamEnded is returned by Submit and EndOfStream after the
	// terminal error of the stream has already been reported.
	ErrStreamEnded = errors.New("worker: stream ended")
	// ErrNoDecoder is returned when no decoder has been opened.
	ErrNoDecoder = errors.New("worker: no decoder open")
)

const (
	// maxInflight bounds the units kept for replay while a decoder holds
	// output back.
	maxInflight = 32
	// maxReinits is the number of consecutive device losses tolerated
	// before the family is treated as failed.
	maxReinits = 3
)

// Sink receives decoded frames in output order.
type Sink interface {
	Deliver(f *media.Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f *media.Frame) error

// Deliver calls fn(f).
func (fn SinkFunc) Deliver(f *media.Frame) error { return fn(f) }

// Options configure a Worker.
type Options struct {
	Log         *slog.Logger
	Families    *decoder.Registry
	Decoder     config.Decoder
	Recovery    config.Recovery
	ProcessName string
	Sink        Sink
}

// Stats are cumulative counters.
type Stats struct {
	Submitted  int64
	Decoded    int64
	Delivered  int64
	Suppressed int64
	Dropped    int64
	Fallbacks  int64
	Replays    int64
	Reinits    int64
	Flushes    int64
}

// Worker owns one decode goroutine. Submit, Flush, EndOfStream, Reinit and
// Close must be called from a single producer goroutine; the query methods
// may be called from anywhere.
type Worker struct {
	log     *slog.Logger
	baseLog *slog.Logger // untagged, for the slot and recovery loggers
	opts    Options
	sink    Sink
	slot    *decoder.Slot
	locks   *decoder.Locks

	mailbox chan *job
	cmds    chan command
	done    chan struct{}
	closed  atomic.Bool

	mu       sync.Mutex
	out      []*media.Frame
	terminal error
	reported bool
	opened   bool

	// Owned by the decode goroutine.
	rec      *recovery.Machine
	inflight []*media.AccessUnit
	lost     int
	ended    bool

	// Owned by the producer goroutine.
	seq int64

	submitted  atomic.Int64
	decoded    atomic.Int64
	delivered  atomic.Int64
	suppressed atomic.Int64
	dropped    atomic.Int64
	fallbacks  atomic.Int64
	replays    atomic.Int64
	reinits    atomic.Int64
	flushes    atomic.Int64
}

// New starts a worker goroutine. Call Open before submitting units and
// Close when done.
func New(opts Options) *Worker {
	base := opts.Log
	if base == nil {
		base = slog.Default()
	}
	log := base.With("component", "worker")
	if opts.Families == nil {
		opts.Families = decoder.NewRegistry()
	}
	sink := opts.Sink
	if sink == nil {
		sink = SinkFunc(func(*media.Frame) error { return nil })
	}
	w := &Worker{
		log:     log,
		baseLog: base,
		opts:    opts,
		sink:    sink,
		locks:   decoder.AcquireLocks(),
		mailbox: make(chan *job, 1),
		cmds:    make(chan command),
		done:    make(chan struct{}),
	}
	w.slot = decoder.NewSlot(opts.Families, w.locks, base)
	go w.run()
	return w
}

// Open creates a decoder for codec, trying candidate families in order. It
// replaces any decoder opened before.
func (w *Worker) Open(ctx context.Context, codec media.CodecID, params media.StreamParams) error {
	if w.closed.Load() {
		return ErrClosed
	}
	return w.call(ctx, command{op: opCreate, codec: codec, params: params})
}

// Submit hands au to the decode goroutine. It blocks while the mailbox is
// occupied and, for families without CapThreadSafeBuffers, until au has been
// decoded. Frames ready by then are delivered before Submit returns. The
// stream's terminal error is returned once; later calls return
// ErrStreamEnded.
func (w *Worker) Submit(ctx context.Context, au *media.AccessUnit) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if err := w.deliver(); err != nil {
		return err
	}
	if err := w.takeTerminal(); err != nil {
		return err
	}
	if !w.isOpened() {
		return ErrNoDecoder
	}

	j := &job{au: au}
	if !w.slot.Caps().Has(decoder.CapThreadSafeBuffers) {
		j.done = make(chan error, 1)
	}
	select {
	case w.mailbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrClosed
	}
	w.submitted.Add(1)

	if j.done != nil {
		select {
		case <-j.done:
		case <-w.done:
			return ErrClosed
		}
	}
	if err := w.deliver(); err != nil {
		return err
	}
	return w.takeTerminal()
}

// Flush discards the pending unit, the decoder's buffered state and any
// undelivered frames, and restarts recovery-point search. Flushing twice in
// a row is the same as flushing once.
func (w *Worker) Flush(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	return w.call(ctx, command{op: opFlush})
}

// EndOfStream decodes the pending unit, drains the decoder and blocks until
// every buffered frame has been delivered.
func (w *Worker) EndOfStream(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if err := w.call(ctx, command{op: opDrain}); err != nil {
		return err
	}
	if err := w.deliver(); err != nil {
		return err
	}
	return w.takeTerminal()
}

// Reinit recreates the active family's decoder and replays the units that
// have not produced output yet.
func (w *Worker) Reinit(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	return w.call(ctx, command{op: opReinit})
}

// Close drains the decoder, delivers the remaining frames, releases the
// decoder and stops the goroutine. It is safe to call more than once.
func (w *Worker) Close(ctx context.Context) error {
	if w.closed.Swap(true) {
		return nil
	}
	err := w.call(ctx, command{op: opClose})
	if errors.Is(err, ErrClosed) {
		err = nil
	}
	derr := w.deliver()

	reply := make(chan error, 1)
	select {
	case w.cmds <- command{op: opShutdown, reply: reply}:
		<-reply
	case <-w.done:
	}
	<-w.done
	w.locks.Release()
	return errors.Join(err, derr)
}

// ActiveKind returns the kind of the active decoder family.
func (w *Worker) ActiveKind() (decoder.Kind, bool) {
	return w.slot.Kind(), w.slot.Active()
}

// Codec returns the codec of the current stream.
func (w *Worker) Codec() media.CodecID {
	return w.slot.Codec()
}

// Failed reports whether family k has failed for the current stream.
func (w *Worker) Failed(k decoder.Kind) bool {
	return w.slot.Failed(k)
}

// Stats returns a snapshot of the counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Submitted:  w.submitted.Load(),
		Decoded:    w.decoded.Load(),
		Delivered:  w.delivered.Load(),
		Suppressed: w.suppressed.Load(),
		Dropped:    w.dropped.Load(),
		Fallbacks:  w.fallbacks.Load(),
		Replays:    w.replays.Load(),
		Reinits:    w.reinits.Load(),
		Flushes:    w.flushes.Load(),
	}
}

func (w *Worker) call(ctx context.Context, c command) error {
	c.reply = make(chan error, 1)
	select {
	case w.cmds <- c:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrClosed
	}
	return <-c.reply
}

// deliver hands queued frames to the sink on the caller's goroutine.
func (w *Worker) deliver() error {
	w.mu.Lock()
	frames := w.out
	w.out = nil
	w.mu.Unlock()

	for i, f := range frames {
		f.Seq = w.seq
		w.seq++
		if err := w.sink.Deliver(f); err != nil {
			w.dropped.Add(int64(len(frames) - i - 1))
			return fmt.Errorf("worker: deliver: %w", err)
		}
		w.delivered.Add(1)
	}
	return nil
}

func (w *Worker) takeTerminal() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminal == nil {
		return nil
	}
	if w.reported {
		return ErrStreamEnded
	}
	w.reported = true
	return w.terminal
}

func (w *Worker) isOpened() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opened
}

func (w *Worker) setOpened(v bool) {
	w.mu.Lock()
	w.opened = v
	w.mu.Unlock()
}
