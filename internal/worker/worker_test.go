package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/vdec/internal/config"
	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/decoder/decodertest"
	"github.com/zsiec/vdec/internal/media"
)

type collector struct {
	mu     sync.Mutex
	frames []*media.Frame
}

func (c *collector) Deliver(f *media.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *collector) ptss() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.frames))
	for i, f := range c.frames {
		out[i] = f.PTS
	}
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newWorker(t *testing.T, sink Sink, fams ...decoder.Family) *Worker {
	t.Helper()
	w := New(Options{
		Families: decoder.NewRegistry(fams...),
		Decoder:  config.Decoder{Hardware: []string{"nvdec"}},
		Sink:     sink,
	})
	t.Cleanup(func() { w.Close(context.Background()) })
	if err := w.Open(context.Background(), media.CodecH264, media.StreamParams{Width: 640, Height: 360}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	return w
}

func unit(pts int64) *media.AccessUnit {
	return &media.AccessUnit{Data: []byte{0, 0, 1, 0x65}, PTS: pts, HasPTS: true}
}

func submitAll(t *testing.T, w *Worker, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := w.Submit(ctx, unit(int64(i))); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
}

func seq(n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out
}

func TestDecodeCallsNeverOverlap(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, C: decoder.CapThreadSafeBuffers, DecodeTime: 2 * time.Millisecond}
	var sink collector
	w := newWorker(t, &sink, sw)

	submitAll(t, w, 10)
	if err := w.EndOfStream(context.Background()); err != nil {
		t.Fatalf("EndOfStream: %v", err)
	}

	calls := sw.Calls()
	if len(calls) != 10 {
		t.Fatalf("decode calls: got %d, want 10", len(calls))
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].Start.Before(calls[i-1].End) {
			t.Errorf("Decode(%d) started before Decode(%d) returned", calls[i].PTS, calls[i-1].PTS)
		}
		if calls[i].PTS != calls[i-1].PTS+1 {
			t.Errorf("call %d decoded pts %d after %d", i, calls[i].PTS, calls[i-1].PTS)
		}
	}
	if got := sink.ptss(); !slices.Equal(got, seq(10)) {
		t.Errorf("delivered: got %v", got)
	}
}

func TestSubmitWaitsForUnsafeBuffers(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, DecodeTime: time.Millisecond}
	var sink collector
	w := newWorker(t, &sink, sw)

	for i := 0; i < 5; i++ {
		if err := w.Submit(context.Background(), unit(int64(i))); err != nil {
			t.Fatal(err)
		}
		if got := len(sw.Calls()); got != i+1 {
			t.Fatalf("after Submit %d: %d decode calls finished", i, got)
		}
		if got := sink.len(); got != i+1 {
			t.Fatalf("after Submit %d: %d frames delivered", i, got)
		}
	}
}

func TestHardwareFallbackReplaysFailedUnit(t *testing.T) {
	t.Parallel()

	const n = 6
	hw := &decodertest.Family{K: decoder.KindNVDEC, C: decoder.CapThreadSafeBuffers, FailAt: 2}
	sw := &decodertest.Family{K: decoder.KindSoftware}
	var sink collector
	w := newWorker(t, &sink, hw, sw)

	submitAll(t, w, n)
	if err := w.EndOfStream(context.Background()); err != nil {
		t.Fatalf("EndOfStream: %v", err)
	}

	if got := sw.Creates(); got != 1 {
		t.Errorf("software creates: got %d, want 1", got)
	}
	if got := hw.PTSs(); !slices.Equal(got, []int64{0, 1}) {
		t.Errorf("hardware decoded %v, want [0 1]", got)
	}
	if got := sw.PTSs(); !slices.Equal(got, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("software decoded %v, want [1 2 3 4 5]", got)
	}
	st := w.Stats()
	if st.Replays != 1 || st.Fallbacks != 1 {
		t.Errorf("stats: replays %d fallbacks %d, want 1 and 1", st.Replays, st.Fallbacks)
	}
	if k, ok := w.ActiveKind(); !ok || k != decoder.KindSoftware {
		t.Errorf("active kind: got %v (%v), want software", k, ok)
	}
	if !w.Failed(decoder.KindNVDEC) || w.Failed(decoder.KindSoftware) {
		t.Error("failure flags wrong after fallback")
	}

	// The same input on software alone.
	alone := &decodertest.Family{K: decoder.KindSoftware}
	var ref collector
	w2 := newWorker(t, &ref, alone)
	submitAll(t, w2, n)
	if err := w2.EndOfStream(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sink.len() != ref.len() {
		t.Errorf("delivered %d frames, software alone delivers %d", sink.len(), ref.len())
	}
	if got := sink.ptss(); !slices.Equal(got, seq(n)) {
		t.Errorf("delivered pts: got %v", got)
	}
}

func TestTerminalFailureReportedOnce(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, FailAt: 2}
	var sink collector
	w := newWorker(t, &sink, sw)
	ctx := context.Background()

	if err := w.Submit(ctx, unit(0)); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	err := w.Submit(ctx, unit(1))
	if !errors.Is(err, decoder.ErrFamiliesExhausted) {
		t.Fatalf("second Submit: got %v, want ErrFamiliesExhausted", err)
	}
	if err := w.Submit(ctx, unit(2)); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("third Submit: got %v, want ErrStreamEnded", err)
	}
	if err := w.EndOfStream(ctx); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("EndOfStream: got %v, want ErrStreamEnded", err)
	}
	if got := sink.ptss(); !slices.Equal(got, []int64{0}) {
		t.Errorf("frames before the failure: got %v, want [0]", got)
	}
	if sw.Creates() != 1 {
		t.Errorf("software creates: got %d, want 1", sw.Creates())
	}
}

func TestFlushIsIdempotent(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, Lag: 1}
	var sink collector
	w := newWorker(t, &sink, sw)
	ctx := context.Background()

	submitAll(t, w, 3)
	if got := sink.len(); got != 2 {
		t.Fatalf("delivered before flush: got %d, want 2", got)
	}
	for i := 0; i < 2; i++ {
		if err := w.Flush(ctx); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}
	if err := w.EndOfStream(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sink.ptss(); !slices.Equal(got, []int64{0, 1}) {
		t.Errorf("delivered: got %v, want [0 1]", got)
	}
	if sw.Flushes() != 2 || w.Stats().Flushes != 2 {
		t.Errorf("flushes: family %d, worker %d", sw.Flushes(), w.Stats().Flushes)
	}

	// Decoding resumes normally after the flush.
	if err := w.Submit(ctx, unit(10)); err != nil {
		t.Fatal(err)
	}
	if err := w.EndOfStream(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sink.ptss(); !slices.Equal(got, []int64{0, 1, 10}) {
		t.Errorf("delivered after resume: got %v", got)
	}
}

func TestDeviceLostReplaysInFlightUnits(t *testing.T) {
	t.Parallel()

	hw := &decodertest.Family{K: decoder.KindNVDEC, Lag: 1, FailAt: 2, FailErr: decoder.ErrDeviceLost}
	sw := &decodertest.Family{K: decoder.KindSoftware}
	var sink collector
	w := newWorker(t, &sink, hw, sw)

	submitAll(t, w, 4)
	if err := w.EndOfStream(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hw.Creates() != 2 {
		t.Errorf("hardware creates: got %d, want 2", hw.Creates())
	}
	if sw.Creates() != 0 {
		t.Errorf("software creates: got %d, want 0", sw.Creates())
	}
	if got := hw.PTSs(); !slices.Equal(got, []int64{0, 1, 0, 1, 2, 3}) {
		t.Errorf("decode order: got %v", got)
	}
	if got := sink.ptss(); !slices.Equal(got, seq(4)) {
		t.Errorf("delivered: got %v", got)
	}
	if st := w.Stats(); st.Reinits != 1 || st.Replays != 2 {
		t.Errorf("stats: reinits %d replays %d, want 1 and 2", st.Reinits, st.Replays)
	}
	if w.Failed(decoder.KindNVDEC) {
		t.Error("device loss marked the family failed")
	}
}

func TestDeviceLostReplaysBeforeQueuedUnit(t *testing.T) {
	t.Parallel()

	// Thread-safe buffers let Submit return while unit 2 waits in the
	// mailbox behind the decode of unit 1 that loses the device.
	hw := &decodertest.Family{
		K:          decoder.KindNVDEC,
		C:          decoder.CapThreadSafeBuffers,
		Lag:        1,
		DecodeTime: 30 * time.Millisecond,
		FailAt:     2,
		FailErr:    decoder.ErrDeviceLost,
	}
	var sink collector
	w := newWorker(t, &sink, hw)
	ctx := context.Background()

	submitAll(t, w, 3)
	queuedAt := time.Now()
	if err := w.EndOfStream(ctx); err != nil {
		t.Fatal(err)
	}

	calls := hw.Calls()
	if got := hw.PTSs(); !slices.Equal(got, []int64{0, 1, 0, 1, 2}) {
		t.Fatalf("decode order: got %v, want [0 1 0 1 2]", got)
	}
	if !calls[1].End.After(queuedAt) {
		t.Error("unit 2 was not queued while unit 1 failed")
	}
	if calls[1].Instance != 1 || calls[2].Instance != 2 || calls[4].Instance != 2 {
		t.Errorf("instances: got %d %d %d, want 1 2 2", calls[1].Instance, calls[2].Instance, calls[4].Instance)
	}
	if got := sink.ptss(); !slices.Equal(got, seq(3)) {
		t.Errorf("delivered: got %v", got)
	}
	if st := w.Stats(); st.Reinits != 1 || st.Replays != 2 {
		t.Errorf("stats: reinits %d replays %d, want 1 and 2", st.Reinits, st.Replays)
	}
}

func TestRepeatedDeviceLossFallsBack(t *testing.T) {
	t.Parallel()

	hw := &decodertest.Family{K: decoder.KindNVDEC, FailAt: 1, FailTimes: 100, FailErr: decoder.ErrDeviceLost}
	sw := &decodertest.Family{K: decoder.KindSoftware}
	var sink collector
	w := newWorker(t, &sink, hw, sw)

	submitAll(t, w, 2)
	if err := w.EndOfStream(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := hw.Creates(); got != 1+maxReinits {
		t.Errorf("hardware creates: got %d, want %d", got, 1+maxReinits)
	}
	if sw.Creates() != 1 {
		t.Errorf("software creates: got %d, want 1", sw.Creates())
	}
	if got := sink.ptss(); !slices.Equal(got, seq(2)) {
		t.Errorf("delivered: got %v", got)
	}
}

func TestReinitCommandReplaysHeldUnits(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, Lag: 1}
	var sink collector
	w := newWorker(t, &sink, sw)
	ctx := context.Background()

	submitAll(t, w, 2)
	if err := w.Reinit(ctx); err != nil {
		t.Fatalf("Reinit: %v", err)
	}
	if err := w.Submit(ctx, unit(2)); err != nil {
		t.Fatal(err)
	}
	if err := w.EndOfStream(ctx); err != nil {
		t.Fatal(err)
	}
	if got := sw.PTSs(); !slices.Equal(got, []int64{0, 1, 1, 2}) {
		t.Errorf("decode order: got %v", got)
	}
	if got := sink.ptss(); !slices.Equal(got, seq(3)) {
		t.Errorf("delivered: got %v", got)
	}
	if sw.Creates() != 2 {
		t.Errorf("creates: got %d, want 2", sw.Creates())
	}
}

func TestSubmitBeforeOpen(t *testing.T) {
	t.Parallel()

	w := New(Options{Families: decoder.NewRegistry(&decodertest.Family{K: decoder.KindSoftware})})
	defer w.Close(context.Background())
	if err := w.Submit(context.Background(), unit(0)); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("got %v, want ErrNoDecoder", err)
	}
	if err := w.Reinit(context.Background()); !errors.Is(err, ErrNoDecoder) {
		t.Errorf("Reinit: got %v, want ErrNoDecoder", err)
	}
}

func TestOpenExhausted(t *testing.T) {
	t.Parallel()

	w := New(Options{Families: decoder.NewRegistry(
		&decodertest.Family{K: decoder.KindSoftware, CreateErr: decodertest.ErrCreate},
	)})
	defer w.Close(context.Background())
	err := w.Open(context.Background(), media.CodecH264, media.StreamParams{})
	if !errors.Is(err, decoder.ErrFamiliesExhausted) || !errors.Is(err, decoder.ErrInitFailure) {
		t.Errorf("got %v, want ErrFamiliesExhausted wrapping ErrInitFailure", err)
	}
	if _, ok := w.ActiveKind(); ok {
		t.Error("active family after failed open")
	}
}

func TestCloseDeliversBufferedFrames(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, Lag: 2}
	var sink collector
	w := newWorker(t, &sink, sw)
	ctx := context.Background()

	submitAll(t, w, 3)
	if got := sink.len(); got != 1 {
		t.Fatalf("delivered before close: got %d, want 1", got)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := sink.ptss(); !slices.Equal(got, seq(3)) {
		t.Errorf("delivered: got %v", got)
	}
	if sw.Closes() != 1 {
		t.Errorf("instance closes: got %d, want 1", sw.Closes())
	}
	if err := w.Submit(ctx, unit(3)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close: got %v, want ErrClosed", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSinkErrorIsReturned(t *testing.T) {
	t.Parallel()

	errFull := errors.New("sink full")
	sw := &decodertest.Family{K: decoder.KindSoftware}
	w := newWorker(t, SinkFunc(func(*media.Frame) error { return errFull }), sw)
	if err := w.Submit(context.Background(), unit(0)); !errors.Is(err, errFull) {
		t.Errorf("got %v, want sink error", err)
	}
}

func TestSubmitHonorsContext(t *testing.T) {
	t.Parallel()

	sw := &decodertest.Family{K: decoder.KindSoftware, C: decoder.CapThreadSafeBuffers, DecodeTime: 50 * time.Millisecond}
	w := newWorker(t, nil, sw)

	// One unit decodes, one waits in the mailbox, the third cannot be placed.
	bg := context.Background()
	if err := w.Submit(bg, unit(0)); err != nil {
		t.Fatal(err)
	}
	if err := w.Submit(bg, unit(1)); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(bg, 5*time.Millisecond)
	defer cancel()
	if err := w.Submit(ctx, unit(2)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogRecordsCarryOneComponent(t *testing.T) {
	t.Parallel()

	var out lockedBuffer
	log := slog.New(slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := New(Options{
		Log:      log,
		Families: decoder.NewRegistry(&decodertest.Family{K: decoder.KindSoftware}),
		Recovery: config.Recovery{Enabled: true},
	})
	ctx := context.Background()
	if err := w.Open(ctx, media.CodecH264, media.StreamParams{}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatal(err)
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if n := strings.Count(line, `"component":`); n != 1 {
			t.Errorf("record has %d component keys: %s", n, line)
		}
		for _, c := range []string{"worker", "decoder-slot", "recovery"} {
			if strings.Contains(line, `"component":"`+c+`"`) {
				seen[c] = true
			}
		}
	}
	for _, c := range []string{"worker", "decoder-slot", "recovery"} {
		if !seen[c] {
			t.Errorf("no record from component %q", c)
		}
	}
}
