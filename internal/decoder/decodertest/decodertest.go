// Package decodertest provides a scriptable decoder family for tests.
package decodertest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zsiec/vdec/internal/decoder"
	"github.com/zsiec/vdec/internal/media"
)

// Call records one Decode invocation.
type Call struct {
	Instance int
	PTS      int64
	Start    time.Time
	End      time.Time
}

// Family is a fake decoder family. Each decoded unit yields one frame
// carrying the unit's PTS, held back by Lag frames. Configure the exported
// fields before first use.
type Family struct {
	K decoder.Kind
	C decoder.Caps

	// CreateErr is returned by every Create.
	CreateErr error
	// FailAt makes the FailAt-th Decode call across all instances (counting
	// from 1) return FailErr, FailTimes times in a row. FailErr defaults to
	// decoder.ErrHardFailure and FailTimes to 1.
	FailAt    int
	FailErr   error
	FailTimes int
	// Lag is the number of frames each instance holds before output.
	Lag int
	// DecodeTime is slept inside every Decode.
	DecodeTime time.Duration
	// Delay is reported through decoder.ThreadDelayer.
	Delay int

	mu      sync.Mutex
	creates int
	closes  int
	flushes int
	decodes int
	failed  int
	calls   []Call
	params  []media.StreamParams
}

// Kind implements decoder.Family.
func (f *Family) Kind() decoder.Kind { return f.K }

// Caps implements decoder.Family.
func (f *Family) Caps() decoder.Caps { return f.C }

// Create implements decoder.Family.
func (f *Family) Create(codec media.CodecID, params media.StreamParams) (decoder.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.params = append(f.params, params)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return &instance{f: f, id: f.creates}, nil
}

// Creates returns the number of Create calls.
func (f *Family) Creates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

// Closes returns the number of closed instances.
func (f *Family) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Flushes returns the number of Flush calls.
func (f *Family) Flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// Calls returns the recorded Decode calls in call order.
func (f *Family) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Params returns the stream parameters of every Create call.
func (f *Family) Params() []media.StreamParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.StreamParams(nil), f.params...)
}

// PTSs returns the PTS of every decoded unit in call order.
func (f *Family) PTSs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.PTS
	}
	return out
}

func (f *Family) decodeErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decodes++
	times := f.FailTimes
	if times <= 0 {
		times = 1
	}
	if f.FailAt > 0 && f.decodes >= f.FailAt && f.failed < times {
		f.failed++
		if f.FailErr != nil {
			return f.FailErr
		}
		return fmt.Errorf("%w: scripted failure", decoder.ErrHardFailure)
	}
	return nil
}

type instance struct {
	f       *Family
	id      int
	held    []*media.Frame
	decoded int
}

func (i *instance) Decode(au *media.AccessUnit) ([]*media.Frame, error) {
	start := time.Now()
	if i.f.DecodeTime > 0 {
		time.Sleep(i.f.DecodeTime)
	}
	err := i.f.decodeErr()

	i.f.mu.Lock()
	i.f.calls = append(i.f.calls, Call{Instance: i.id, PTS: au.PTS, Start: start, End: time.Now()})
	i.f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	fr := &media.Frame{
		FrameNum: i.decoded,
		POC:      2 * i.decoded,
		PTS:      au.PTS,
		HasPTS:   au.HasPTS,
		Keyframe: au.Sync,
	}
	i.decoded++
	i.held = append(i.held, fr)
	if len(i.held) <= i.f.Lag {
		return nil, decoder.ErrNoFrame
	}
	out := i.held[0]
	i.held = i.held[1:]
	out.DecodeFrameNum = fr.FrameNum
	out.DecodePOC = fr.POC
	return []*media.Frame{out}, nil
}

func (i *instance) Flush() {
	i.held = nil
	i.f.mu.Lock()
	i.f.flushes++
	i.f.mu.Unlock()
}

func (i *instance) Drain() ([]*media.Frame, error) {
	out := i.held
	i.held = nil
	return out, nil
}

func (i *instance) Close() error {
	i.f.mu.Lock()
	defer i.f.mu.Unlock()
	i.f.closes++
	return nil
}

func (i *instance) ThreadDelay() int {
	return i.f.Delay
}

// ErrCreate is a ready-made CreateErr.
var ErrCreate = errors.New("decodertest: create refused")
