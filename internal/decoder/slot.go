package decoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/vdec/internal/media"
)

// Slot owns at most one active decoder instance and remembers which
// families have failed for the current stream. The instance itself is only
// touched by the goroutine driving the slot; the active kind, codec and
// failure flags may be read from any goroutine.
type Slot struct {
	log   *slog.Logger
	reg   *Registry
	locks *Locks

	inst       Instance
	params     media.StreamParams
	candidates []Kind

	mu     sync.Mutex
	codec  media.CodecID
	kind   Kind
	caps   Caps
	active bool
	failed map[Kind]bool
}

// NewSlot returns an empty slot creating instances from reg. locks may be
// nil when no family needs serialized creation.
func NewSlot(reg *Registry, locks *Locks, log *slog.Logger) *Slot {
	if log == nil {
		log = slog.Default()
	}
	return &Slot{
		log:    log.With("component", "decoder-slot"),
		reg:    reg,
		locks:  locks,
		failed: make(map[Kind]bool),
	}
}

// Open closes any active instance, clears the failure flags and creates the
// first candidate that can be constructed.
func (s *Slot) Open(codec media.CodecID, params media.StreamParams, candidates []Kind) error {
	s.closeInstance()
	s.mu.Lock()
	s.codec = codec
	clear(s.failed)
	s.mu.Unlock()
	s.params = params
	s.candidates = append(s.candidates[:0], candidates...)
	return s.next()
}

// Fail marks the active family as failed for this stream and closes its
// instance.
func (s *Slot) Fail() {
	s.mu.Lock()
	if s.active {
		s.failed[s.kind] = true
	}
	s.mu.Unlock()
	s.closeInstance()
}

// Next creates the next candidate that has not failed. It returns an error
// wrapping ErrFamiliesExhausted when none is left.
func (s *Slot) Next() error {
	s.closeInstance()
	return s.next()
}

// Recreate replaces the active instance with a fresh one of the same
// family. If that fails the family is marked failed.
func (s *Slot) Recreate() error {
	s.mu.Lock()
	kind, active := s.kind, s.active
	s.mu.Unlock()
	if !active {
		return fmt.Errorf("%w: no active family", ErrInitFailure)
	}
	s.closeInstance()
	f, ok := s.reg.Lookup(kind)
	if !ok {
		return fmt.Errorf("%w: %s not registered", ErrInitFailure, kind)
	}
	inst, err := s.create(f)
	if err != nil {
		s.markFailed(kind)
		return err
	}
	s.set(f, inst)
	return nil
}

func (s *Slot) next() error {
	var errs []error
	for _, k := range s.candidates {
		if s.Failed(k) {
			continue
		}
		f, ok := s.reg.Lookup(k)
		if !ok {
			continue
		}
		inst, err := s.create(f)
		if err != nil && k == KindLegacy {
			if alt, ok := s.reg.Lookup(KindLegacyAlt); ok && !s.Failed(KindLegacyAlt) {
				s.log.Warn("legacy decoder unavailable, trying alternate", "error", err)
				s.markFailed(KindLegacy)
				k, f = KindLegacyAlt, alt
				inst, err = s.create(f)
			}
		}
		if err != nil {
			s.log.Warn("decoder family init failed", "family", k, "error", err)
			s.markFailed(k)
			errs = append(errs, err)
			continue
		}
		s.set(f, inst)
		s.log.Info("decoder family created",
			"family", k,
			"codec", s.Codec(),
			"width", s.params.Width,
			"height", s.params.Height,
		)
		return nil
	}
	if len(errs) == 0 {
		return ErrFamiliesExhausted
	}
	return fmt.Errorf("%w: %w", ErrFamiliesExhausted, errors.Join(errs...))
}

func (s *Slot) create(f Family) (Instance, error) {
	if f.Caps().Has(CapSerializedCreate) && s.locks != nil {
		mu := s.locks.Lock(LockCreate)
		mu.Lock()
		defer mu.Unlock()
	}
	inst, err := f.Create(s.Codec(), s.params)
	if err != nil {
		if !errors.Is(err, ErrInitFailure) {
			err = fmt.Errorf("%w: %s: %w", ErrInitFailure, f.Kind(), err)
		}
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("%w: %s returned no instance", ErrInitFailure, f.Kind())
	}
	return inst, nil
}

func (s *Slot) set(f Family, inst Instance) {
	s.inst = inst
	s.mu.Lock()
	s.kind = f.Kind()
	s.caps = f.Caps()
	s.active = true
	s.mu.Unlock()
}

func (s *Slot) markFailed(k Kind) {
	s.mu.Lock()
	s.failed[k] = true
	s.mu.Unlock()
}

func (s *Slot) closeInstance() {
	if s.inst == nil {
		return
	}
	if err := s.inst.Close(); err != nil {
		s.log.Debug("decoder close failed", "error", err)
	}
	s.inst = nil
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Decode hands au to the active instance.
func (s *Slot) Decode(au *media.AccessUnit) ([]*media.Frame, error) {
	if s.inst == nil {
		return nil, fmt.Errorf("%w: no active family", ErrHardFailure)
	}
	return s.inst.Decode(au)
}

// Flush flushes the active instance, if any.
func (s *Slot) Flush() {
	if s.inst != nil {
		s.inst.Flush()
	}
}

// Drain drains the active instance, if any.
func (s *Slot) Drain() ([]*media.Frame, error) {
	if s.inst == nil {
		return nil, nil
	}
	return s.inst.Drain()
}

// ThreadDelay returns the active instance's frame-threading delay.
func (s *Slot) ThreadDelay() int {
	if d, ok := s.inst.(ThreadDelayer); ok {
		return d.ThreadDelay()
	}
	return 0
}

// Close releases the active instance. The failure flags are kept.
func (s *Slot) Close() {
	s.closeInstance()
}

// Active reports whether an instance exists.
func (s *Slot) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Kind returns the active family's kind. It is only meaningful while
// Active reports true.
func (s *Slot) Kind() Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kind
}

// Caps returns the active family's capabilities.
func (s *Slot) Caps() Caps {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caps
}

// Codec returns the codec the slot was opened for.
func (s *Slot) Codec() media.CodecID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec
}

// Failed reports whether family k has failed for the current stream.
func (s *Slot) Failed(k Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed[k]
}
