package decoder

import (
	"fmt"
	"strings"

	"github.com/zsiec/vdec/internal/media"
)

// Kind identifies a decoder family. The set is closed.
type Kind uint8

// Decoder family kinds.
const (
	KindSoftware Kind = iota
	KindNVDEC
	KindQSV
	KindVAAPI
	KindLegacy
	KindLegacyAlt
)

var kindNames = [...]string{
	KindSoftware:  "software",
	KindNVDEC:     "nvdec",
	KindQSV:       "qsv",
	KindVAAPI:     "vaapi",
	KindLegacy:    "legacy",
	KindLegacyAlt: "legacy-alt",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsHardware reports whether k is a hardware-accelerated family.
func (k Kind) IsHardware() bool {
	return k == KindNVDEC || k == KindQSV || k == KindVAAPI
}

// ParseKind maps a family name to its Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Caps are per-family capability flags.
type Caps uint32

const (
	// CapThreadSafeBuffers means the family copies or finishes with the
	// input buffer before Decode returns control to the producer, so Submit
	// need not wait for the decode to complete.
	CapThreadSafeBuffers Caps = 1 << iota

	// CapSerializedCreate means Create must not run concurrently with any
	// other serialized Create in the process.
	CapSerializedCreate
)

// Has reports whether all flags in f are set.
func (c Caps) Has(f Caps) bool {
	return c&f == f
}

// Family constructs decoder instances of one kind.
type Family interface {
	Kind() Kind
	Caps() Caps
	// Create returns a new instance. Failures wrap ErrInitFailure.
	Create(codec media.CodecID, params media.StreamParams) (Instance, error)
}

// Instance is one decoder session. Its methods are only ever called from a
// single goroutine.
type Instance interface {
	// Decode consumes one access unit and returns the frames that became
	// ready for output, in output order. It returns ErrNoFrame when nothing
	// is ready, ErrHardFailure when the bitstream cannot be decoded by this
	// family, and ErrDeviceLost when the instance must be recreated.
	Decode(au *media.AccessUnit) ([]*media.Frame, error)
	// Flush discards all buffered input and output.
	Flush()
	// Drain returns every frame still buffered, in output order.
	Drain() ([]*media.Frame, error)
	Close() error
}

// ThreadDelayer is implemented by instances that decode with frame threads.
// ThreadDelay is the number of decode calls after a flush whose output may
// still stem from pre-flush input.
type ThreadDelayer interface {
	ThreadDelay() int
}
