package worker

import (
	"github.com/zsiec/vdec/internal/media"
)

type op uint8

const (
	opCreate op = iota
	opFlush
	opDrain
	opReinit
	opClose
	opShutdown
)

func (o op) String() string {
	switch o {
	case opCreate:
		return "create"
	case opFlush:
		return "flush"
	case opDrain:
		return "drain"
	case opReinit:
		return "reinit"
	case opClose:
		return "close"
	case opShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// command is passed by value to the worker goroutine. Only opCreate uses
// codec and params.
type command struct {
	op     op
	codec  media.CodecID
	params media.StreamParams
	reply  chan error
}

// job is one mailbox entry. done is non-nil when the producer waits for the
// decode to finish.
type job struct {
	au   *media.AccessUnit
	done chan error
}

func (j *job) finish(err error) {
	if j.done != nil {
		j.done <- err
	}
}
