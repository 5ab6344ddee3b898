package srt

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zsiec/vdec/internal/ingest"
)

func TestExtractStreamKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		streamID string
		want     string
	}{
		{name: "simple key", streamID: "camera1", want: "camera1"},
		{name: "leading slash", streamID: "/camera1", want: "camera1"},
		{name: "live prefix", streamID: "live/camera1", want: "camera1"},
		{name: "slash and live prefix", streamID: "/live/camera1", want: "camera1"},
		{name: "empty returns default", streamID: "", want: "default"},
		{name: "just slash returns default", streamID: "/", want: "default"},
		{name: "just live/ returns default", streamID: "live/", want: "default"},
		{name: "nested path preserved", streamID: "studio/camera1", want: "studio/camera1"},
		{name: "live in name preserved", streamID: "liveshow", want: "liveshow"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extractStreamKey(tc.streamID)
			if got != tc.want {
				t.Errorf("extractStreamKey(%q) = %q, want %q", tc.streamID, got, tc.want)
			}
		})
	}
}

func TestParsePullRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    PullRequest
		wantErr bool
	}{
		{in: "cam@10.0.0.1:9000", want: PullRequest{StreamKey: "cam", Address: "10.0.0.1:9000"}},
		{in: "cam@host:9000/live/other", want: PullRequest{StreamKey: "cam", Address: "host:9000", StreamID: "live/other"}},
		{in: "host:9000", wantErr: true},
		{in: "@host:9000", wantErr: true},
		{in: "cam@", wantErr: true},
		{in: "cam@/id", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePullRequest(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParsePullRequest(%q) = %+v, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePullRequest(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("ParsePullRequest(%q) = %+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPumpCopiesUntilEOF(t *testing.T) {
	t.Parallel()

	reg := ingest.NewRegistry(nil)
	stream, w, err := reg.Register("cam", ingest.FormatMPEGTS)
	if err != nil {
		t.Fatal(err)
	}

	payload := bytes.Repeat([]byte{0x47}, 188*20)
	got := make(chan []byte, 1)
	go func() {
		b, _ := io.ReadAll(stream.Input())
		got <- b
	}()

	pump(context.Background(), slog.Default(), bytes.NewReader(payload), stream, w)
	reg.Unregister("cam")

	if b := <-got; !bytes.Equal(b, payload) {
		t.Errorf("got %d bytes, want %d", len(b), len(payload))
	}
	stats := stream.IngestStats()
	if stats.BytesReceived != int64(len(payload)) {
		t.Errorf("BytesReceived = %d, want %d", stats.BytesReceived, len(payload))
	}
}

func TestPumpStopsWhenSessionAborts(t *testing.T) {
	t.Parallel()

	reg := ingest.NewRegistry(nil)
	stream, w, err := reg.Register("cam", ingest.FormatMPEGTS)
	if err != nil {
		t.Fatal(err)
	}
	stream.Abort(errors.New("session ended"))

	done := make(chan struct{})
	go func() {
		pump(context.Background(), slog.Default(), bytes.NewReader(make([]byte, 1316)), stream, w)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump kept running after the reader side was aborted")
	}
}
