package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zsiec/vdec/internal/source"
)

const (
	formatAuto   = "auto"
	formatAnnexB = "annexb"
	formatTS     = "ts"
	formatMP4    = "mp4"

	tsPacketSize = 188
)

// detectFormat picks a container from the file extension, falling back to
// sniffing head for an MPEG-TS sync pattern or an MP4 ftyp box.
func detectFormat(path string, head []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return formatMP4
	case ".ts", ".m2ts", ".mts":
		return formatTS
	case ".264", ".h264", ".avc":
		return formatAnnexB
	}
	if len(head) >= 8 && bytes.Equal(head[4:8], []byte("ftyp")) {
		return formatMP4
	}
	if len(head) > tsPacketSize && head[0] == 0x47 && head[tsPacketSize] == 0x47 {
		return formatTS
	}
	return formatAnnexB
}

// openSource opens path as an access-unit source. The returned closer
// releases the file.
func openSource(ctx context.Context, path, format string, fps float64, log *slog.Logger) (source.Source, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	br := bufio.NewReaderSize(f, 64*1024)
	if format == "" || format == formatAuto {
		head, _ := br.Peek(2 * tsPacketSize)
		format = detectFormat(path, head)
	}
	log.Debug("opening input", "path", path, "format", format)

	switch format {
	case formatMP4:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, nil, err
		}
		r, err := source.OpenMP4(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		return r, f, nil
	case formatTS:
		return source.NewTSReader(ctx, br, log), f, nil
	case formatAnnexB:
		r := source.NewAnnexBReader(br)
		if fps > 0 {
			r.SetFrameRate(fps)
		}
		return r, f, nil
	}
	f.Close()
	return nil, nil, fmt.Errorf("unknown input format %q", format)
}
