package convert

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wapuda/videonote_bot/internal/logx"
)

// FileFetcher retrieves the bytes behind an opaque media reference into a
// local destination path. Errors surface as-is, no internal retries.
type FileFetcher interface {
	Fetch(ctx context.Context, fileID, dst string) error
}

type Kind string

const (
	KindDownload Kind = "download"
	KindConvert  Kind = "convert"
)

// Failure is a per-request pipeline error. Detail carries the transcoder's
// diagnostic stream for the logs; UserMessage stays short.
type Failure struct {
	Kind   Kind
	Err    error
	Detail string
}

func (f *Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s failed: %v: %s", f.Kind, f.Err, f.Detail)
	}
	return fmt.Sprintf("%s failed: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) UserMessage() string {
	if f.Kind == KindDownload {
		return "⚠️ Could not download the video. Try sending it again."
	}
	return "⚠️ Could not convert the video. Make sure it is a playable video file."
}

// Request identifies one conversion. RequestID may be empty; Process mints
// a ULID then.
type Request struct {
	RequestID    string
	FileID       string
	OriginalName string
}

// Pipeline downloads a remote video and transcodes it into a Telegram
// video note inside a request-scoped working directory.
type Pipeline struct {
	Fetch     FileFetcher
	FFmpegBin string        // "" = "ffmpeg"
	DataDir   string        // workdirs live under DataDir/requests
	Timeout   time.Duration // subprocess cap, 0 = none
}

func NewRequestID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// extensions are untrusted input; anything unusual falls back to .mp4
var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,6}$`)

func sourceExt(name string) string {
	ext := filepath.Ext(filepath.Base(name))
	if !extPattern.MatchString(ext) {
		return ".mp4"
	}
	return ext
}

// Process runs download → transcode. On success it returns the artifact
// path plus a cleanup func the caller invokes once delivery is done; on
// failure the workdir is already gone and err is a *Failure.
func (p *Pipeline) Process(ctx context.Context, req Request) (string, func(), error) {
	rid := req.RequestID
	if rid == "" {
		rid = NewRequestID()
	}
	ctx = logx.WithRequestID(ctx, rid)
	l := logx.FromCtx(ctx)

	dir := filepath.Join(p.DataDir, "requests", rid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("workdir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	// the workdir is released on every exit path, panics included; only a
	// successful return hands ownership to the caller
	delivered := false
	defer func() {
		if !delivered {
			cleanup()
		}
	}()

	// fixed inner names; only the extension comes from the original name
	src := filepath.Join(dir, "src"+sourceExt(req.OriginalName))
	out := filepath.Join(dir, "note.mp4")

	l.Info().Str("file_id", req.FileID).Str("src", src).Msg("downloading source")
	if err := p.Fetch.Fetch(ctx, req.FileID, src); err != nil {
		return "", nil, &Failure{Kind: KindDownload, Err: err}
	}

	if err := p.transcode(ctx, src, out); err != nil {
		return "", nil, err
	}

	l.Info().Str("out", out).Msg("video note ready")
	delivered = true
	return out, cleanup, nil
}
