package convert

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wapuda/videonote_bot/internal/logx"
)

// Video note profile: fit into a 480x480 square with padding, at most 59s,
// 30 fps, baseline-friendly H.264 + mono AAC, faststart for streaming.
const (
	noteSide       = 480
	noteMaxSeconds = 59
	noteFPS        = 30
	noteFilter     = "scale=480:480:force_original_aspect_ratio=decrease,pad=480:480:(ow-iw)/2:(oh-ih)/2,setsar=1"
)

// noteArgs builds the invariant ffmpeg argument vector. Never assembled
// from a shell string; src/out are the only variable elements and both are
// pipeline-owned paths.
func noteArgs(src, out string) []string {
	return []string{
		"-y",
		"-i", src,
		"-vf", noteFilter,
		"-t", strconv.Itoa(noteMaxSeconds),
		"-r", strconv.Itoa(noteFPS),
		"-c:v", "libx264", "-preset", "veryfast",
		"-profile:v", "main", "-level", "3.1",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac", "-b:a", "96k", "-ar", "48000", "-ac", "1",
		"-movflags", "+faststart",
		out,
	}
}

func (p *Pipeline) transcode(ctx context.Context, src, out string) error {
	bin := p.FFmpegBin
	if bin == "" {
		bin = "ffmpeg"
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := noteArgs(src, out)
	l := logx.FromCtx(ctx)
	l.Info().Str("bin", bin).Str("args", strings.Join(args, " ")).Msg("running transcoder")

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// exit status is authoritative; partial output counts for nothing
		lw := logx.NewLineWriter(map[string]string{"stream": "ffmpeg"}, zerolog.ErrorLevel)
		lw.Pipe(bytes.NewReader(stderr.Bytes()))
		return &Failure{Kind: KindConvert, Err: err, Detail: strings.TrimSpace(stderr.String())}
	}
	return nil
}
