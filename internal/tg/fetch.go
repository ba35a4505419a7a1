package tg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wapuda/videonote_bot/internal/logx"
)

// Fetcher implements convert.FileFetcher over the Bot API: resolve the
// file_id to a file path, then stream the bytes to dst.
type Fetcher struct {
	Bot  *tgbotapi.BotAPI
	HTTP *http.Client
}

func NewFetcher(bot *tgbotapi.BotAPI) *Fetcher {
	return &Fetcher{Bot: bot, HTTP: &http.Client{Timeout: 2 * time.Minute}}
}

func (f *Fetcher) Fetch(ctx context.Context, fileID, dst string) error {
	file, err := f.Bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("get file %s: %w", fileID, err)
	}
	url := file.Link(f.Bot.Token)

	log := logx.FromCtx(ctx)
	log.Info().Str("remote", file.FilePath).Str("dst", dst).Msg("downloading")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", file.FilePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", file.FilePath, resp.Status)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}
