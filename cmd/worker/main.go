package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/videonote_bot/internal/convert"
	"github.com/wapuda/videonote_bot/internal/jobs"
	"github.com/wapuda/videonote_bot/internal/logx"
	"github.com/wapuda/videonote_bot/internal/tg"
)

/* ---------------------- config & utils ---------------------- */

type cfg struct {
	DataDir           string
	FFmpegBin         string
	Concurrency       int
	ConvertTimeoutSec int
	RedisAddr         string
	BotToken          string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func loadCfg() cfg {
	return cfg{
		DataDir:           getenv("DATA_DIR", "data"),
		FFmpegBin:         getenv("FFMPEG_BIN", "ffmpeg"),
		Concurrency:       mustInt("CONCURRENCY", 2),
		ConvertTimeoutSec: mustInt("CONVERT_TIMEOUT_SEC", 120),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		BotToken:          os.Getenv("BOT_TOKEN"),
	}
}

/* ---------------------- main ---------------------- */

func main() {
	_ = godotenv.Load()
	c := loadCfg()

	logx.Setup(logx.FromEnv("worker"))
	if c.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}
	if err := os.MkdirAll(filepath.Join(c.DataDir, "requests"), 0o755); err != nil {
		log.Fatal().Err(err).Msg("data dir")
	}

	bot, err := tgbotapi.NewBotAPI(c.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})

	pipe := &convert.Pipeline{
		Fetch:     tg.NewFetcher(bot),
		FFmpegBin: c.FFmpegBin,
		DataDir:   c.DataDir,
		Timeout:   time.Duration(c.ConvertTimeoutSec) * time.Second,
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: c.RedisAddr}, asynq.Config{
		Concurrency: c.Concurrency,
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TaskConvertNote, func(ctx context.Context, t *asynq.Task) error {
		var p jobs.ConvertNotePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		return handleConvertNote(ctx, bot, rdb, pipe, p)
	})

	log.Info().Int("concurrency", c.Concurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatal().Err(err).Msg("asynq server stopped")
	}
}

/* ---------------------- conversion ---------------------- */

func handleConvertNote(ctx context.Context, bot *tgbotapi.BotAPI, rdb *redis.Client, pipe *convert.Pipeline, p jobs.ConvertNotePayload) error {
	ctx = logx.WithRequestID(logx.WithUserID(ctx, p.UserID), p.RequestID)
	l := logx.FromCtx(ctx)

	out, cleanup, err := pipe.Process(ctx, convert.Request{
		RequestID:    p.RequestID,
		FileID:       p.FileID,
		OriginalName: p.FileName,
	})
	if err != nil {
		var f *convert.Failure
		if errors.As(err, &f) {
			// per-request failure: tell the user, log the detail, done
			l.Error().Str("kind", string(f.Kind)).Err(f.Err).Str("detail", f.Detail).Msg("conversion request failed")
			reply(bot, p, f.UserMessage())
			return nil
		}
		l.Error().Err(err).Msg("conversion request failed")
		reply(bot, p, "⚠️ Internal error. Try again later.")
		return err
	}
	// workdir lives until the upload finishes
	defer cleanup()

	note := tgbotapi.NewVideoNote(p.ChatID, 480, tgbotapi.FilePath(out))
	if _, err := bot.Send(note); err != nil {
		l.Error().Err(err).Msg("video note send failed")
		reply(bot, p, "⚠️ Conversion finished but the upload failed. Try again.")
		return err
	}

	chargeDaily(ctx, rdb, p.UserID)
	l.Info().Msg("video note delivered")
	return nil
}

func reply(bot *tgbotapi.BotAPI, p jobs.ConvertNotePayload, text string) {
	msg := tgbotapi.NewMessage(p.ChatID, text)
	msg.ReplyToMessageID = p.MessageID
	_, _ = bot.Send(msg)
}

/* ---------------------- daily quota ---------------------- */

func keyQuota(user int64, ymd string) string {
	return fmt.Sprintf("quota:%d:%s", user, ymd)
}

func today() string { return time.Now().Format("20060102") }

func untilMidnight() time.Duration {
	now := time.Now()
	tom := now.Add(24 * time.Hour)
	mid := time.Date(tom.Year(), tom.Month(), tom.Day(), 0, 0, 0, 0, now.Location())
	return time.Until(mid)
}

func chargeDaily(ctx context.Context, rdb *redis.Client, user int64) {
	key := keyQuota(user, today())
	if err := rdb.Incr(ctx, key).Err(); err != nil {
		log := logx.FromCtx(ctx)
		log.Warn().Err(err).Msg("quota charge failed")
		return
	}
	_ = rdb.Expire(ctx, key, untilMidnight()).Err()
}
