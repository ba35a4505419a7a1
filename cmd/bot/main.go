package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/wapuda/videonote_bot/internal/access"
	"github.com/wapuda/videonote_bot/internal/convert"
	"github.com/wapuda/videonote_bot/internal/jobs"
	"github.com/wapuda/videonote_bot/internal/logx"
)

type cfg struct {
	RedisAddr string
	DataDir   string
	DailyMax  int
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func loadCfg() cfg {
	return cfg{
		RedisAddr: env("REDIS_ADDR", "localhost:6379"),
		DataDir:   env("DATA_DIR", "data"),
		DailyMax:  mustEnvInt("DAILY_MAX", 200),
	}
}

var rctx = context.Background()

type server struct {
	cfg   cfg
	bot   *tgbotapi.BotAPI
	rdb   *redis.Client
	asynq *asynq.Client

	gate *access.Gate
	cmds *access.Commands
}

func main() {
	_ = godotenv.Load()
	c := loadCfg()

	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}

	// health endpoint
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
		log.Info().Msg("bot health on :8080/health")
		log.Error().Err(http.ListenAndServe(":8080", nil)).Msg("health server stopped")
	}()

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth failed")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	store := access.NewStore(
		filepath.Join(c.DataDir, "access.json"),
		os.Getenv("BOT_SUPER_ADMINS"),
		os.Getenv("BOT_ADMINS"),
	)

	s := &server{
		cfg:   c,
		bot:   bot,
		rdb:   redis.NewClient(&redis.Options{Addr: c.RedisAddr}),
		asynq: asynq.NewClient(asynq.RedisClientOpt{Addr: c.RedisAddr}),
		gate:  &access.Gate{Store: store},
		cmds:  &access.Commands{Store: store},
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for upd := range updates {
		if upd.Message != nil {
			s.onMessage(upd.Message)
		}
	}
}

/* ---------------------- handlers ---------------------- */

const (
	btnConvert = "🎥 Convert video"
	btnHelp    = "ℹ️ Help"
)

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnConvert)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnHelp)),
	)
	kb.ResizeKeyboard = true
	return kb
}

func identityOf(m *tgbotapi.Message) access.Identity {
	return access.Identity{ID: m.From.ID, Username: m.From.UserName}
}

func (s *server) reply(chatID int64) access.ReplyFunc {
	return func(text string) {
		_, _ = s.bot.Send(tgbotapi.NewMessage(chatID, text))
	}
}

func (s *server) replyWithKeyboard(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainKeyboard()
	_, _ = s.bot.Send(msg)
}

func (s *server) onMessage(m *tgbotapi.Message) {
	log.Info().
		Int64("chat_id", m.Chat.ID).
		Int64("user_id", m.From.ID).
		Msg("message received")

	who := identityOf(m)
	reply := s.reply(m.Chat.ID)

	if m.IsCommand() {
		s.onCommand(m, who, reply)
		return
	}

	switch m.Text {
	case btnConvert:
		if _, ok := s.gate.RequireAdmin(who, reply); ok {
			s.replyWithKeyboard(m.Chat.ID, "Waiting for a video or a forwarded video.")
		}
		return
	case btnHelp:
		s.replyWithKeyboard(m.Chat.ID, "Send a video and I will return it as a Telegram video note.\nAccess is role-based (admin / super-admin).")
		return
	}

	if fileID, name, ok := extractVideo(m); ok {
		s.onVideo(m, who, fileID, name, reply)
	}
	// other message kinds are ignored
}

func (s *server) onCommand(m *tgbotapi.Message, who access.Identity, reply access.ReplyFunc) {
	args := m.CommandArguments()
	switch m.Command() {
	case "start", "help":
		s.replyWithKeyboard(m.Chat.ID,
			"Send a video and I will turn it into a Telegram video note.\n\n"+
				"Roles:\n"+
				"• Super-admin — commands and conversion\n"+
				"• Admin — conversion only\n"+
				"• Everyone else — no access")
	case "whoami":
		s.cmds.WhoAmI(who, reply)
	case "grant_admin":
		if _, ok := s.gate.RequireSuper(who, reply); ok {
			s.cmds.Grant(access.TierAdmins, args, reply)
		}
	case "revoke_admin":
		if _, ok := s.gate.RequireSuper(who, reply); ok {
			s.cmds.Revoke(access.TierAdmins, args, reply)
		}
	case "grant_super":
		if _, ok := s.gate.RequireSuper(who, reply); ok {
			s.cmds.Grant(access.TierSuper, args, reply)
		}
	case "revoke_super":
		if _, ok := s.gate.RequireSuper(who, reply); ok {
			s.cmds.Revoke(access.TierSuper, args, reply)
		}
	case "list_roles":
		if _, ok := s.gate.RequireSuper(who, reply); ok {
			s.cmds.List(reply)
		}
	default:
		reply("Unknown command. Send a video to convert it.")
	}
}

func (s *server) onVideo(m *tgbotapi.Message, who access.Identity, fileID, name string, reply access.ReplyFunc) {
	if _, ok := s.gate.RequireAdmin(who, reply); !ok {
		return
	}
	if rem := s.remainingToday(who.ID); rem <= 0 {
		reply(fmt.Sprintf("❌ Daily limit of %d conversions reached. Try again tomorrow.", s.cfg.DailyMax))
		return
	}

	_, _ = s.bot.Request(tgbotapi.NewChatAction(m.Chat.ID, tgbotapi.ChatUploadVideoNote))

	rid := convert.NewRequestID()
	payload := jobs.ConvertNotePayload{
		RequestID: rid,
		ChatID:    m.Chat.ID,
		UserID:    who.ID,
		MessageID: m.MessageID,
		FileID:    fileID,
		FileName:  name,
	}
	b, _ := json.Marshal(payload)
	if _, err := s.asynq.EnqueueContext(rctx, asynq.NewTask(jobs.TaskConvertNote, b), asynq.MaxRetry(0)); err != nil {
		log.Error().Err(err).Str("rid", rid).Msg("asynq enqueue note:convert failed")
		reply("Queue error: " + err.Error())
		return
	}
	log.Info().Str("rid", rid).Int64("user_id", who.ID).Msg("conversion queued")
}

/* ---------------------- media helpers ---------------------- */

func extractVideo(m *tgbotapi.Message) (fileID, name string, ok bool) {
	switch {
	case m.Video != nil:
		return m.Video.FileID, m.Video.FileName, true
	case m.Animation != nil:
		return m.Animation.FileID, m.Animation.FileName, true
	case m.Document != nil && strings.HasPrefix(strings.ToLower(m.Document.MimeType), "video/"):
		return m.Document.FileID, m.Document.FileName, true
	}
	return "", "", false
}

/* ---------------------- daily quota (Redis) ---------------------- */

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

// Remaining conversions today (not authoritative—final charge done by worker)
func (s *server) remainingToday(user int64) int {
	key := keyQuota(user, today())
	used, _ := s.rdb.Get(rctx, key).Int()
	if used < 0 {
		used = 0
	}
	rem := s.cfg.DailyMax - used
	if rem < 0 {
		rem = 0
	}
	_ = s.rdb.Expire(rctx, key, untilMidnight()).Err()
	return rem
}
