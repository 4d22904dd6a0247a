// Package monitor captures expert answers from a Telegram group chat as QA
// pairs. When the configured expert replies to a question, the question and
// reply are cleaned, deduplicated, and stored alongside call-extracted pairs.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/qaforge/qaforge/internal/config"
	"github.com/qaforge/qaforge/internal/extraction"
	"github.com/qaforge/qaforge/internal/logging"
	"github.com/qaforge/qaforge/internal/store"
)

// Length thresholds below which a captured Q/A is discarded as noise.
const (
	minQuestionLength = 10
	minAnswerLength   = 15
)

// chatDirection labels chat-sourced pairs in place of a call direction.
const chatDirection = "TG Чат экспертов"

// statsInterval is how often the running counters are logged.
const statsInterval = 5 * time.Minute

// Markdown markers stripped from chat messages before storage.
var (
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe    = regexp.MustCompile(`\*(.*?)\*`)
	underlineRe = regexp.MustCompile(`__(.*?)__`)
	inlineRe    = regexp.MustCompile("`(.*?)`")
	fenceRe     = regexp.MustCompile("(?s)```.*?```")
	spaceRe     = regexp.MustCompile(`\s+`)
)

// CleanChatText strips markdown formatting and collapses whitespace.
func CleanChatText(text string) string {
	text = fenceRe.ReplaceAllString(text, "")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = underlineRe.ReplaceAllString(text, "$1")
	text = inlineRe.ReplaceAllString(text, "$1")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// Stats holds running monitor counters.
type Stats struct {
	mu            sync.Mutex
	TotalMessages int
	ExpertReplies int
	PairsSaved    int
	Duplicates    int
	Errors        int
	StartedAt     time.Time
}

func (s *Stats) snapshot() (total, replies, saved, dup, errs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TotalMessages, s.ExpertReplies, s.PairsSaved, s.Duplicates, s.Errors
}

// Monitor is a long-polling Telegram listener.
type Monitor struct {
	store  *store.Store
	expert string
	stats  Stats
	bot    *bot.Bot
}

// New constructs a Monitor and its underlying bot.
func New(cfg config.TelegramConfig, st *store.Store) (*Monitor, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("monitor: TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.ExpertUsername == "" {
		return nil, fmt.Errorf("monitor: expert username is required")
	}
	m := &Monitor{
		store:  st,
		expert: cfg.ExpertUsername,
		stats:  Stats{StartedAt: time.Now()},
	}
	b, err := bot.New(cfg.BotToken, bot.WithDefaultHandler(m.handleUpdate))
	if err != nil {
		return nil, fmt.Errorf("monitor: failed to initialize bot: %w", err)
	}
	m.bot = b
	return m, nil
}

// Start runs the long-polling loop until ctx is cancelled, logging counters
// periodically.
func (m *Monitor) Start(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("chat monitor started", slog.String("expert", "@"+m.expert))

	go func() {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.logStats(log)
			}
		}
	}()

	m.bot.Start(ctx)
	m.logStats(log)
	log.Info("chat monitor stopped")
}

// handleUpdate dispatches incoming updates to the message processor.
func (m *Monitor) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	m.ProcessMessage(ctx, update.Message)
}

// ProcessMessage inspects one chat message and stores a QA pair when it is an
// expert reply to a question.
func (m *Monitor) ProcessMessage(ctx context.Context, msg *models.Message) {
	log := logging.FromContext(ctx)

	m.stats.mu.Lock()
	m.stats.TotalMessages++
	m.stats.mu.Unlock()

	if msg.From == nil || msg.From.Username != m.expert {
		return
	}

	m.stats.mu.Lock()
	m.stats.ExpertReplies++
	m.stats.mu.Unlock()

	if msg.ReplyToMessage == nil || msg.ReplyToMessage.Text == "" {
		log.Debug("expert message is not a reply, skipping")
		return
	}

	question := CleanChatText(msg.ReplyToMessage.Text)
	answer := CleanChatText(msg.Text)

	if utf8.RuneCountInString(question) < minQuestionLength {
		log.Debug("question too short, skipping", slog.Int("length", utf8.RuneCountInString(question)))
		return
	}
	if utf8.RuneCountInString(answer) < minAnswerLength {
		log.Debug("answer too short, skipping", slog.Int("length", utf8.RuneCountInString(answer)))
		return
	}

	questionDate := time.Unix(int64(msg.ReplyToMessage.Date), 0).UTC()
	if err := m.SavePair(ctx, question, answer, questionDate); err != nil {
		log.Error("failed to save chat pair", slog.Any("error", err))
		m.stats.mu.Lock()
		m.stats.Errors++
		m.stats.mu.Unlock()
	}
}

// SavePair stores a cleaned question/answer pair unless it is a duplicate.
func (m *Monitor) SavePair(ctx context.Context, question, answer string, questionDate time.Time) error {
	log := logging.FromContext(ctx)
	dialogID := extraction.ChatPairID(question, answer)

	exists, err := m.store.PairExists(ctx, dialogID)
	if err != nil {
		return fmt.Errorf("monitor: dedup check: %w", err)
	}
	if exists {
		log.Info("pair already stored, skipping", slog.String("dialog_id", dialogID[:16]))
		m.stats.mu.Lock()
		m.stats.Duplicates++
		m.stats.mu.Unlock()
		return nil
	}

	pair := store.Pair{
		DialogID:  dialogID,
		Filename:  fmt.Sprintf("tgchat_%s_%s", m.expert, questionDate.Format("20060102")),
		Source:    store.SourceTelegram,
		Question:  question,
		Answer:    answer,
		Direction: chatDirection,
		Keywords:  []string{},
	}
	if err := m.store.SavePairs(ctx, []store.Pair{pair}); err != nil {
		return fmt.Errorf("monitor: save pair: %w", err)
	}

	log.Info("saved new chat pair",
		slog.String("question", truncate(question, 80)),
		slog.String("answer", truncate(answer, 80)))
	m.stats.mu.Lock()
	m.stats.PairsSaved++
	m.stats.mu.Unlock()
	return nil
}

func (m *Monitor) logStats(log *slog.Logger) {
	total, replies, saved, dup, errs := m.stats.snapshot()
	log.Info("monitor statistics",
		slog.Duration("uptime", time.Since(m.stats.StartedAt).Round(time.Second)),
		slog.Int("total_messages", total),
		slog.Int("expert_replies", replies),
		slog.Int("pairs_saved", saved),
		slog.Int("duplicates_skipped", dup),
		slog.Int("errors", errs),
	)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
