// Package conversation drives the per-user menu state machine.
package conversation

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/m3rciful/synobot/core/kb"
	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/session"
	"github.com/m3rciful/synobot/core/textnorm"
)

// Category tags attached to turns besides real category keys.
const (
	CategoryMainMenu = "main_menu"
	CategoryError    = "error"
)

// DefaultBotName is shown in the main menu greeting.
const DefaultBotName = "ИнструкторБот"

var (
	// DefaultResetKeywords return the user to the main menu from any state.
	DefaultResetKeywords = []string{"меню", "menu", "начать", "старт", "start"}
	// DefaultBackKeywords move one level up.
	DefaultBackKeywords = []string{"назад", "back"}
)

// Result is the reply to one message.
type Result struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// KnowledgeSource yields the knowledge base snapshot to answer from.
type KnowledgeSource interface {
	Current() *kb.Base
}

// TurnSink receives a record of every processed turn. It must not block.
type TurnSink interface {
	Record(ctx context.Context, t Turn)
}

// Turn is what the statistics journal stores about one message.
type Turn struct {
	UserID   string
	Username string
	Question string
	Category string
	Response string
}

// Engine interprets user input against the session state and the knowledge base.
type Engine struct {
	source   KnowledgeSource
	sessions *session.Store
	sink     TurnSink

	botName  string
	reset    textnorm.Set
	back     textnorm.Set
	menuWord string
	backWord string
}

// Option configures an Engine.
type Option func(*Engine)

// WithBotName sets the name shown in the main menu.
func WithBotName(name string) Option {
	return func(e *Engine) {
		if strings.TrimSpace(name) != "" {
			e.botName = name
		}
	}
}

// WithResetKeywords replaces the reset synonyms. The first one is shown in reminders.
func WithResetKeywords(words ...string) Option {
	return func(e *Engine) {
		if set := textnorm.Keywords(words...); len(set) > 0 {
			e.reset = set
			e.menuWord = firstNormalized(words)
		}
	}
}

// WithBackKeywords replaces the back synonyms. The first one is shown in reminders.
func WithBackKeywords(words ...string) Option {
	return func(e *Engine) {
		if set := textnorm.Keywords(words...); len(set) > 0 {
			e.back = set
			e.backWord = firstNormalized(words)
		}
	}
}

// WithTurnSink routes turn records to sink, typically a Journal.
func WithTurnSink(sink TurnSink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// New returns an engine answering from source and keeping state in sessions.
func New(source KnowledgeSource, sessions *session.Store, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		sessions: sessions,
		sink:     discardSink{},
		botName:  DefaultBotName,
	}
	WithResetKeywords(DefaultResetKeywords...)(e)
	WithBackKeywords(DefaultBackKeywords...)(e)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process handles one inbound message and never fails: every input yields a reply.
func (e *Engine) Process(ctx context.Context, text, userID, username string) Result {
	start := time.Now()
	base := e.source.Current()
	if base.Len() == 0 {
		base = kb.Fallback()
	}
	normalized := textnorm.Normalize(text)
	now := e.sessions.Now()

	var (
		res    Result
		before session.State
		after  session.State
	)
	e.sessions.Do(userID, func(s *session.Session) {
		before = s.State
		s.Touch(now)
		res = e.step(base, s, text, normalized, now)
		after = s.State
	})

	logger.CONV.LogAttrs(ctx, slog.LevelDebug, "conversation.turn",
		slog.String("status", "ok"),
		slog.String("user_id", userID),
		slog.String("state_before", string(before)),
		slog.String("state", string(after)),
		slog.String("category", res.Category),
		slog.Duration("duration", logger.Took(start)),
	)

	if userID != "" && username != "" {
		e.sink.Record(ctx, Turn{
			UserID:   userID,
			Username: username,
			Question: text,
			Category: res.Category,
			Response: res.Text,
		})
	}
	return res
}

func (e *Engine) step(base *kb.Base, s *session.Session, raw, normalized string, now time.Time) Result {
	if e.reset.Has(normalized) {
		s.Reset(now)
		return e.mainMenu(base)
	}

	cat := e.resolve(base, s, now)

	if e.back.Has(normalized) {
		if s.State == session.QuestionSelected {
			s.BackToCategory()
			return Result{Text: kb.CategoryMenu(cat, e.backWord), Category: cat.Key}
		}
		s.Reset(now)
		return e.mainMenu(base)
	}

	switch s.State {
	case session.MainMenu:
		n, numeric := parseSelection(raw, normalized)
		if c, ok := base.At(n); numeric && ok {
			s.SelectCategory(c.Key)
			return Result{Text: kb.CategoryMenu(c, e.backWord), Category: c.Key}
		}
		view := kb.MainMenu(base, e.botName)
		return Result{Text: notice(numeric, base.Len(), view), Category: CategoryError}

	case session.CategorySelected:
		n, numeric := parseSelection(raw, normalized)
		if qa, ok := cat.Question(n - 1); numeric && ok {
			s.SelectQuestion(n - 1)
			return Result{Text: kb.AnswerView(qa, e.backWord, e.menuWord), Category: cat.Key}
		}
		view := kb.CategoryMenu(cat, e.backWord)
		return Result{Text: notice(numeric, cat.QuestionCount(), view), Category: CategoryError}

	case session.QuestionSelected:
		qa, _ := cat.Question(s.SelectedQuestion)
		return Result{Text: kb.UnknownCommand(kb.AnswerView(qa, e.backWord, e.menuWord)), Category: cat.Key}

	default:
		s.Reset(now)
		return e.mainMenu(base)
	}
}

// resolve maps the session selection onto the current snapshot. A category
// that vanished on reload resets the session; a vanished question falls back
// to the category's question list.
func (e *Engine) resolve(base *kb.Base, s *session.Session, now time.Time) *kb.Category {
	if s.State != session.CategorySelected && s.State != session.QuestionSelected {
		return nil
	}
	cat, ok := base.Lookup(s.SelectedCategory)
	if !ok {
		s.Reset(now)
		return nil
	}
	if s.State == session.QuestionSelected {
		if _, ok := cat.Question(s.SelectedQuestion); !ok {
			s.BackToCategory()
		}
	}
	return cat
}

func (e *Engine) mainMenu(base *kb.Base) Result {
	return Result{Text: kb.MainMenu(base, e.botName), Category: CategoryMainMenu}
}

func notice(numeric bool, max int, view string) string {
	if numeric {
		return kb.InvalidChoice(view)
	}
	return kb.ExpectNumber(max, view)
}

// parseSelection reads a menu number. Only ASCII digits count; a leading minus
// in the raw text makes the value negative. Values too large for int are
// numeric but out of every range.
func parseSelection(raw, normalized string) (int, bool) {
	if normalized == "" {
		return 0, false
	}
	n := 0
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return 0, false
		}
		d := int(r - '0')
		if n > (math.MaxInt-d)/10 {
			return math.MaxInt, true
		}
		n = n*10 + d
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "-") {
		return -n, true
	}
	return n, true
}

func firstNormalized(words []string) string {
	for _, w := range words {
		if n := textnorm.Normalize(w); n != "" {
			return n
		}
	}
	return ""
}

type discardSink struct{}

func (discardSink) Record(context.Context, Turn) {}
