// Package window derives a bounded prompt from a session: a selectable
// strategy decides which history survives the token budget.
package window

import (
	"time"

	"github.com/torvik-dev/parley/internal/session"
)

// Named assembly strategies.
const (
	StrategyDefault    = "default"
	StrategyRecentOnly = "recent_only"
	StrategyCompressed = "compressed"
	StrategyMinimal    = "minimal"
	StrategyNoSystem   = "no_system"
)

// Strategies lists every strategy name, for CLI flag validation.
var Strategies = []string{
	StrategyDefault,
	StrategyRecentOnly,
	StrategyCompressed,
	StrategyMinimal,
	StrategyNoSystem,
}

// One token is approximated as four characters of content.
const charsPerToken = 4

// Time windows used by the default and recent_only strategies.
const (
	defaultWindow    = 48 * time.Hour
	recentOnlyWindow = 6 * time.Hour
)

const minimalMessageCount = 5

// FallbackPreamble is used when no preamble is configured or assembly has
// to degrade.
const FallbackPreamble = "You are a helpful assistant."

// Meta summarizes an assembled prompt.
type Meta struct {
	EstimatedTokens   int
	MessageCount      int
	WindowUtilization float64
}

// Assembly is a prompt ready for the remote call: the mandatory system
// preamble plus the ordered messages that survived the strategy.
type Assembly struct {
	SystemPreamble string
	Messages       []session.Message
	Meta           Meta
}

// Assembler builds bounded prompts from sessions. The zero value is not
// usable; construct with New.
type Assembler struct {
	preamble    string
	tokenBudget int
	maxMessages int
	now         func() time.Time
	cache       *Cache
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithCache attaches an assembly cache.
func WithCache(c *Cache) Option {
	return func(a *Assembler) { a.cache = c }
}

// WithClock overrides the time source. Tests use this to pin the
// time-window strategies.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// New returns an Assembler with the given system preamble and budget.
// tokenBudget <= 0 disables budget trimming; maxMessages <= 0 disables the
// message-count cap.
func New(preamble string, tokenBudget, maxMessages int, opts ...Option) *Assembler {
	if preamble == "" {
		preamble = FallbackPreamble
	}
	a := &Assembler{
		preamble:    preamble,
		tokenBudget: tokenBudget,
		maxMessages: maxMessages,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble derives a bounded prompt from s using the named strategy.
// It never fails on a well-formed session: an unknown strategy or a broken
// derivation degrades to the fallback minimal preamble.
func (a *Assembler) Assemble(s session.Session, strategy string) (out Assembly) {
	defer func() {
		if recover() != nil {
			out = Assembly{SystemPreamble: FallbackPreamble}
		}
	}()

	if a.cache != nil {
		if cached, ok := a.cache.Get(Key(s, strategy)); ok {
			return cached
		}
	}

	msgs := a.apply(s.Messages, strategy)
	out = a.finish(msgs)

	if a.cache != nil {
		a.cache.Put(Key(s, strategy), out)
	}
	return out
}

func (a *Assembler) apply(msgs []session.Message, strategy string) []session.Message {
	switch strategy {
	case StrategyDefault, "":
		msgs = Compress(msgs)
		msgs = since(msgs, a.now().Add(-defaultWindow))
		msgs = trimToBudget(msgs, a.tokenBudget*charsPerToken)
	case StrategyRecentOnly:
		windowed := since(msgs, a.now().Add(-recentOnlyWindow))
		if len(windowed) == 0 && len(msgs) > 0 {
			// Never hand the model an empty history: keep the newest
			// message so the user's input always survives.
			windowed = msgs[len(msgs)-1:]
		}
		msgs = windowed
	case StrategyCompressed:
		msgs = Compress(msgs)
	case StrategyMinimal:
		msgs = stripSystem(msgs)
		if len(msgs) > minimalMessageCount {
			msgs = msgs[len(msgs)-minimalMessageCount:]
		}
	case StrategyNoSystem:
		msgs = stripSystem(msgs)
	default:
		panic("window: unknown strategy " + strategy)
	}

	if a.maxMessages > 0 && len(msgs) > a.maxMessages {
		msgs = msgs[len(msgs)-a.maxMessages:]
	}
	return msgs
}

func (a *Assembler) finish(msgs []session.Message) Assembly {
	chars := 0
	for _, m := range msgs {
		chars += len(m.Content)
	}
	tokens := (chars + charsPerToken - 1) / charsPerToken

	utilization := 0.0
	if a.tokenBudget > 0 {
		utilization = float64(tokens) / float64(a.tokenBudget)
	}

	out := make([]session.Message, len(msgs))
	copy(out, msgs)

	return Assembly{
		SystemPreamble: a.preamble,
		Messages:       out,
		Meta: Meta{
			EstimatedTokens:   tokens,
			MessageCount:      len(out),
			WindowUtilization: utilization,
		},
	}
}

// since keeps messages created at or after cutoff.
func since(msgs []session.Message, cutoff time.Time) []session.Message {
	// Messages are ordered, so find the first survivor and slice.
	for i, m := range msgs {
		if !m.CreatedAt.Before(cutoff) {
			return msgs[i:]
		}
	}
	return nil
}

func stripSystem(msgs []session.Message) []session.Message {
	out := make([]session.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != session.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// trimToBudget walks newest to oldest, accumulating content length, and
// stops including messages once the running total would exceed budget
// characters. The system preamble is mandatory and never counted here.
func trimToBudget(msgs []session.Message, budget int) []session.Message {
	if budget <= 0 {
		return msgs
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		total += len(msgs[i].Content)
		if total > budget {
			break
		}
		start = i
	}
	return msgs[start:]
}
