package matcher

import (
	"errors"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/bowerhall/kindly/internal/knowledge"
	"github.com/bowerhall/kindly/internal/logger"
	"github.com/bowerhall/kindly/internal/similarity"
)

// Engine picks a reply for a message: greeting short-circuit, then similarity
// search, then fallback. It holds no per-conversation state.
type Engine struct {
	opts     Options
	triggers [][]string
	state    atomic.Pointer[state]
}

func New(kb *knowledge.KnowledgeBase, opts Options) *Engine {
	if opts.Picker == nil {
		opts.Picker = knowledge.First()
	}
	if opts.GreetingTriggers == nil {
		opts.GreetingTriggers = DefaultGreetingTriggers
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	if !slices.Contains(opts.Languages, opts.DefaultLanguage) {
		opts.Languages = append(slices.Clone(opts.Languages), opts.DefaultLanguage)
	}

	e := &Engine{opts: opts}
	for _, trigger := range opts.GreetingTriggers {
		if tokens := similarity.Tokenize(trigger); len(tokens) > 0 {
			e.triggers = append(e.triggers, tokens)
		}
	}

	e.Reload(kb)
	return e
}

// Reload rebuilds the per-language indexes from kb and swaps them in. Queries
// already running keep using the previous state.
func (e *Engine) Reload(kb *knowledge.KnowledgeBase) {
	next := &state{kb: kb, indexes: make(map[string]*similarity.Index, len(e.opts.Languages))}

	for _, lang := range e.opts.Languages {
		idx := similarity.Build(knowledge.TrainingPairs(kb, lang, e.opts.Picker))
		next.indexes[lang] = idx

		logger.Info("similarity index built", "language", lang, "pairs", idx.Len(), "features", idx.VocabularySize())
	}

	e.state.Store(next)
}

// Respond always returns a reply; it never fails.
func (e *Engine) Respond(message, lang string) string {
	return e.Match(message, lang).Reply
}

// Match is Respond with the confidence and source of the reply.
func (e *Engine) Match(message, lang string) (res Result) {
	lang = e.language(lang)
	st := e.state.Load()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("matching panicked", "panic", r, "language", lang)
			res = Result{Reply: DefaultFallback, Source: SourceFallback}
			if replies := st.kb.FallbackReplies(lang); len(replies) > 0 {
				res.Reply = replies[0]
			}
		}
	}()

	if strings.TrimSpace(message) == "" {
		return e.fallback(st, lang, 0)
	}

	tokens := similarity.Tokenize(message)
	if e.isGreeting(tokens) {
		return Result{Reply: e.pick(st.kb.GreetingReplies(lang), DefaultGreeting), Confidence: 1, Source: SourceGreeting}
	}

	m, err := st.indexes[lang].Query(message)
	if errors.Is(err, similarity.ErrNoTrainingData) {
		logger.Debug("no training data, using fallback", "language", lang)
		return e.fallback(st, lang, 0)
	}

	// a zero score means no feature of the message is in the vocabulary
	if m.Score == 0 || m.Score < e.opts.Threshold {
		logger.Info("low confidence, using fallback", "confidence", m.Score, "threshold", e.opts.Threshold, "language", lang)
		return e.fallback(st, lang, m.Score)
	}

	logger.Debug("matched", "dialogue", m.DialogueID, "sample", m.Text, "confidence", m.Score)
	return Result{Reply: m.Reply, Confidence: m.Score, Source: SourceMatch, DialogueID: m.DialogueID}
}

// Greeting picks a greeting reply for lang.
func (e *Engine) Greeting(lang string) string {
	return e.pick(e.state.Load().kb.GreetingReplies(e.language(lang)), DefaultGreeting)
}

func (e *Engine) fallback(st *state, lang string, score float64) Result {
	var replies []string
	if st != nil {
		replies = st.kb.FallbackReplies(lang)
	}
	return Result{Reply: e.pick(replies, DefaultFallback), Confidence: score, Source: SourceFallback}
}

func (e *Engine) pick(replies []string, def string) string {
	if len(replies) == 0 {
		return def
	}
	return e.opts.Picker.Pick(replies)
}

// isGreeting reports whether any trigger appears as a whole-token sequence.
func (e *Engine) isGreeting(tokens []string) bool {
	for _, trigger := range e.triggers {
		for i := 0; i+len(trigger) <= len(tokens); i++ {
			if slices.Equal(tokens[i:i+len(trigger)], trigger) {
				return true
			}
		}
	}
	return false
}

// language maps unsupported codes to the default language.
func (e *Engine) language(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if slices.Contains(e.opts.Languages, lang) {
		return lang
	}
	if lang != "" {
		logger.Warn("unsupported language, using default", "language", lang, "default", e.opts.DefaultLanguage)
	}
	return e.opts.DefaultLanguage
}
