package knowledge

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bowerhall/kindly/internal/logger"
)

const (
	PolicyFirst  = "first"
	PolicyRandom = "random"
)

// Picker chooses one reply from a non-empty candidate list.
type Picker interface {
	Pick(candidates []string) string
}

type firstPicker struct{}

func (firstPicker) Pick(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}

type randomPicker struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (p *randomPicker) Pick(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	p.mu.Lock()
	i := p.rnd.Intn(len(candidates))
	p.mu.Unlock()

	return candidates[i]
}

// First always returns the first candidate.
func First() Picker {
	return firstPicker{}
}

// Random picks uniformly using rnd. Safe for concurrent use.
func Random(rnd *rand.Rand) Picker {
	return &randomPicker{rnd: rnd}
}

// NewPicker builds the picker for a reply policy. A zero seed is replaced by
// the current time.
func NewPicker(policy string, seed int64) (Picker, error) {
	switch policy {
	case "", PolicyFirst:
		return First(), nil
	case PolicyRandom:
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return Random(rand.New(rand.NewSource(seed))), nil
	default:
		return nil, fmt.Errorf("unknown reply policy: %s", policy)
	}
}

// TrainingPairs flattens the dialogues into one pair per sample utterance for
// lang. The reply for each pair is chosen once, here.
func TrainingPairs(kb *KnowledgeBase, lang string, picker Picker) []TrainingPair {
	if kb == nil {
		return nil
	}

	var pairs []TrainingPair
	for _, d := range kb.Dialogues {
		replies := d.Replies[lang]
		if len(replies) == 0 {
			logger.Debug("dialogue has no replies for language", "id", d.ID, "language", lang)
			continue
		}

		for _, sample := range d.Samples[lang] {
			pairs = append(pairs, TrainingPair{
				Utterance:  sample,
				Reply:      picker.Pick(replies),
				DialogueID: d.ID,
			})
		}
	}

	return pairs
}

// GreetingReplies returns the first greeting entry's replies for lang.
func (kb *KnowledgeBase) GreetingReplies(lang string) []string {
	if kb == nil {
		return nil
	}
	return firstReplies(kb.Greetings, lang)
}

// FallbackReplies returns the first fallback entry's replies for lang.
func (kb *KnowledgeBase) FallbackReplies(lang string) []string {
	if kb == nil {
		return nil
	}
	return firstReplies(kb.Fallbacks, lang)
}

func firstReplies(entries []Entry, lang string) []string {
	if len(entries) == 0 {
		return nil
	}
	return entries[0].Replies[lang]
}
