package matcher

import (
	"github.com/bowerhall/kindly/internal/knowledge"
	"github.com/bowerhall/kindly/internal/similarity"
)

// Reply sources reported in Result.Source.
const (
	SourceGreeting = "greeting"
	SourceMatch    = "match"
	SourceFallback = "fallback"
)

const (
	DefaultGreeting = "Hello! How can I assist you today?"
	DefaultFallback = "I'm sorry, I didn't understand that."

	DefaultThreshold = 0.3
)

// DefaultGreetingTriggers covers the greeting words of the supported languages.
var DefaultGreetingTriggers = []string{"hello", "hi", "hey", "hola", "hei", "hallo"}

type Options struct {
	Languages       []string
	DefaultLanguage string
	// Threshold is inclusive: a best score equal to it is accepted. Zero
	// selects DefaultThreshold.
	Threshold        float64
	Picker           knowledge.Picker
	GreetingTriggers []string
}

// Result is a reply together with how it was chosen.
type Result struct {
	Reply      string
	Confidence float64
	Source     string
	DialogueID string
}

// state is swapped as a whole on Reload.
type state struct {
	kb      *knowledge.KnowledgeBase
	indexes map[string]*similarity.Index
}
