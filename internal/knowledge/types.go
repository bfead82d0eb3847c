package knowledge

// Replies maps a language code to its candidate replies.
type Replies map[string][]string

// Entry is a greeting or fallback pool.
type Entry struct {
	ID      string
	Replies Replies
}

// Dialogue is one intent: sample utterances that should produce one of its replies.
type Dialogue struct {
	ID       string
	Type     string
	ParentID string
	Keywords map[string][]string
	Samples  map[string][]string
	Replies  Replies
}

// KnowledgeBase is the parsed corpus. It is never mutated after Load returns.
type KnowledgeBase struct {
	Greetings []Entry
	Fallbacks []Entry
	Dialogues []Dialogue
}

// TrainingPair associates one sample utterance with the reply it should produce.
type TrainingPair struct {
	Utterance  string
	Reply      string
	DialogueID string
}

// document is the on-disk layout. Sections are kept as raw nodes so a single
// malformed entry can be skipped without rejecting the whole corpus.
type document struct {
	Greetings []rawNode `yaml:"greetings"`
	Fallbacks []rawNode `yaml:"fallbacks"`
	Dialogues []rawNode `yaml:"dialogues"`
}

type rawEntry struct {
	ID      string              `yaml:"id"`
	Replies map[string][]string `yaml:"replies"`
}

type rawDialogue struct {
	ID       string              `yaml:"id"`
	Type     string              `yaml:"type"`
	Parent   string              `yaml:"parent"`
	Keywords map[string][]string `yaml:"keywords"`
	Samples  map[string][]string `yaml:"samples"`
	Replies  map[string][]string `yaml:"replies"`
}
