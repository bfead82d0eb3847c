package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bowerhall/kindly/internal/logger"
)

const objectScheme = "s3://"

const defaultDialogueType = "dialogue"

// ErrDataLoad is returned when the corpus source is unreadable or is not a
// structured document. It is fatal at startup.
var ErrDataLoad = errors.New("knowledge base could not be loaded")

type rawNode = yaml.Node

// ObjectStore fetches corpus documents from an S3-compatible bucket.
type ObjectStore interface {
	Download(ctx context.Context, bucket, name string) ([]byte, error)
}

type Options struct {
	// Languages restricts reply and sample sets to these codes. Empty keeps all.
	Languages []string
	Objects   ObjectStore
}

// Load reads and parses the corpus at source, which is a file path or an
// s3://bucket/object URL.
func Load(ctx context.Context, source string, opts Options) (*KnowledgeBase, error) {
	data, err := readSource(ctx, source, opts.Objects)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataLoad, err)
	}

	kb, err := Parse(data, opts.Languages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	logger.Info("knowledge base loaded",
		"source", source,
		"greetings", len(kb.Greetings),
		"fallbacks", len(kb.Fallbacks),
		"dialogues", len(kb.Dialogues))

	return kb, nil
}

// Parse decodes a YAML or JSON corpus. Malformed entries are dropped with a
// warning; only a document that is not a mapping at all is an error.
func Parse(data []byte, languages []string) (*KnowledgeBase, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataLoad, err)
	}

	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: document root must be a mapping", ErrDataLoad)
	}

	var doc document
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataLoad, err)
	}

	kb := &KnowledgeBase{
		Greetings: parseEntries("greetings", doc.Greetings, languages),
		Fallbacks: parseEntries("fallbacks", doc.Fallbacks, languages),
		Dialogues: parseDialogues(doc.Dialogues, languages),
	}

	if len(kb.Dialogues) == 0 {
		logger.Warn("knowledge base has no dialogues, matching will use fallbacks only")
	}

	return kb, nil
}

func readSource(ctx context.Context, source string, objects ObjectStore) ([]byte, error) {
	if !strings.HasPrefix(source, objectScheme) {
		return os.ReadFile(source)
	}

	bucket, name, err := ParseObjectURL(source)
	if err != nil {
		return nil, err
	}

	if objects == nil {
		return nil, fmt.Errorf("source %s requires object storage credentials", source)
	}

	return objects.Download(ctx, bucket, name)
}

// ParseObjectURL splits s3://bucket/path/to/object into bucket and object name.
func ParseObjectURL(source string) (bucket, name string, err error) {
	rest, ok := strings.CutPrefix(source, objectScheme)
	if !ok {
		return "", "", fmt.Errorf("not an object url: %s", source)
	}

	bucket, name, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return "", "", fmt.Errorf("object url must look like s3://bucket/object: %s", source)
	}

	return bucket, name, nil
}

func parseEntries(section string, nodes []rawNode, languages []string) []Entry {
	entries := make([]Entry, 0, len(nodes))

	for i := range nodes {
		var raw rawEntry
		if err := nodes[i].Decode(&raw); err != nil {
			logger.Warn("skipping malformed entry", "section", section, "line", nodes[i].Line, "error", err)
			continue
		}

		id := strings.TrimSpace(raw.ID)
		if id == "" {
			logger.Warn("skipping entry without id", "section", section, "line", nodes[i].Line)
			continue
		}

		replies := cleanSets(raw.Replies, languages)
		if len(replies) == 0 {
			logger.Warn("skipping entry without replies", "section", section, "id", id)
			continue
		}

		entries = append(entries, Entry{ID: id, Replies: replies})
	}

	return entries
}

func parseDialogues(nodes []rawNode, languages []string) []Dialogue {
	dialogues := make([]Dialogue, 0, len(nodes))

	for i := range nodes {
		var raw rawDialogue
		if err := nodes[i].Decode(&raw); err != nil {
			logger.Warn("skipping malformed dialogue", "line", nodes[i].Line, "error", err)
			continue
		}

		id := strings.TrimSpace(raw.ID)
		if id == "" {
			logger.Warn("skipping dialogue without id", "line", nodes[i].Line)
			continue
		}

		replies := cleanSets(raw.Replies, languages)
		if len(replies) == 0 {
			logger.Warn("skipping dialogue without replies", "id", id)
			continue
		}

		kind := strings.TrimSpace(raw.Type)
		if kind == "" {
			kind = defaultDialogueType
		}

		dialogues = append(dialogues, Dialogue{
			ID:       id,
			Type:     kind,
			ParentID: strings.TrimSpace(raw.Parent),
			Keywords: cleanSets(raw.Keywords, languages),
			Samples:  cleanSets(raw.Samples, languages),
			Replies:  replies,
		})
	}

	return dialogues
}

// cleanSets lower-cases language keys, trims values and drops blanks,
// unsupported languages and empty lists.
func cleanSets(sets map[string][]string, languages []string) map[string][]string {
	out := make(map[string][]string, len(sets))

	for lang, values := range sets {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if len(languages) > 0 && !slices.Contains(languages, lang) {
			continue
		}

		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}

		if len(kept) > 0 {
			out[lang] = append(out[lang], kept...)
		}
	}

	return out
}
