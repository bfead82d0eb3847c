package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/bowerhall/kindly/internal/knowledge"
	"github.com/bowerhall/kindly/internal/matcher"
)

const defaultCorpus = "../../data/kindly-bot.yaml"

func loadEngine(t *testing.T) (*knowledge.KnowledgeBase, *matcher.Engine) {
	t.Helper()

	kb, err := knowledge.Load(context.Background(), defaultCorpus, knowledge.Options{Languages: []string{"en", "nb"}})
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}

	return kb, matcher.New(kb, matcher.Options{Languages: []string{"en", "nb"}, DefaultLanguage: "en"})
}

func TestDefaultCorpusSamplesMatchTheirDialogue(t *testing.T) {
	kb, engine := loadEngine(t)

	if len(kb.Dialogues) == 0 {
		t.Fatal("default corpus has no dialogues")
	}

	for _, d := range kb.Dialogues {
		for lang, samples := range d.Samples {
			for _, sample := range samples {
				res := engine.Match(sample, lang)
				if res.Source != matcher.SourceMatch || res.DialogueID != d.ID {
					t.Errorf("%s %q: got source=%s dialogue=%s", lang, sample, res.Source, res.DialogueID)
				}
			}
		}
	}
}

func TestDefaultCorpusHasRepliesForEveryLanguage(t *testing.T) {
	kb, _ := loadEngine(t)

	for _, lang := range []string{"en", "nb"} {
		if len(kb.GreetingReplies(lang)) == 0 {
			t.Errorf("no greeting for %s", lang)
		}
		if len(kb.FallbackReplies(lang)) == 0 {
			t.Errorf("no fallback for %s", lang)
		}
	}
}

func TestAskLines(t *testing.T) {
	_, engine := loadEngine(t)

	in := strings.NewReader("hello\n\nTell me a joke\nzzzz qqqq\n")
	var out bytes.Buffer

	if err := askLines(in, &out, engine, "en"); err != nil {
		t.Fatalf("askLines: %v", err)
	}

	got := out.String()
	for _, want := range []string{"source=greeting", "source=match dialogue=joke", "source=fallback"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
