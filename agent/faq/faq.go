package faq

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed faq.yaml
var defaultEntries []byte

// NoAnswer is returned when neither the knowledge base nor the fallback
// can answer.
const NoAnswer = "I'm not sure about that one. Please contact the front desk and they will be happy to help."

var ErrEmptyKnowledgeBase = errors.New("faq knowledge base has no entries")

type Entry struct {
	ID       string   `yaml:"id" json:"id"`
	Question string   `yaml:"question" json:"question"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Answer   string   `yaml:"answer" json:"answer"`
}

type Answer struct {
	Text    string `json:"text"`
	Source  string `json:"source,omitempty"`
	Matched bool   `json:"matched"`
}

// Fallback answers questions the knowledge base does not cover.
type Fallback interface {
	Answer(ctx context.Context, query string, entries []Entry) (string, error)
}

type KnowledgeBase struct {
	mu       sync.RWMutex
	entries  []Entry
	fallback Fallback
}

type Option func(*KnowledgeBase)

func WithFallback(f Fallback) Option {
	return func(kb *KnowledgeBase) {
		kb.fallback = f
	}
}

func NewKnowledgeBase(entries []Entry, opts ...Option) *KnowledgeBase {
	kb := &KnowledgeBase{entries: entries}
	for _, opt := range opts {
		if opt != nil {
			opt(kb)
		}
	}
	return kb
}

// Default loads the embedded clinic FAQ.
func Default(opts ...Option) (*KnowledgeBase, error) {
	entries, err := Parse(bytes.NewReader(defaultEntries))
	if err != nil {
		return nil, err
	}
	return NewKnowledgeBase(entries, opts...), nil
}

// LoadFile loads entries from path, or the embedded FAQ when path is empty.
func LoadFile(path string, opts ...Option) (*KnowledgeBase, error) {
	if strings.TrimSpace(path) == "" {
		return Default(opts...)
	}
	entries, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewKnowledgeBase(entries, opts...), nil
}

func Parse(r io.Reader) ([]Entry, error) {
	var doc struct {
		Entries []Entry `yaml:"entries"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode faq: %w", err)
	}
	if len(doc.Entries) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}
	for i, e := range doc.Entries {
		if strings.TrimSpace(e.Answer) == "" || len(e.Keywords) == 0 {
			return nil, fmt.Errorf("faq entry %d (%s) needs keywords and an answer", i, e.ID)
		}
	}
	return doc.Entries, nil
}

func readFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open faq: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Replace swaps the entries atomically.
func (kb *KnowledgeBase) Replace(entries []Entry) {
	kb.mu.Lock()
	kb.entries = entries
	kb.mu.Unlock()
}

func (kb *KnowledgeBase) Entries() []Entry {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]Entry, len(kb.entries))
	copy(out, kb.entries)
	return out
}

// Lookup returns the best keyword match for query. Multi-word keywords
// score double; ties keep file order.
func (kb *KnowledgeBase) Lookup(query string) (Entry, bool) {
	text := " " + normalize(query) + " "
	if strings.TrimSpace(text) == "" {
		return Entry{}, false
	}

	kb.mu.RLock()
	defer kb.mu.RUnlock()

	best, bestScore := -1, 0
	for i, e := range kb.entries {
		score := 0
		for _, kw := range e.Keywords {
			k := normalize(kw)
			if k == "" || !strings.Contains(text, " "+k+" ") {
				continue
			}
			if strings.Contains(k, " ") {
				score += 2
			} else {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return Entry{}, false
	}
	return kb.entries[best], true
}

// Answer matches query against the entries. An unmatched question gets the
// fallback's answer; a failing or missing fallback degrades to NoAnswer.
func (kb *KnowledgeBase) Answer(ctx context.Context, query string) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	if e, ok := kb.Lookup(query); ok {
		return Answer{Text: strings.TrimSpace(e.Answer), Source: e.ID, Matched: true}, nil
	}

	kb.mu.RLock()
	fallback := kb.fallback
	kb.mu.RUnlock()
	if fallback == nil {
		return Answer{Text: NoAnswer}, nil
	}

	text, err := fallback.Answer(ctx, query, kb.Entries())
	if err != nil {
		log.Warn().Err(err).Msg("faq fallback failed")
		return Answer{Text: NoAnswer}, nil
	}
	if strings.TrimSpace(text) == "" {
		return Answer{Text: NoAnswer}, nil
	}
	return Answer{Text: strings.TrimSpace(text), Source: "model"}, nil
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
