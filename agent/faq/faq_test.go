package faq

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultKnowledgeBaseLookup(t *testing.T) {
	t.Parallel()
	kb, err := Default()
	require.NoError(t, err)

	cases := map[string]string{
		"What are your opening hours?":            "hours",
		"where are you located?":                  "location",
		"Do you take my insurance plan?":          "insurance",
		"what's your cancellation policy":         "cancellation-policy",
		"I have a terrible toothache":             "emergency",
		"Do you see kids?":                        "children",
		"what should I bring on my first visit?":  "first-visit",
		"how much does a cleaning cost":           "payment",
	}
	for q, want := range cases {
		e, ok := kb.Lookup(q)
		require.True(t, ok, q)
		require.Equal(t, want, e.ID, q)
	}

	_, ok := kb.Lookup("tell me a joke about penguins")
	require.False(t, ok)
}

func TestAnswerWithoutMatch(t *testing.T) {
	t.Parallel()
	kb, err := Default()
	require.NoError(t, err)

	ans, err := kb.Answer(context.Background(), "what is the capital of peru")
	require.NoError(t, err)
	require.False(t, ans.Matched)
	require.Equal(t, NoAnswer, ans.Text)
}

type stubFallback struct {
	text string
	err  error
	seen int
}

func (s *stubFallback) Answer(_ context.Context, _ string, entries []Entry) (string, error) {
	s.seen = len(entries)
	return s.text, s.err
}

func TestAnswerUsesFallback(t *testing.T) {
	t.Parallel()
	fb := &stubFallback{text: "We have wifi in the waiting room."}
	kb, err := Default(WithFallback(fb))
	require.NoError(t, err)

	ans, err := kb.Answer(context.Background(), "is there wifi?")
	require.NoError(t, err)
	require.Equal(t, "We have wifi in the waiting room.", ans.Text)
	require.Equal(t, "model", ans.Source)
	require.NotZero(t, fb.seen)

	matched, err := kb.Answer(context.Background(), "when do you open?")
	require.NoError(t, err)
	require.True(t, matched.Matched)
	require.Equal(t, "hours", matched.Source)
}

func TestAnswerFallbackFailureDegrades(t *testing.T) {
	t.Parallel()
	kb, err := Default(WithFallback(&stubFallback{err: errors.New("model down")}))
	require.NoError(t, err)

	ans, err := kb.Answer(context.Background(), "is there wifi?")
	require.NoError(t, err)
	require.Equal(t, NoAnswer, ans.Text)
}

func TestParseValidation(t *testing.T) {
	t.Parallel()
	_, err := Parse(strings.NewReader("entries: []"))
	require.ErrorIs(t, err, ErrEmptyKnowledgeBase)

	_, err = Parse(strings.NewReader("entries:\n  - id: x\n    answer: hi\n"))
	require.Error(t, err)
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.yaml")
	write := func(answer string) {
		doc := "entries:\n  - id: parking\n    keywords: [parking]\n    answer: " + answer + "\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	}
	write("Parking is free.")

	kb, err := LoadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, kb) }()

	// give the watcher time to register before the write
	time.Sleep(100 * time.Millisecond)
	write("Parking costs 2 per hour.")

	require.Eventually(t, func() bool {
		e, ok := kb.Lookup("parking?")
		return ok && e.Answer == "Parking costs 2 per hour."
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
