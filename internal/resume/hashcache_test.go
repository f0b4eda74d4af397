package resume

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchesFalseWhenNoHashRecorded(t *testing.T) {
	cache := newTestCache(t)
	input := writeInput(t, "content")

	matches, err := cache.Matches(context.Background(), "run-1", "ocr", []string{input})
	require.NoError(t, err)
	require.False(t, matches)
}

func TestRecordThenMatchesTrueUntilInputChanges(t *testing.T) {
	cache := newTestCache(t)
	input := writeInput(t, "content")

	require.NoError(t, cache.Record(context.Background(), "run-1", "ocr", []string{input}))
	matches, err := cache.Matches(context.Background(), "run-1", "ocr", []string{input})
	require.NoError(t, err)
	require.True(t, matches)

	require.NoError(t, os.WriteFile(input, []byte("different content"), 0o644))
	matches, err = cache.Matches(context.Background(), "run-1", "ocr", []string{input})
	require.NoError(t, err)
	require.False(t, matches)
}

func TestForgetRemovesRecordedHash(t *testing.T) {
	cache := newTestCache(t)
	input := writeInput(t, "content")

	require.NoError(t, cache.Record(context.Background(), "run-1", "ocr", []string{input}))
	require.NoError(t, cache.Forget(context.Background(), "run-1", "ocr"))

	matches, err := cache.Matches(context.Background(), "run-1", "ocr", []string{input})
	require.NoError(t, err)
	require.False(t, matches)
}

func TestHashInputsIsOrderSensitive(t *testing.T) {
	a := filepath.Join(t.TempDir(), "a.jsonl")
	b := filepath.Join(t.TempDir(), "b.jsonl")
	require.NoError(t, os.WriteFile(a, []byte("A"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("B"), 0o644))

	h1, err := HashInputs([]string{a, b})
	require.NoError(t, err)
	h2, err := HashInputs([]string{b, a})
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
}
