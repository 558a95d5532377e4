package recognizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	l, err := ParseLabels(strings.NewReader("\uFEFFa\r\nb\n\n \nc\n"))
	require.NoError(t, err)
	require.Equal(t, 5, l.Len())
	for i, want := range []string{"a", "b", "", " ", "c"} {
		got, ok := l.Token(i)
		require.True(t, ok)
		assert.Equal(t, want, got, "index %d", i)
	}
	assert.Equal(t, 4, l.Blank())
}

func TestParseLabels_NFC(t *testing.T) {
	// "e" followed by a combining acute accent composes to U+00E9.
	l, err := ParseLabels(strings.NewReader("e\u0301\n"))
	require.NoError(t, err)
	tok, _ := l.Token(0)
	assert.Equal(t, "\u00e9", tok)
}

func TestParseLabels_Empty(t *testing.T) {
	_, err := ParseLabels(strings.NewReader(""))
	var le *LabelLoadError
	require.ErrorAs(t, err, &le)
	assert.ErrorIs(t, err, ErrEmptyLabels)
}

func TestLoadLabels(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadLabels("")
	var le *LabelLoadError
	require.ErrorAs(t, err, &le)

	_, err = LoadLabels(filepath.Join(dir, "missing.txt"))
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Path, "missing.txt")

	empty := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = LoadLabels(empty)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, empty, le.Path)

	path := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("0\n1\n2\n[blank]\n"), 0o600))
	l, err := LoadLabels(path)
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())
	assert.Equal(t, 3, l.Blank())
}

func TestLabels_WithBlank(t *testing.T) {
	l, err := NewLabels([]string{"-", "a", "b"})
	require.NoError(t, err)
	l0, err := l.WithBlank(0)
	require.NoError(t, err)
	assert.Equal(t, 0, l0.Blank())
	assert.Equal(t, 2, l.Blank())

	_, err = l.WithBlank(3)
	require.Error(t, err)

	_, ok := l.Token(-1)
	assert.False(t, ok)
}
