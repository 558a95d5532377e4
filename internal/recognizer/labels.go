package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyLabels is wrapped by LabelLoadError when the source has no lines.
var ErrEmptyLabels = errors.New("label table is empty")

// LabelLoadError reports a missing, unreadable or empty label source.
type LabelLoadError struct {
	Path string
	Err  error
}

func (e *LabelLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load labels: %v", e.Err)
	}
	return fmt.Sprintf("load labels from %s: %v", e.Path, e.Err)
}

func (e *LabelLoadError) Unwrap() error { return e.Err }

// Labels maps class indices to output strings. One class is the CTC blank.
type Labels struct {
	tokens []string
	blank  int
}

// NewLabels builds a table whose blank is the last entry.
func NewLabels(tokens []string) (*Labels, error) {
	if len(tokens) == 0 {
		return nil, &LabelLoadError{Err: ErrEmptyLabels}
	}
	return &Labels{tokens: append([]string(nil), tokens...), blank: len(tokens) - 1}, nil
}

// ParseLabels reads one label per line. Line order is class order, empty lines
// are kept as labels, a leading BOM and CRLF endings are stripped and every
// label is NFC-normalized.
func ParseLabels(r io.Reader) (*Labels, error) {
	sc := bufio.NewScanner(r)
	var tokens []string
	for sc.Scan() {
		line := sc.Text()
		if len(tokens) == 0 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		tokens = append(tokens, norm.NFC.String(line))
	}
	if err := sc.Err(); err != nil {
		return nil, &LabelLoadError{Err: err}
	}
	return NewLabels(tokens)
}

// LoadLabels reads a label file from path.
func LoadLabels(path string) (*Labels, error) {
	if path == "" {
		return nil, &LabelLoadError{Err: errors.New("label path cannot be empty")}
	}
	f, err := os.Open(path) //nolint:gosec // user-supplied label file
	if err != nil {
		return nil, &LabelLoadError{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	l, err := ParseLabels(f)
	if err != nil {
		var le *LabelLoadError
		if errors.As(err, &le) {
			le.Path = path
		}
		return nil, err
	}
	return l, nil
}

// WithBlank returns a copy using index i as the blank class.
func (l *Labels) WithBlank(i int) (*Labels, error) {
	if i < 0 || i >= len(l.tokens) {
		return nil, fmt.Errorf("blank index %d out of range [0,%d)", i, len(l.tokens))
	}
	return &Labels{tokens: l.tokens, blank: i}, nil
}

// Len is the number of classes.
func (l *Labels) Len() int { return len(l.tokens) }

// Blank is the blank class index.
func (l *Labels) Blank() int { return l.blank }

// Token returns the label for class i.
func (l *Labels) Token(i int) (string, bool) {
	if i < 0 || i >= len(l.tokens) {
		return "", false
	}
	return l.tokens[i], true
}
