package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := Version
	t.Cleanup(func() { Version = old })
	Version = "1.2.3"

	assert.Contains(t, String(), "craftocr 1.2.3")
	v, commit, date := Info()
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, GitCommit, commit)
	assert.Equal(t, BuildDate, date)
}
