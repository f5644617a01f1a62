package core

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	urlSafe := regexp.MustCompile(`^[A-Za-z0-9]+$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		assert.Len(t, id, IDLength)
		assert.Regexp(t, urlSafe, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestHistory(t *testing.T) {
	var empty History
	assert.Nil(t, empty.Head())
	assert.Equal(t, History{}, empty.Clone())

	h := History{{"hash": "b"}}
	p := h.Prepend(HistoryEntry{"hash": "a"})
	assert.Equal(t, History{{"hash": "a"}, {"hash": "b"}}, p)
	assert.Len(t, h, 1)
	assert.Equal(t, "a", p.Head()["hash"])

	c := p.Clone()
	c[0]["hash"] = "z"
	assert.Equal(t, "a", p[0]["hash"])
}
