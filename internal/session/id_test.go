package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_ShapeAndUniqueness(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		require.NoError(t, err)
		require.Len(t, id, 22)

		_, err = ParseID(id.String())
		require.NoError(t, err, "ParseID rejected generated id %q", id)
		require.False(t, seen[id], "duplicate id %q after %d draws", id, i)
		seen[id] = true
	}
}

func TestParseID_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"short":        "abc",
		"long":         strings.Repeat("A", 23),
		"bad alphabet": "AAAAAAAAAAAAAAAAAAAA+/",
		"malformed":    "malformed",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseID(in)
			assert.Error(t, err)
		})
	}
}

func TestParseID_AcceptsCanonical(t *testing.T) {
	id, err := ParseID("AAAAAAAAAAAAAAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, ID("AAAAAAAAAAAAAAAAAAAAAA"), id)
}
