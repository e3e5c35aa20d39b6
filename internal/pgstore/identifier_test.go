package pgstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIdentifier(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"session", true},
		{"tower_sessions", true},
		{"_private", true},
		{"Sessions2", true},
		{"a$b", true},
		{"sessão", true},
		{"сессия_1", true},
		{"", false},
		{"1session", false},
		{"$session", false},
		{"session-table", false},
		{"session table", false},
		{`session"; drop table users; --`, false},
		{"sess.ion", false},
		{"tab\tle", false},
		{strings.Repeat("a", 63), true},
		{strings.Repeat("a", 64), false},
		{"bad\xffbyte", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ValidIdentifier(c.name), "ValidIdentifier(%q)", c.name)
	}
}
