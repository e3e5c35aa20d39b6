package session

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := NewError("load", KindDecode, io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, ErrDecode)
	assert.NotErrorIs(t, err, ErrBackend, "decode error must not match ErrBackend")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "load", se.Op)
}

func TestError_Message(t *testing.T) {
	err := NewError("create", KindAllocation, errors.New("8 attempts"))
	assert.Equal(t, "session: create: allocation: 8 attempts", err.Error())
	assert.Equal(t, "session: pool", ErrPool.Error())
}

func TestRecord_Expired(t *testing.T) {
	r := &Record{}
	assert.True(t, r.Expired(r.Expiry), "record expiring exactly now must be expired")
}
