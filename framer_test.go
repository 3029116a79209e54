package bcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFramer_TwoLinesInOneRead(t *testing.T) {
	f := newLineFramer(0)

	lines, err := f.push([]byte("hello?version=1.1\ngoodbye\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello?version=1.1", "goodbye"}, lines)
	assert.Equal(t, 0, f.pending())
}

func TestLineFramer_PartialLine(t *testing.T) {
	f := newLineFramer(0)

	lines, err := f.push([]byte("trigger?na"))
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 10, f.pending())

	lines, err = f.push([]byte("me=a\r\nswitch"))
	require.NoError(t, err)
	assert.Equal(t, []string{"trigger?name=a"}, lines)

	lines, err = f.push([]byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"switch"}, lines)
}

func TestLineFramer_TooLarge(t *testing.T) {
	f := newLineFramer(8)

	lines, err := f.push([]byte("ok\n0123456789"))
	assert.Equal(t, []string{"ok"}, lines)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestIsComment(t *testing.T) {
	assert.True(t, isComment(""))
	assert.True(t, isComment("# keepalive"))
	assert.True(t, isComment("#"))
	assert.False(t, isComment("hello"))
	assert.False(t, isComment(" #x"))
}
