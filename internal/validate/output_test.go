package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputAcceptsPlainText(t *testing.T) {
	assert.NoError(t, Output("hello\tworld\r\nline two"))
}

func TestOutputRejectsControlByte(t *testing.T) {
	err := Output("bad\x01byte")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangerous control character")
}

func TestOutputRejectsRightToLeftOverride(t *testing.T) {
	err := Output("innocuous text ‮ hidden reversal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unicode manipulation characters")
}

func TestOutputRejectsZeroWidthJoiner(t *testing.T) {
	err := Output("a‍b")
	require.Error(t, err)
}

func TestOutputRejectsBOM(t *testing.T) {
	err := Output("﻿text")
	require.Error(t, err)
}

func TestOutputRejectsOversize(t *testing.T) {
	big := strings.Repeat("a", MaxOutputBytes+1)
	err := Output(big)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputTooLarge)
}

func TestOutputAcceptsExactlyMaxSize(t *testing.T) {
	exact := strings.Repeat("a", MaxOutputBytes)
	assert.NoError(t, Output(exact))
}
