package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandRunner_Stdout(t *testing.T) {
	out, err := NewCommandRunner(nil).Run(context.Background(), "sh", "-c", "printf 'page text'")
	require.NoError(t, err)
	assert.Equal(t, "page text", string(out))
}

func TestCommandRunner_FailureKeepsStderr(t *testing.T) {
	_, err := NewCommandRunner(nil).Run(context.Background(), "sh", "-c", "echo 'Syntax Error: bad xref' >&2; exit 3")
	require.Error(t, err)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "sh", te.Tool)
	assert.Equal(t, "Syntax Error: bad xref", te.Stderr)
	assert.False(t, te.Missing())
	assert.Equal(t, []string{"Syntax Error: bad xref"}, stderrOf(err))
}

func TestCommandRunner_MissingTool(t *testing.T) {
	_, err := NewCommandRunner(nil).Run(context.Background(), "kabalot-no-such-tool")
	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.True(t, te.Missing())
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 8}
	_, _ = tb.Write([]byte("0123"))
	assert.Equal(t, "0123", tb.String())

	_, _ = tb.Write([]byte("456789ab"))
	assert.Equal(t, "...456789ab", tb.String())

	tb = &tailBuffer{max: 3}
	_, _ = tb.Write([]byte("שלום")) // 8 bytes; the tail starts mid-rune
	assert.True(t, strings.HasPrefix(tb.String(), "..."))
	assert.Equal(t, "...ם", tb.String())
}

func TestStderrOfPlainError(t *testing.T) {
	assert.Nil(t, stderrOf(errors.New("plain")))
	assert.Nil(t, stderrOf(&ToolError{Tool: "tesseract", Err: errors.New("exit status 1")}))
}
