package framework

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingLoggerAccumulatesOutput(t *testing.T) {
	var logger CapturingLogger
	logger.Printf("first %d", 1)
	logger.Printf("second %d", 2)

	output := logger.Output()
	require.Len(t, output, 2)
	assert.Equal(t, "first 1", output[0].Message)
	assert.Equal(t, "second 2", output[1].Message)
	assert.False(t, output[1].Time.Before(output[0].Time))
}

func TestLoggerWithPrefix(t *testing.T) {
	var base CapturingLogger
	logger := LoggerWithPrefix(&base, "probe: ")
	logger.Printf("sent %q", "hello")

	output := base.Output()
	require.Len(t, output, 1)
	assert.Equal(t, `probe: sent "hello"`, output[0].Message)
}

func TestCapturedOutputDump(t *testing.T) {
	var logger CapturingLogger
	logger.Printf("one")
	logger.Printf("two")

	var buf bytes.Buffer
	logger.Output().Dump(&buf, "  DEBUG ")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.True(t, bytes.HasPrefix(lines[0], []byte("  DEBUG [")))
	assert.True(t, bytes.HasSuffix(lines[0], []byte("one")))
}
