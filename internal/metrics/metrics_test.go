package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOK(t *testing.T) {
	m := NewOK(1.5, 0.1, 1.2, 1.8, 2048, 0, "/tmp/report.json")
	require.True(t, m.ParseSuccess())
	assert.False(t, m.TimedOut())
	assert.Equal(t, 1.5, m.Score())
	assert.Equal(t, 0.1, m.Error())
	assert.Equal(t, 1.2, m.Min())
	assert.Equal(t, 1.8, m.Max())
	require.True(t, m.HasMemory())
	assert.Equal(t, 2048.0, m.Memory())
	assert.Equal(t, "/tmp/report.json", m.Raw())
}

func TestNewOKWithoutMemory(t *testing.T) {
	m := NewOK(1.5, 0.1, 1.2, 1.8, MemoryUnset, 0, "")
	assert.False(t, m.HasMemory(), "expected HasMemory to be false when memory is unset")
}

func TestNewTimeout(t *testing.T) {
	m := NewTimeout()
	require.True(t, m.TimedOut())
	assert.False(t, m.ParseSuccess(), "a timed-out run never parses successfully")
	assert.Equal(t, TimeoutExitCode, m.ExitCode())
}

func TestNewParseFailure(t *testing.T) {
	m := NewParseFailure(1)
	require.False(t, m.ParseSuccess())
	assert.False(t, m.TimedOut(), "a parse failure is not a timeout")
	assert.Equal(t, 1, m.ExitCode())
}

func TestStringVariants(t *testing.T) {
	assert.Equal(t, "timeout", NewTimeout().String())
	assert.NotEmpty(t, NewParseFailure(2).String())
	assert.NotEmpty(t, NewOK(1, 0, 1, 1, MemoryUnset, 0, "").String())
}
