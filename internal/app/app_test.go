package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagNamesAreStable(t *testing.T) {
	names := map[string]string{
		FlagDebugName:       "debug",
		FlagSyslogName:      "syslog",
		FlagLogStdOutName:   "log-stdout",
		FlagOutputDirName:   "output",
		FlagConfigFileName:  "config",
		FlagMetricsAddrName: "metrics-addr",
	}
	for got, want := range names {
		assert.Equal(t, want, got, "flag name mismatch")
	}
}

func TestContextZeroValue(t *testing.T) {
	var c Context
	assert.False(t, c.Debug, "zero value Context should not be in debug mode")
	assert.Empty(t, c.Timestamp, "zero value Context should have an empty timestamp")
	assert.Empty(t, c.OutputDir, "zero value Context should have an empty output dir")
}
