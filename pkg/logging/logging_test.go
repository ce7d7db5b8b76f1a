package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		options Options
		debug   bool
	}{
		{"console", Options{}, false},
		{"verbose console", Options{Verbose: true}, true},
		{"json", Options{JSON: true}, false},
		{"verbose json", Options{JSON: true, Verbose: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.options)
			require.NoError(t, err)
			assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
			assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
		})
	}
}
