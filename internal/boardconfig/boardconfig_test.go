package boardconfig

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/sorad.yaml")
	require.NoError(t, err)
	require.Equal(t, 48000, cfg.DefaultOutputSampleRate)
	require.Equal(t, 480, cfg.CallbackThresholdFrames)
}
