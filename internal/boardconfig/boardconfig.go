// Package boardconfig loads the daemon's integer/string configuration keys
// (log settings, default formats, callback threshold, A2DP staging
// capacity, rate estimator limit, socket paths) using
// github.com/spf13/viper, grounded on the teacher's
// cmd/config/config.go and internal/utils/viperdefaults.go
// (SetDefault-then-ReadInConfig pattern).
package boardconfig

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/viper"
)

// setDefaults mirrors the teacher's setViperDefaults, scoped to the
// daemon's own key table instead of the teacher's WebRTC/codec keys.
func setDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	viper.SetDefault("default_output_sample_rate", 48000)
	viper.SetDefault("default_output_channels", 2)
	viper.SetDefault("default_output_encoding", "S16LE")

	viper.SetDefault("default_input_sample_rate", 48000)
	viper.SetDefault("default_input_channels", 2)
	viper.SetDefault("default_input_encoding", "S16LE")

	viper.SetDefault("callback_threshold_frames", 480)
	viper.SetDefault("a2dp_stage_capacity_frames", 4096)
	viper.SetDefault("rate_estimator_max_ppm", 500)
	viper.SetDefault("status_socket_path", "/run/sorad/status.sock")
	viper.SetDefault("stream_socket_path", "/run/sorad/stream.sock")
}

// Config is the resolved, typed view of the board's configuration, built
// from viper once Load has read the file.
type Config struct {
	LogLevel string
	LogFile  string

	DefaultOutputSampleRate int
	DefaultOutputChannels   int
	DefaultOutputEncoding   string

	DefaultInputSampleRate int
	DefaultInputChannels   int
	DefaultInputEncoding   string

	CallbackThresholdFrames int
	A2DPStageCapacityFrames int
	RateEstimatorMaxPPM     int

	StatusSocketPath string
	StreamSocketPath string
}

// Load reads configFilePath (if it exists) over the defaults above and
// returns the resolved Config. A missing file is not an error — the
// daemon runs on pure defaults — but a malformed one is.
func Load(configFilePath string) (Config, error) {
	setDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		// With an explicit SetConfigFile path, a missing file surfaces as
		// an fs.ErrNotExist error rather than ConfigFileNotFoundError.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || errors.Is(err, fs.ErrNotExist) {
			slog.Info("boardconfig: no config file found, using defaults", "path", configFilePath)
		} else {
			return Config{}, err
		}
	}

	return Config{
		LogLevel:                viper.GetString("loglevel"),
		LogFile:                 viper.GetString("logfile"),
		DefaultOutputSampleRate: viper.GetInt("default_output_sample_rate"),
		DefaultOutputChannels:   viper.GetInt("default_output_channels"),
		DefaultOutputEncoding:   viper.GetString("default_output_encoding"),
		DefaultInputSampleRate:  viper.GetInt("default_input_sample_rate"),
		DefaultInputChannels:    viper.GetInt("default_input_channels"),
		DefaultInputEncoding:    viper.GetString("default_input_encoding"),
		CallbackThresholdFrames: viper.GetInt("callback_threshold_frames"),
		A2DPStageCapacityFrames: viper.GetInt("a2dp_stage_capacity_frames"),
		RateEstimatorMaxPPM:     viper.GetInt("rate_estimator_max_ppm"),
		StatusSocketPath:        viper.GetString("status_socket_path"),
		StreamSocketPath:        viper.GetString("stream_socket_path"),
	}, nil
}
