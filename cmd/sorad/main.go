// Command sorad is the audio routing daemon: it owns every open iodev and
// runs the dev_io scheduler (internal/devio) on a single audio thread,
// per spec.md §5.
//
// Flag/config loading follows the CLI convention of the rest of the
// retrieved pack (pflag.String for the config path, then a Load call
// that layers a file over viper defaults) adapted to internal/boardconfig
// instead of the teacher's WebRTC ICEServers config.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/sorad-project/sorad/internal/boardconfig"
	"github.com/sorad-project/sorad/internal/logging"
)

func main() {
	configFilePath := pflag.String("configFilePath", "/etc/sorad/config.yaml", "Set the file path to the config file.")
	pflag.Parse()

	cfg, err := boardconfig.Load(*configFilePath)
	if err != nil {
		slog.Error("error loading config", "err", err, "path", *configFilePath)
		os.Exit(1)
	}

	logFile, err := logging.Configure(cfg.LogLevel, cfg.LogFile, slog.HandlerOptions{})
	if err != nil {
		slog.Error("error configuring logger", "err", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	slog.Info("sorad starting", "config", cfg)

	thread, err := newAudioThread(cfg)
	if err != nil {
		slog.Error("error starting audio thread", "err", err)
		os.Exit(1)
	}

	ctrl := newController(thread)
	go ctrl.serve(cfg.StatusSocketPath, cfg.StreamSocketPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go thread.run()

	<-sigCh
	slog.Info("sorad shutting down")
	thread.stop()
}
