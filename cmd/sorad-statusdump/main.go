// Command sorad-statusdump is a read-only introspection CLI: it connects
// to a running sorad daemon's status socket and prints the JSON blob it
// returns, for operators and test harnesses (spec.md §6's external status
// surface).
package main

import (
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/spf13/pflag"
)

func main() {
	socketPath := pflag.String("socket", "/run/sorad/status.sock", "Path to the daemon's status socket.")
	pflag.Parse()

	conn, err := net.Dial("unix", *socketPath)
	if err != nil {
		slog.Error("sorad-statusdump: connect failed", "socket", *socketPath, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	if _, err := io.Copy(os.Stdout, conn); err != nil {
		slog.Error("sorad-statusdump: read failed", "err", err)
		os.Exit(1)
	}
}
