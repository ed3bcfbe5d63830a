package config

import (
	"flag"
	"os"
	"time"

	"github.com/nimbusbrowser/nimbus/internal/flagx"
)

// parseFlags populates selected CLI Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   server gRPC endpoint (e.g., "127.0.0.1:50051")
//	-n string   device ID
//	-o string   data directory name
//	-y string   conflict strategy
//	-i int      sync interval, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-n", "-o", "-y", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ServerEndpointAddr, "a", config.ServerEndpointAddr, "server gRPC endpoint")
	fs.StringVar(&config.DeviceID, "n", config.DeviceID, "device ID")
	fs.StringVar(&config.DataDir, "o", config.DataDir, "data directory name")
	fs.StringVar(&config.Strategy, "y", config.Strategy, "conflict strategy")

	syncInterval := fs.Int("i", int(config.SyncInterval.Minutes()), "sync interval (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SyncInterval = time.Duration(*syncInterval) * time.Minute
}
