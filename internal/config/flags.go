package config

import (
	"flag"
	"os"
	"time"

	"github.com/bsvalues/terrafield/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the backend API (default from Config)
//	-d string   path to the local SQLite database
//	-s int      drain interval in seconds
//	-i int      online check interval in seconds
//	-r int      max redeliveries before a queued item is dropped
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-i", "-r"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the backend API")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "path to the local database")
	drainInterval := fs.Int("s", int(cfg.DrainInterval.Seconds()), "drain interval (in seconds)")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.IntVar(&cfg.MaxRetries, "r", cfg.MaxRetries, "max redeliveries before dropping a queued item")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.DrainInterval = time.Duration(*drainInterval) * time.Second
	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
