// Package main provides the harvester command-line tool for collecting forum
// posts into a local JSON/CSV corpus.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"bbsharvest/internal/config"
	"bbsharvest/internal/crawler"
	"bbsharvest/internal/harvest"
	"bbsharvest/internal/logger"
	"bbsharvest/internal/metrics"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds state shared by all subcommands.
type app struct {
	cfgFile string
	debug   bool

	cfg *config.Config
	log *logger.Logger
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Incremental forum post harvester",
		Long:          `Collects forum posts from the topic list API into JSON and CSV files, resuming from the last successful run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is "+config.DefaultPath+" when present)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newCrawlCommand(a),
		newTargetsCommand(a),
		newScheduleCommand(a),
		newConfigCommand(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "harvester version %s\n", version)
			},
		},
	)

	return root
}

// load reads .env, the config file and sets up logging. An explicit --config
// must exist; otherwise the default path is optional.
func (a *app) load() error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	var (
		cfg *config.Config
		err error
	)

	if a.cfgFile != "" {
		cfg, err = config.LoadConfig(a.cfgFile)
	} else {
		var found bool

		cfg, found, err = config.LoadConfigOrDefault(config.DefaultPath)
		if err == nil && !found {
			fmt.Fprintf(os.Stderr, "⚙️  %s not found, using built-in defaults\n", config.DefaultPath)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if a.debug {
		level = "debug"
	}

	a.cfg = cfg
	a.log = logger.NewLoggerWithFormat(level, cfg.Logging.Format, os.Stderr)
	a.log.Debug("configuration loaded", "config", cfg.String())

	return nil
}

// newService builds the harvest service over the HTTP fetcher.
func (a *app) newService(m *metrics.Collector) (*harvest.Service, error) {
	creds := config.EnvCredentials{Variable: a.cfg.Spider.CookieEnv}
	if strings.TrimSpace(creds.SessionCookie()) == "" {
		a.log.Warn("no session cookie configured, requests are sent anonymously", "variable", a.cfg.Spider.CookieEnv)
	}

	fetcher := crawler.NewHTTPFetcherFromConfig(&a.cfg.Spider, creds)

	return harvest.NewService(a.cfg, fetcher, a.log, m)
}
