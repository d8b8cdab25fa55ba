package cmdline

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/aceeric/shellcache/impl/config"
	"github.com/aceeric/shellcache/impl/store"

	"github.com/urfave/cli/v3"
)

// fromCmdline will be populated with flags indicating which configuration settings were
// specified on the command line.
var fromCmdline config.FromCmdLine

// cfg has the parsed configuration - including defaults (e.g. port) if the user does not override
var cfg = config.Configuration{}

// isFile validates that a path names an existing regular file
func isFile(path string) error {
	if fi, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found")
	} else if fi.IsDir() {
		return fmt.Errorf("not a file")
	}
	return nil
}

// fetchTimeoutFlag is shared by every command that fetches from the origin
func fetchTimeoutFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "fetch-timeout",
		Value:       30000,
		Usage:       "The max time in milliseconds to fetch one resource from the origin",
		Destination: &cfg.FetchTimeout,
		Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
			fromCmdline.FetchTimeout = true
			return nil
		},
	}
}

func syncConcurrencyFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "sync-concurrency",
		Value:       4,
		Usage:       "The number of concurrent fetches during an offline sync",
		Destination: &cfg.SyncConcurrency,
		Validator: func(n int64) error {
			if n < 1 {
				return fmt.Errorf("must be at least one")
			}
			return nil
		},
		Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
			fromCmdline.SyncConcurrency = true
			return nil
		},
	}
}

func syncRateLimitFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:        "sync-rate-limit",
		Value:       0,
		Usage:       "The max origin fetches per second during an offline sync (zero is unlimited)",
		Destination: &cfg.SyncRateLimit,
		Validator: func(n int64) error {
			if n < 0 {
				return fmt.Errorf("can't be negative")
			}
			return nil
		},
		Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
			fromCmdline.SyncRateLimit = true
			return nil
		},
	}
}

// cmds is for the command line parser urfave/cli
var cmds = &cli.Command{
	Name:  "shellcache",
	Usage: "an offline-capable, versioned caching gateway for a web application shell",
	// define this or the parser terminates the program
	ExitErrHandler: func(_ context.Context, _ *cli.Command, _ error) {},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Value:       "error",
			Usage:       "Sets the minimum value for logging: trace, debug, info, warn, or error",
			Destination: &cfg.LogLevel,
			Validator: func(lvl string) error {
				validValues := []string{"trace", "debug", "info", "warn", "error"}
				if !slices.Contains(validValues, strings.ToLower(lvl)) {
					return fmt.Errorf("must be one of %s", strings.Join(validValues, ", "))
				}
				return nil
			},
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.LogLevel = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "config-file",
			Usage:       "A file to load configuration values from (cmdline overrides file settings)",
			Destination: &cfg.ConfigFile,
			Validator:   isFile,
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.ConfigFile = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "cache-path",
			Value:       "/var/lib/shellcache",
			Usage:       "The path for the durable caches",
			Destination: &cfg.CachePath,
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.CachePath = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "store-type",
			Value:       store.FS,
			Usage:       "The cache storage backend: fs, leveldb, or memory",
			Destination: &cfg.StoreType,
			Validator: func(st string) error {
				validValues := []string{store.FS, store.LevelDB, store.Memory}
				if !slices.Contains(validValues, st) {
					return fmt.Errorf("must be one of %s", strings.Join(validValues, ", "))
				}
				return nil
			},
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.StoreType = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "log-file",
			Value:       "",
			Usage:       "log to the specified file rather than the console",
			Destination: &cfg.LogFile,
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.LogFile = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "manifest-file",
			Usage:       "The resource manifest of the deployed version (JSON or YAML)",
			Destination: &cfg.ManifestFile,
			Validator:   isFile,
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.ManifestFile = true
				return nil
			},
		},
		&cli.StringFlag{
			Name:        "origin",
			Usage:       "The origin web server URL, e.g. https://app.example.com",
			Destination: &cfg.Origin.Url,
			Validator: func(url string) error {
				if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
					return fmt.Errorf("must be an http or https url")
				}
				return nil
			},
			Action: func(ctx context.Context, cmd *cli.Command, _ string) error {
				fromCmdline.Origin = true
				return nil
			},
		},
	},
	Commands: []*cli.Command{
		{
			Name:  "serve",
			Usage: "Runs the gateway",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				fromCmdline.Command = "serve"
				return nil
			},
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:        "port",
					Value:       8080,
					Usage:       "The port to serve on",
					Destination: &cfg.Port,
					Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
						fromCmdline.Port = true
						return nil
					},
				},
				&cli.IntFlag{
					Name:        "health",
					Value:       0,
					Usage:       "A port to serve a plain HTTP /health endpoint on (zero disables)",
					Destination: &cfg.Health,
					Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
						fromCmdline.Health = true
						return nil
					},
				},
				&cli.IntFlag{
					Name:        "metrics",
					Value:       0,
					Usage:       "A port to serve prometheus metrics on (zero disables)",
					Destination: &cfg.Metrics,
					Action: func(ctx context.Context, cmd *cli.Command, _ int64) error {
						fromCmdline.Metrics = true
						return nil
					},
				},
				fetchTimeoutFlag(),
				syncConcurrencyFlag(),
				syncRateLimitFlag(),
				&cli.BoolFlag{
					Name:        "hold-new-versions",
					Value:       false,
					Usage:       "Keeps a newly installed version waiting until a skipWaiting message arrives",
					Destination: &cfg.HoldNewVersions,
					Action: func(ctx context.Context, cmd *cli.Command, _ bool) error {
						fromCmdline.HoldNewVersions = true
						return nil
					},
				},
				&cli.BoolFlag{
					Name:        "watch-manifest",
					Value:       false,
					Usage:       "Installs a new version whenever the manifest file changes",
					Destination: &cfg.WatchManifest,
					Action: func(ctx context.Context, cmd *cli.Command, _ bool) error {
						fromCmdline.WatchManifest = true
						return nil
					},
				},
			},
		},
		{
			Name:  "reconcile",
			Usage: "Installs and activates the manifest version against the caches, then exits",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				fromCmdline.Command = "reconcile"
				return nil
			},
			Flags: []cli.Flag{
				fetchTimeoutFlag(),
			},
		},
		{
			Name:  "sync",
			Usage: "Fetches every manifest resource missing from the live cache, then exits",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				fromCmdline.Command = "sync"
				return nil
			},
			Flags: []cli.Flag{
				fetchTimeoutFlag(),
				syncConcurrencyFlag(),
				syncRateLimitFlag(),
			},
		},
		{
			Name:  "list",
			Usage: "Lists the live cache (the server should not be running)",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				fromCmdline.Command = "list"
				return nil
			},
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:        "header",
					Value:       false,
					Usage:       "Displays a header line",
					Destination: &cfg.ListConfig.Header,
					Action: func(ctx context.Context, cmd *cli.Command, _ bool) error {
						fromCmdline.ListConfig = true
						return nil
					},
				},
			},
		},
		{
			Name:  "version",
			Usage: "Displays the version",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				fromCmdline.Command = "version"
				return nil
			},
		},
	},
}

// Parse parses the command line. It returns the following:
//
//  1. A FromCmdLine struct which has the command to run ("serve", "list", etc.). If the command
//     is the empty string then no sub-command was specified in which case the parser auto-displays
//     help. This struct also has flags telling you which configuration values were provided by the
//     user on the command line.
//  2. A Configuration struct containing the parsed configuration values. For any configuration flag
//     in the FromCmdLine struct with a false value, the corresponding configuration value in *this*
//     struct will be the default.
//  3. An error, if the parser returned one, else nil.
func Parse() (config.FromCmdLine, config.Configuration, error) {
	if err := cmds.Run(context.Background(), os.Args); err != nil {
		return config.FromCmdLine{}, config.Configuration{}, err
	}
	return fromCmdline, cfg, nil
}

// ClearParse supports unit testing
func ClearParse() {
	fromCmdline = config.FromCmdLine{}
	cfg = config.Configuration{}
}
