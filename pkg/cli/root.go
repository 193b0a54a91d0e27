package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"
)

// version is set at build time via ldflags.
var version = "dev"

const (
	defaultNamespace = "cat-api-ns"
	defaultRelease   = "cat-api-release"
)

// envDefaults are flag defaults sourced from the environment. A .env
// file in the working directory is merged in first; real environment
// variables take precedence over file entries.
type envDefaults struct {
	Namespace  string `env:"CATDEPLOY_NAMESPACE"`
	Release    string `env:"CATDEPLOY_RELEASE"`
	Kubeconfig string `env:"KUBECONFIG"`
	Debug      bool   `env:"CATDEPLOY_DEBUG"`
}

func loadEnvDefaults() envDefaults {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	defaults := envDefaults{
		Namespace: defaultNamespace,
		Release:   defaultRelease,
	}
	_ = env.Parse(&defaults)
	if defaults.Namespace == "" {
		defaults.Namespace = defaultNamespace
	}
	if defaults.Release == "" {
		defaults.Release = defaultRelease
	}
	return defaults
}

// NewApp builds the root catdeploy command.
func NewApp() *cli.Command {
	defaults := loadEnvDefaults()

	return &cli.Command{
		Name:                  "catdeploy",
		Usage:                 "Compose and manage cat-api releases on Kubernetes",
		Version:               version,
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Value:   defaults.Namespace,
				Usage:   "Target Kubernetes namespace",
			},
			&cli.StringFlag{
				Name:    "release",
				Aliases: []string{"r"},
				Value:   defaults.Release,
				Usage:   "Release name, used as the prefix of every resource name",
			},
			&cli.StringSliceFlag{
				Name:    "values",
				Aliases: []string{"f"},
				Usage:   "Settings file (YAML), can be repeated; later files override earlier ones",
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Override a settings path (format: path.to.key=value, can be repeated)",
			},
			&cli.StringFlag{
				Name:  "kubeconfig",
				Value: defaults.Kubeconfig,
				Usage: "Path to kubeconfig file (default: standard discovery)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Minute,
				Usage: "Bound on the migration task wait",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"t"},
				Value:   "yaml",
				Usage:   "Output format (yaml, json)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Value: defaults.Debug,
				Usage: "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "log-json",
				Usage: "Output logs in JSON format",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			slog.SetDefault(newLogger(cmd.Bool("debug"), cmd.Bool("log-json")))
			return ctx, nil
		},
		Commands: []*cli.Command{
			installCmd(),
			upgradeCmd(),
			uninstallCmd(),
			dryRunCmd(),
			lintCmd(),
			showValuesCmd(),
			statusCmd(),
			logsCmd("logs-app", "Stream application pod logs"),
			logsCmd("logs-db", "Stream database pod logs"),
		},
	}
}

func newLogger(debug, logJSON bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}
