package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/distribution/reference"
	"github.com/urfave/cli/v3"

	"github.com/Kushon/cat-api-deploy/pkg/k8s/driver"
	"github.com/Kushon/cat-api-deploy/pkg/naming"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/render"
	"github.com/Kushon/cat-api-deploy/pkg/serializer"
	"github.com/Kushon/cat-api-deploy/pkg/settings"
)

// Finding is one lint result.
type Finding struct {
	Severity string `json:"severity"` // error or warning
	Path     string `json:"path,omitempty"`
	Message  string `json:"message"`
}

func lintCmd() *cli.Command {
	return &cli.Command{
		Name:  "lint",
		Usage: "Validate settings without applying anything",
		Description: `Resolves the settings tree and reports problems an install or upgrade
would hit: merge contradictions, missing required values, invalid
image references, naming collisions, and unknown --set paths (with a
nearest-match suggestion).

Exits non-zero when any error-severity finding is present; warnings
alone exit zero.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			findings := lint(cmd)

			if len(findings) > 0 {
				if err := serializer.NewStdoutWriter(outFormat).Serialize(findings); err != nil {
					return err
				}
			}
			errorCount := 0
			for _, f := range findings {
				if f.Severity == "error" {
					errorCount++
				}
			}
			if errorCount > 0 {
				return fmt.Errorf("lint found %d problem(s)", errorCount)
			}
			return nil
		},
	}
}

func lint(cmd *cli.Command) []Finding {
	var findings []Finding

	// Unknown --set paths are warnings: extra keys such as
	// application.env.* are legitimate.
	known := settings.KnownPaths()
	for _, pair := range cmd.StringSlice("set") {
		path, _, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if isKnownPath(known, path) {
			continue
		}
		f := Finding{Severity: "warning", Path: path, Message: "unknown settings path"}
		if suggestion := closestPath(known, path); suggestion != "" {
			f.Message = fmt.Sprintf("unknown settings path, did you mean %q?", suggestion)
		}
		findings = append(findings, f)
	}

	t, err := resolveSettings(cmd)
	if err != nil {
		return append(findings, findingFromError(err))
	}

	for _, path := range []string{"application.image", "database.image", "migration.image"} {
		repo := t.StringOr(path+".repository", "")
		if repo == "" {
			continue
		}
		ref := repo
		if tag := t.StringOr(path+".tag", ""); tag != "" {
			ref += ":" + tag
		}
		if _, err := reference.ParseNormalizedNamed(ref); err != nil {
			findings = append(findings, Finding{
				Severity: "error",
				Path:     path,
				Message:  fmt.Sprintf("invalid image reference %q: %v", ref, err),
			})
		}
	}

	// A full render catches everything else: mode contradictions,
	// missing passwords, invalid quantities, name collisions.
	if _, err := render.Render(t, identity(cmd, 1)); err != nil {
		findings = append(findings, findingFromError(err))
	}

	return findings
}

func findingFromError(err error) Finding {
	return Finding{Severity: "error", Message: err.Error()}
}

func isKnownPath(known []string, path string) bool {
	for _, k := range known {
		if k == path {
			return true
		}
	}
	return false
}

// closestPath returns the known settings path nearest to the given one,
// or empty when nothing is plausibly close.
func closestPath(known []string, path string) string {
	best := ""
	bestDist := len(path)/2 + 1 // beyond this a suggestion is noise
	for _, k := range known {
		if d := levenshtein.ComputeDistance(path, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

func showValuesCmd() *cli.Command {
	return &cli.Command{
		Name:  "show-values",
		Usage: "Print the fully resolved settings tree",
		Description: `Resolves chart defaults, --values files, and --set overrides into the
final settings tree and prints it. Secret values are redacted.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}
			t, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			return serializer.NewStdoutWriter(outFormat).Serialize(settings.Redact(t))
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Report the observed state of the release",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			d, err := newDriver(cmd)
			if err != nil {
				return err
			}

			current, err := d.ReleaseRevision(ctx, identity(cmd, 0))
			if err != nil {
				return fmt.Errorf("failed to read release state: %w", err)
			}
			if current == 0 {
				return fmt.Errorf("release %q is not installed in namespace %q",
					cmd.String("release"), cmd.String("namespace"))
			}

			t, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			manifests, err := render.Render(t, identity(cmd, current))
			if err != nil {
				return err
			}

			report := struct {
				Release   string                  `json:"release"`
				Namespace string                  `json:"namespace"`
				Revision  int                     `json:"revision"`
				Resources []driver.ResourceStatus `json:"resources"`
			}{
				Release:   cmd.String("release"),
				Namespace: cmd.String("namespace"),
				Revision:  current,
			}
			for _, m := range manifests {
				st, err := d.Status(ctx, m)
				if err != nil {
					return err
				}
				report.Resources = append(report.Resources, st)
			}

			return serializer.NewStdoutWriter(outFormat).Serialize(report)
		},
	}
}

func logsCmd(name, usage string) *cli.Command {
	component := release.ComponentApplication
	if name == "logs-db" {
		component = release.ComponentDatabase
	}

	return &cli.Command{
		Name:  name,
		Usage: usage,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "follow",
				Usage: "Stream logs continuously",
			},
			&cli.IntFlag{
				Name:  "tail",
				Value: 100,
				Usage: "Number of trailing lines to show (0 for all)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d, err := newDriver(cmd)
			if err != nil {
				return err
			}

			selector := naming.SelectorLabels(cmd.String("release"), component)
			stream, err := d.PodLogs(ctx, cmd.String("namespace"), selector,
				cmd.Bool("follow"), int64(cmd.Int("tail")))
			if err != nil {
				return err
			}
			defer func() { _ = stream.Close() }()

			_, err = io.Copy(os.Stdout, stream)
			return err
		},
	}
}
