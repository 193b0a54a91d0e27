package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/Kushon/cat-api-deploy/pkg/render"
	"github.com/Kushon/cat-api-deploy/pkg/scheduler"
	"github.com/Kushon/cat-api-deploy/pkg/serializer"
)

func installCmd() *cli.Command {
	return &cli.Command{
		Name:  "install",
		Usage: "Install the release into the cluster",
		Description: `Renders the full manifest set at revision 1 and applies it. The schema
migration task runs as a pre-install hook; the application workload is
only rolled out after the migration has succeeded.

Fails if the release is already installed; use upgrade instead.

# Examples

Install with defaults:
  catdeploy install --set database.auth.password=...

Install with a values file:
  catdeploy install -f production.yaml`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d, err := newDriver(cmd)
			if err != nil {
				return err
			}

			current, err := d.ReleaseRevision(ctx, identity(cmd, 0))
			if err != nil {
				return fmt.Errorf("failed to read release state: %w", err)
			}
			if current > 0 {
				return fmt.Errorf("release %q is already installed at revision %d, use upgrade",
					cmd.String("release"), current)
			}

			return deploy(ctx, cmd, d, 1)
		},
	}
}

func upgradeCmd() *cli.Command {
	return &cli.Command{
		Name:  "upgrade",
		Usage: "Upgrade an installed release",
		Description: `Re-renders the manifest set at the next revision and applies it. The
migration task runs as a pre-upgrade hook and is skipped when the
migration-relevant configuration has not changed since its last
successful run.

Fails if the release is not installed; use install first.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d, err := newDriver(cmd)
			if err != nil {
				return err
			}

			current, err := d.ReleaseRevision(ctx, identity(cmd, 0))
			if err != nil {
				return fmt.Errorf("failed to read release state: %w", err)
			}
			if current == 0 {
				return fmt.Errorf("release %q is not installed, use install", cmd.String("release"))
			}

			return deploy(ctx, cmd, d, current+1)
		},
	}
}

func deploy(ctx context.Context, cmd *cli.Command, d scheduler.Driver, revision int) error {
	t, err := resolveSettings(cmd)
	if err != nil {
		return err
	}

	id := identity(cmd, revision)
	manifests, err := render.Render(t, id)
	if err != nil {
		return err
	}

	sched := scheduler.New(d,
		scheduler.WithTimeout(cmd.Duration("timeout")),
		scheduler.WithLogger(slog.Default()),
	)

	slog.Info("deploying release",
		slog.String("release", id.Name),
		slog.String("namespace", id.Namespace),
		slog.Int("revision", id.Revision),
		slog.Int("manifests", len(manifests)),
	)

	res, err := sched.Deploy(ctx, id, manifests)
	if err != nil {
		slog.Error("deploy failed", "phase", res.Phase, "error", err)
		return err
	}
	return nil
}

func uninstallCmd() *cli.Command {
	return &cli.Command{
		Name:  "uninstall",
		Usage: "Remove the release from the cluster",
		Description: `Deletes all release resources in reverse render order, including the
stored migration record. Persistent volumes claimed by the bundled
database are left behind; delete them manually if the data is no
longer needed.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			d, err := newDriver(cmd)
			if err != nil {
				return err
			}

			current, err := d.ReleaseRevision(ctx, identity(cmd, 0))
			if err != nil {
				return fmt.Errorf("failed to read release state: %w", err)
			}
			if current == 0 {
				current = 1
			}

			t, err := resolveSettings(cmd)
			if err != nil {
				return err
			}

			id := identity(cmd, current)
			manifests, err := render.Render(t, id)
			if err != nil {
				return err
			}

			sched := scheduler.New(d, scheduler.WithLogger(slog.Default()))
			return sched.Uninstall(ctx, id, manifests)
		},
	}
}

func dryRunCmd() *cli.Command {
	return &cli.Command{
		Name:  "dry-run",
		Usage: "Render the manifest set without touching the cluster",
		Description: `Prints the exact manifest set an install or upgrade would submit, as a
multi-document YAML stream or a JSON list. Requires no cluster
connection.

# Examples

Render with defaults:
  catdeploy dry-run --set database.auth.password=example

Render what revision 3 of an upgrade would submit:
  catdeploy dry-run --revision 3 -f production.yaml`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "revision",
				Value: 1,
				Usage: "Revision to render as",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file path (default: stdout)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			t, err := resolveSettings(cmd)
			if err != nil {
				return err
			}

			id := identity(cmd, int(cmd.Int("revision")))
			manifests, err := render.Render(t, id)
			if err != nil {
				return err
			}

			w, closeOut, err := serializer.NewFileWriterOrStdout(outFormat, cmd.String("output"))
			if err != nil {
				return err
			}
			defer func() { _ = closeOut() }()

			return w.SerializeManifests(manifests)
		},
	}
}
