package cli

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Kushon/cat-api-deploy/pkg/k8s/client"
	"github.com/Kushon/cat-api-deploy/pkg/k8s/driver"
	"github.com/Kushon/cat-api-deploy/pkg/release"
	"github.com/Kushon/cat-api-deploy/pkg/serializer"
	"github.com/Kushon/cat-api-deploy/pkg/settings"
)

// parseOutputFormat extracts and validates the output format from CLI flags.
// Returns the validated format or an error if the format is unknown.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	outFormat := serializer.Format(cmd.String("format"))
	if outFormat.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q, valid formats are: yaml, json", outFormat)
	}
	return outFormat, nil
}

// resolveSettings merges chart defaults, --values files in order, and
// --set overrides into the final settings tree.
func resolveSettings(cmd *cli.Command) (settings.Tree, error) {
	defaults, err := settings.DefaultScopes()
	if err != nil {
		return nil, err
	}

	var overrides []settings.Tree
	for _, path := range cmd.StringSlice("values") {
		t, err := settings.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load values file %q: %w", path, err)
		}
		overrides = append(overrides, t)
	}

	if pairs := cmd.StringSlice("set"); len(pairs) > 0 {
		t, err := settings.ParseSet(pairs)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, t)
	}

	return settings.Resolve(defaults, overrides)
}

// identity builds the release identity from global flags.
func identity(cmd *cli.Command, revision int) release.Identity {
	return release.Identity{
		Name:      cmd.String("release"),
		Namespace: cmd.String("namespace"),
		Revision:  revision,
	}
}

// newDriver builds the cluster driver from the --kubeconfig flag.
func newDriver(cmd *cli.Command) (*driver.Driver, error) {
	clientset, _, err := client.Build(cmd.String("kubeconfig"))
	if err != nil {
		return nil, err
	}
	return driver.New(clientset), nil
}
