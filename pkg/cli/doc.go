// Package cli implements the command-line interface for the catdeploy
// release engine.
//
// # Commands
//
// install - Install the release into the cluster:
//
//	catdeploy install [--values FILE] [--set path=value]
//
// Renders the full manifest set at revision 1, runs the schema
// migration task, and rolls out the workload once the migration has
// succeeded. Fails if the release is already installed.
//
// upgrade - Upgrade an installed release:
//
//	catdeploy upgrade [--values FILE] [--set path=value]
//
// Re-renders at the next revision. The migration runs as a pre-upgrade
// task and is skipped when the migration-relevant configuration is
// unchanged since the last successful run.
//
// uninstall - Remove the release:
//
//	catdeploy uninstall
//
// Deletes all release resources in reverse render order, including the
// stored migration record. Persistent volumes claimed by the database
// are left behind.
//
// dry-run - Render without touching the cluster:
//
//	catdeploy dry-run [--values FILE] [--set path=value] [--format yaml|json]
//
// Prints the exact manifest set an install or upgrade would submit.
// Requires no cluster connection.
//
// lint - Validate settings without rendering side effects:
//
//	catdeploy lint [--values FILE] [--set path=value]
//
// Reports configuration contradictions, invalid image references, and
// unknown --set paths with a nearest-match suggestion.
//
// show-values - Print the resolved settings:
//
//	catdeploy show-values [--values FILE] [--set path=value]
//
// Prints the fully merged settings tree with secret values redacted.
//
// status - Report the observed state of the release:
//
//	catdeploy status
//
// logs-app / logs-db - Stream pod logs:
//
//	catdeploy logs-app [--follow] [--tail N]
//	catdeploy logs-db [--follow] [--tail N]
//
// # Global Flags
//
//	--namespace, -n   Target namespace (default: cat-api-ns)
//	--release, -r     Release name (default: cat-api-release)
//	--values, -f      Settings file, repeatable; later files win
//	--set             Dotted-path override, repeatable; highest precedence
//	--kubeconfig      Path to kubeconfig file
//	--timeout         Migration wait bound (default: 10m)
//	--format, -t      Output format: yaml, json (default: yaml)
//	--debug           Enable debug logging
//	--log-json        Output logs in JSON format
//
// # Environment Variables
//
//	CATDEPLOY_NAMESPACE   Default target namespace
//	CATDEPLOY_RELEASE     Default release name
//	CATDEPLOY_DEBUG       Enable debug logging
//	KUBECONFIG            Path to kubeconfig file
//
// A .env file in the working directory is loaded before flags are
// parsed; real environment variables win over file entries.
//
// # Exit Codes
//
//	0  Success
//	1  General error (invalid settings, migration failure, driver error)
package cli
