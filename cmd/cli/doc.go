// Package cli constructs the ngen-gitops command-line interface. It wires the
// Cobra command hierarchy for the branch, image, pull request, deploy, and
// serve commands onto a shared configuration loader and zap logger, and
// exposes Execute for the thin main package.
package cli
