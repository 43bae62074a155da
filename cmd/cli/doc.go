// Package cli constructs the deptrack command-line interface. It wires the
// Cobra command hierarchy to the layered configuration loader (embedded
// defaults, configuration file, DEPTRACK_* environment variables) and to a
// zap logger, and registers the check and graph commands.
package cli
