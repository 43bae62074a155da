// Package workspace discovers Cargo workspaces and their member packages on an afero filesystem.
//
// Discovery reads every Cargo.toml with bounded parallelism, assigns each package manifest to
// the deepest workspace whose members patterns match it, and parses members concurrently.
// Manifests that fail to parse are reported as ManifestParseError values and excluded from
// their workspace; discovery itself only fails on filesystem errors or cancellation.
package workspace
