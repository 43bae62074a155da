// Package manifest decodes Cargo manifests into immutable package records.
//
// ParseManifest turns a Cargo.toml document into a Package carrying its name,
// declared version, repository-relative location, changelog location and
// typed dependency list. ParseWorkspaceManifest extracts the [workspace]
// table used by discovery to enumerate member packages.
package manifest
