// Package revision defines the contract the analysis core requires from version control.
//
// Adapters resolve references, list changed paths between two revisions and read file
// contents at a revision. The core never talks to git directly; the gitcli and gogit
// subpackages provide the production implementations and MemoryAdapter serves tests.
package revision
