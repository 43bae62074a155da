// Package analysis drives one audit of a Cargo repository between two revisions.
//
// Service resolves both revisions through a revision.Adapter, discovers the
// workspaces present at the target, computes impact per workspace and runs the
// version and changelog checks for every impacted package on a bounded worker
// pool before handing the findings to the severity engine. CommandBuilder wires
// the check and graph Cobra commands on top of it.
package analysis
