// Package severity assigns levels to findings and folds a run into a report.
//
// Levels come from a table keyed by impact class and finding type. Combinations
// absent from the table resolve to warn so that new finding types stay visible.
package severity
