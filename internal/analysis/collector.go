package analysis

import (
	"go.uber.org/multierr"

	"github.com/temirov/deptrack/internal/report"
)

// problemCollector accumulates non-fatal errors of one run. It is owned by a single goroutine.
type problemCollector struct {
	problems []report.Problem
	errors   []error
}

func (collector *problemCollector) add(kind report.ProblemKind, workspaceName string, packageName string, err error) {
	collector.problems = append(collector.problems, report.Problem{
		Kind:      kind,
		Workspace: workspaceName,
		Package:   packageName,
		Message:   err.Error(),
	})
	collector.errors = append(collector.errors, err)
}

func (collector *problemCollector) merge(problems []collectedProblem) {
	for _, problem := range problems {
		collector.add(problem.kind, problem.workspace, problem.pkg, problem.err)
	}
}

func (collector *problemCollector) result() []report.Problem {
	return collector.problems
}

// combined folds every collected error into one for logging; nil when nothing was collected.
func (collector *problemCollector) combined() error {
	return multierr.Combine(collector.errors...)
}

func (collector *problemCollector) count() int {
	return len(collector.problems)
}

type collectedProblem struct {
	kind      report.ProblemKind
	workspace string
	pkg       string
	err       error
}
