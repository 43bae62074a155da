package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/temirov/deptrack/internal/graph"
)

const (
	graphWorkspaceTemplateConstant  = "Workspace %s (%s): %d packages\n"
	graphPackageHeaderConstant      = "  PACKAGE\tVERSION\tPATH\tDEPENDENCIES\tDEPENDENTS\n"
	graphPackageRowTemplateConstant = "  %s\t%s\t%s\t%s\t%s\n"
	graphBuildOrderTemplateConstant = "  build order: %s\n"
	graphBuildOrderBlockedConstant  = "  build order: unavailable, graph has cycles\n"
	graphCycleTemplateConstant      = "  cycle: %s\n"
	graphPathTemplateConstant       = "\nPath %s -> %s (%s): %s\n"
	graphNoPathTemplateConstant     = "\nPath %s -> %s: none\n"
	graphPathSeparatorConstant      = " -> "
	graphTotalsTemplateConstant     = "\nTotals: %d workspaces, %d packages, %d dependencies, %d cycles\n"
	graphStatsTemplateConstant      = "workspaces: %d\npackages: %d\ndependencies: %d\ncycles: %d\nhas_cycles: %t\nmax_dependents: %d\nmax_dependencies: %d\n"
	dotHeaderConstant               = "digraph dependency_graph {\n  rankdir=LR;\n  node [shape=box];\n"
	dotFooterConstant               = "}\n"
	dotNodeTemplateConstant         = "  \"%s\" [label=\"%s\\n(%s)\"];\n"
	dotCycleNodeTemplateConstant    = "  \"%s\" [label=\"%s\\n(%s)\", color=red];\n"
	dotEdgeTemplateConstant         = "  \"%s\" -> \"%s\";\n"
	dotNodeSeparatorConstant        = "/"
)

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// GraphNode describes one package of a workspace graph.
type GraphNode struct {
	Name         string   `json:"name" yaml:"name"`
	Version      string   `json:"version" yaml:"version"`
	Path         string   `json:"path" yaml:"path"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	Dependents   []string `json:"dependents" yaml:"dependents"`
}

// WorkspaceGraph describes the dependency graph of one workspace.
type WorkspaceGraph struct {
	Name     string      `json:"name" yaml:"name"`
	Root     string      `json:"root" yaml:"root"`
	Packages []GraphNode `json:"packages" yaml:"packages"`
	// BuildOrder is empty when the graph has cycles.
	BuildOrder []string      `json:"build_order" yaml:"build_order"`
	Cycles     []graph.Cycle `json:"cycles" yaml:"cycles"`
}

// PathQuery is the answer to a dependency path question.
type PathQuery struct {
	From      string   `json:"from" yaml:"from"`
	To        string   `json:"to" yaml:"to"`
	Workspace string   `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Path      []string `json:"path" yaml:"path"`
}

// GraphStats aggregates the size and shape of the described graphs.
type GraphStats struct {
	Workspaces      int  `json:"workspaces" yaml:"workspaces"`
	Packages        int  `json:"packages" yaml:"packages"`
	Dependencies    int  `json:"dependencies" yaml:"dependencies"`
	Cycles          int  `json:"cycles" yaml:"cycles"`
	HasCycles       bool `json:"has_cycles" yaml:"has_cycles"`
	MaxDependents   int  `json:"max_dependents" yaml:"max_dependents"`
	MaxDependencies int  `json:"max_dependencies" yaml:"max_dependencies"`
}

// GraphReport describes every discovered workspace graph.
type GraphReport struct {
	Workspaces []WorkspaceGraph `json:"workspaces" yaml:"workspaces"`
	Stats      GraphStats       `json:"stats" yaml:"stats"`
	Query      *PathQuery       `json:"query,omitempty" yaml:"query,omitempty"`
	Problems   []Problem        `json:"problems" yaml:"problems"`
}

// SummarizeGraphs counts workspaces, packages, internal edges and cycles.
func SummarizeGraphs(workspaces []WorkspaceGraph) GraphStats {
	stats := GraphStats{Workspaces: len(workspaces)}
	for _, workspaceGraph := range workspaces {
		stats.Packages += len(workspaceGraph.Packages)
		stats.Cycles += len(workspaceGraph.Cycles)
		for _, node := range workspaceGraph.Packages {
			stats.Dependencies += len(node.Dependencies)
			stats.MaxDependents = max(stats.MaxDependents, len(node.Dependents))
			stats.MaxDependencies = max(stats.MaxDependencies, len(node.Dependencies))
		}
	}
	stats.HasCycles = stats.Cycles > 0
	return stats
}

// ParseGraphFormat validates a graph output format; graphs also render as Graphviz DOT.
func ParseGraphFormat(raw string) (Format, error) {
	if Format(strings.ToLower(strings.TrimSpace(raw))) == FormatDOT {
		return FormatDOT, nil
	}
	return ParseFormat(raw)
}

// RenderGraph writes the graph report in the requested format.
func RenderGraph(writer io.Writer, graphReport GraphReport, format Format) error {
	if format == FormatDOT {
		if renderError := renderGraphDOT(writer, graphReport); renderError != nil {
			return fmt.Errorf(renderErrorTemplateConstant, format, renderError)
		}
		return nil
	}
	return encode(writer, format, graphReport, func(textWriter io.Writer) error {
		return renderGraphText(textWriter, graphReport)
	})
}

// RenderGraphStats writes only the aggregate statistics of a graph report.
func RenderGraphStats(writer io.Writer, stats GraphStats, format Format) error {
	return encode(writer, format, stats, func(textWriter io.Writer) error {
		_, writeError := fmt.Fprintf(textWriter, graphStatsTemplateConstant, stats.Workspaces, stats.Packages, stats.Dependencies, stats.Cycles, stats.HasCycles, stats.MaxDependents, stats.MaxDependencies)
		return writeError
	})
}

// renderGraphDOT emits one node per package, qualified by workspace, and one edge per internal dependency.
// Packages on a cycle are drawn in red.
func renderGraphDOT(writer io.Writer, graphReport GraphReport) error {
	var builder strings.Builder
	builder.WriteString(dotHeaderConstant)
	for _, workspaceGraph := range graphReport.Workspaces {
		onCycle := make(map[string]struct{})
		for _, cycle := range workspaceGraph.Cycles {
			for _, member := range cycle.Members {
				onCycle[member] = struct{}{}
			}
		}
		for _, node := range workspaceGraph.Packages {
			template := dotNodeTemplateConstant
			if _, cyclic := onCycle[node.Name]; cyclic {
				template = dotCycleNodeTemplateConstant
			}
			fmt.Fprintf(&builder, template, dotNodeID(workspaceGraph.Name, node.Name), dotEscaper.Replace(node.Name), dotEscaper.Replace(workspaceGraph.Name))
		}
		for _, node := range workspaceGraph.Packages {
			for _, dependency := range node.Dependencies {
				fmt.Fprintf(&builder, dotEdgeTemplateConstant, dotNodeID(workspaceGraph.Name, node.Name), dotNodeID(workspaceGraph.Name, dependency))
			}
		}
	}
	builder.WriteString(dotFooterConstant)

	_, writeError := io.WriteString(writer, builder.String())
	return writeError
}

func dotNodeID(workspaceName string, packageName string) string {
	return dotEscaper.Replace(workspaceName + dotNodeSeparatorConstant + packageName)
}

func renderGraphText(writer io.Writer, graphReport GraphReport) error {
	var builder strings.Builder

	for workspaceIndex, workspaceGraph := range graphReport.Workspaces {
		if workspaceIndex > 0 {
			builder.WriteString("\n")
		}
		fmt.Fprintf(&builder, graphWorkspaceTemplateConstant, workspaceGraph.Name, displayRoot(workspaceGraph.Root), len(workspaceGraph.Packages))
		tableWriter := tabwriter.NewWriter(&builder, 0, 0, tabwriterPaddingConstant, ' ', 0)
		fmt.Fprint(tableWriter, graphPackageHeaderConstant)
		for _, node := range workspaceGraph.Packages {
			fmt.Fprintf(tableWriter, graphPackageRowTemplateConstant, node.Name, placeholder(node.Version), displayRoot(node.Path), joinOrPlaceholder(node.Dependencies), joinOrPlaceholder(node.Dependents))
		}
		if flushError := tableWriter.Flush(); flushError != nil {
			return flushError
		}
		if len(workspaceGraph.Cycles) > 0 {
			builder.WriteString(graphBuildOrderBlockedConstant)
			for _, cycle := range workspaceGraph.Cycles {
				fmt.Fprintf(&builder, graphCycleTemplateConstant, cycle.String())
			}
		} else {
			fmt.Fprintf(&builder, graphBuildOrderTemplateConstant, joinOrPlaceholder(workspaceGraph.BuildOrder))
		}
	}

	if query := graphReport.Query; query != nil {
		if len(query.Path) == 0 {
			fmt.Fprintf(&builder, graphNoPathTemplateConstant, query.From, query.To)
		} else {
			fmt.Fprintf(&builder, graphPathTemplateConstant, query.From, query.To, query.Workspace, strings.Join(query.Path, graphPathSeparatorConstant))
		}
	}

	stats := graphReport.Stats
	fmt.Fprintf(&builder, graphTotalsTemplateConstant, stats.Workspaces, stats.Packages, stats.Dependencies, stats.Cycles)

	if len(graphReport.Problems) > 0 {
		fmt.Fprintf(&builder, textSectionTemplateConstant, textProblemSectionTitleConstant)
		for _, problem := range graphReport.Problems {
			fmt.Fprintf(&builder, textProblemTemplateConstant, problem.Kind, problemLocation(problem), problem.Message)
		}
	}

	_, writeError := io.WriteString(writer, builder.String())
	return writeError
}
