package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emilylaguna/codebase-analyzer-mcp/core/graph"
	"github.com/emilylaguna/codebase-analyzer-mcp/core/query"
)

// =============================================================================
// Query Command Flags
// =============================================================================

var (
	queryProjectID string
	queryRelType   string
	queryDirection string
	queryMaxDepth  int
	queryDepth     int
	queryLanguage  string
	queryLimit     int
)

// =============================================================================
// Commands
// =============================================================================

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the code graph",
	Long: `Query the code graph of indexed projects.

Examples:
  codebase-analyzer query callers parseConfig -p api
  codebase-analyzer query implementations Handler -p api
  codebase-analyzer query relationships Server --direction outgoing
  codebase-analyzer query deps -p api --json
  codebase-analyzer query search semantic "retry with backoff" -p api`,
}

var queryCallersCmd = &cobra.Command{
	Use:   "callers <function>",
	Short: "List the symbols that call a function",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		results, err := a.engine.FindCallers(ctx, args[0], queryProjectID)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, results)
		}
		heading(w, fmt.Sprintf("Callers of %s (%d)", args[0], len(results)))
		for _, r := range results {
			fmt.Fprintf(w, "%s %s %s\n", paint(colorGreen, r.CallerName), paint(colorGray, r.CallerType),
				location(r.CallerFile, r.Data.Line))
		}
		return nil
	}),
}

var queryImplementationsCmd = &cobra.Command{
	Use:   "implementations <type>",
	Short: "List the types that implement, extend or inherit a type",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		results, err := a.engine.FindImplementations(ctx, args[0], queryProjectID)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, results)
		}
		heading(w, fmt.Sprintf("Implementations of %s (%d)", args[0], len(results)))
		for _, r := range results {
			fmt.Fprintf(w, "%s %s %s\n", paint(colorGreen, r.ImplementationName), paint(colorGray, r.RelationshipType),
				location(r.ImplementationFile, r.ImplementationLine))
		}
		return nil
	}),
}

var queryRelationshipsCmd = &cobra.Command{
	Use:   "relationships <symbol>",
	Short: "List the relationships of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		res, err := a.engine.SymbolRelationships(ctx, args[0], queryRelType, graph.ParseDirection(queryDirection), queryProjectID)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, res)
		}
		heading(w, fmt.Sprintf("Relationships of %s (%d)", res.SymbolName, res.TotalRelationships))
		for _, r := range res.Relationships {
			arrow := "->"
			if r.Direction == graph.DirectionIncoming {
				arrow = "<-"
			}
			fmt.Fprintf(w, "%s %s %s %s %s\n", r.Symbol.Name, arrow, paint(colorBlue, r.Type),
				paint(colorGreen, r.Related.Name), location(r.Related.File, r.Related.Line))
		}
		return nil
	}),
}

var queryDepsCmd = &cobra.Command{
	Use:   "deps",
	Short: "Show the dependency graph and its cycles",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		g, err := a.engine.DependencyGraph(ctx, queryProjectID, queryMaxDepth)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, g)
		}
		heading(w, "Dependency Graph")
		field(w, "Nodes", g.TotalNodes)
		field(w, "Edges", g.TotalEdges)
		field(w, "Cycles", len(g.Cycles))
		for _, cycle := range g.Cycles {
			fmt.Fprintf(w, "  %s\n", paint(colorYellow, strings.Join(cycle, " -> ")))
		}
		return nil
	}),
}

var queryHierarchyCmd = &cobra.Command{
	Use:   "hierarchy <function>",
	Short: "Show the direct callers and callees of a function",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		h, err := a.engine.CallHierarchy(ctx, args[0], queryProjectID, queryDepth)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, h)
		}
		heading(w, "Call Hierarchy of "+h.FunctionName)
		printRefs(w, "Callers", h.Callers)
		printRefs(w, "Callees", h.Callees)
		return nil
	}),
}

// =============================================================================
// Search
// =============================================================================

var querySearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search symbols by name, meaning or text",
}

var querySearchNameCmd = &cobra.Command{
	Use:   "name <text>",
	Short: "Find symbols whose name contains text",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		results, err := a.engine.SearchByName(ctx, args[0], queryLanguage, queryProjectID, queryLimit)
		if err != nil {
			return err
		}
		return printSearch(w, &query.SearchResult{Query: args[0], Results: results})
	}),
}

var querySearchSemanticCmd = &cobra.Command{
	Use:   "semantic <text>",
	Short: "Rank symbols by embedding similarity to text",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		res, err := a.engine.SearchSemanticText(ctx, args[0], queryLimit, queryProjectID)
		if err != nil {
			return err
		}
		return printSearch(w, res)
	}),
}

var querySearchTextCmd = &cobra.Command{
	Use:   "text <text>",
	Short: "Full-text search over symbol names and code",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		if err := a.syncTextIndex(ctx, queryProjectID); err != nil {
			return err
		}
		res, err := a.engine.SearchText(ctx, args[0], queryProjectID, queryLimit)
		if err != nil {
			return err
		}
		return printSearch(w, res)
	}),
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.AddCommand(queryCallersCmd, queryImplementationsCmd, queryRelationshipsCmd,
		queryDepsCmd, queryHierarchyCmd, querySearchCmd)
	querySearchCmd.AddCommand(querySearchNameCmd, querySearchSemanticCmd, querySearchTextCmd)

	queryCmd.PersistentFlags().StringVarP(&queryProjectID, "project", "p", "", "Restrict to one project (default: all)")

	queryRelationshipsCmd.Flags().StringVarP(&queryRelType, "type", "t", "", "Relationship type filter (calls, inherits, ...)")
	queryRelationshipsCmd.Flags().StringVarP(&queryDirection, "direction", "d", "both", "incoming, outgoing or both")
	queryDepsCmd.Flags().IntVar(&queryMaxDepth, "max-depth", 3, "Maximum depth (reported, not enforced)")
	queryHierarchyCmd.Flags().IntVar(&queryDepth, "depth", 2, "Depth (reported, one hop is returned)")

	querySearchCmd.PersistentFlags().IntVarP(&queryLimit, "limit", "n", 10, "Maximum results")
	querySearchNameCmd.Flags().StringVarP(&queryLanguage, "language", "l", "", "Language filter")
}

// withEngine opens the app for the duration of one query command.
func withEngine(run func(ctx context.Context, w io.Writer, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		a, err := openApp(ctx, cmd, "")
		if err != nil {
			return err
		}
		defer a.close()
		return run(ctx, cmd.OutOrStdout(), a, args)
	}
}

func location(file string, line int) string {
	if line <= 0 {
		return paint(colorGray, file)
	}
	return paint(colorGray, fmt.Sprintf("%s:%d", file, line))
}

func printRefs(w io.Writer, title string, refs []query.SymbolRef) {
	fmt.Fprintf(w, "%s (%d)\n", paint(colorBold, title), len(refs))
	for _, r := range refs {
		fmt.Fprintf(w, "  %s %s %s\n", paint(colorGreen, r.Name), paint(colorGray, r.Type), location(r.File, r.Line))
	}
}

func printSearch(w io.Writer, res *query.SearchResult) error {
	if rootJSON {
		return writeJSON(w, res)
	}
	heading(w, fmt.Sprintf("Results for %q (%d)", res.Query, len(res.Results)))
	if res.Degraded {
		fmt.Fprintln(w, paint(colorYellow, "degraded: "+res.Reason))
	}
	for _, r := range res.Results {
		score := ""
		if r.Score != 0 {
			score = fmt.Sprintf(" %.3f", r.Score)
		}
		fmt.Fprintf(w, "%s %s%s %s\n", paint(colorGreen, r.Name), paint(colorGray, r.SymbolType), score,
			location(r.FilePath, r.LineStart))
	}
	return nil
}
