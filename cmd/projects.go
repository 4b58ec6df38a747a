package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

var (
	statsProjectID  string
	deleteYes       bool
	symbolsLanguage string
)

// ErrUnhealthy is returned by the health command when a component failed.
var ErrUnhealthy = errors.New("one or more components are unhealthy")

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage indexed projects",
	RunE:  withEngine(listProjects),
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed projects with their row counts",
	Args:  cobra.NoArgs,
	RunE:  withEngine(listProjects),
}

var projectsInfoCmd = &cobra.Command{
	Use:   "info <project-id>",
	Short: "Show a project, its counts and live git state",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		info, err := a.indexer.ProjectInfo(ctx, args[0])
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, info)
		}
		p := info.Project
		heading(w, "Project "+p.ID)
		field(w, "Name", p.Name)
		field(w, "Path", p.Path)
		field(w, "Symbols", info.Counts.Symbols)
		field(w, "Files", info.Counts.Files)
		field(w, "Relationships", info.Counts.Relationships)
		field(w, "Embeddings", info.Counts.Embeddings)
		if !p.LastScanTime.IsZero() {
			field(w, "Last scan", p.LastScanTime.Format(time.RFC3339))
		}
		if p.LastScanCommit != "" {
			field(w, "Scan commit", shortHash(p.LastScanCommit)+" "+p.LastScanBranch)
		}
		if g := info.Git; g != nil {
			state := paint(colorGreen, "clean")
			if g.Dirty {
				state = paint(colorYellow, "dirty")
			}
			field(w, "HEAD", shortHash(g.Head)+" "+g.Branch+" "+state)
			if g.Error != "" {
				field(w, "Git error", paint(colorRed, g.Error))
			}
		}
		return nil
	}),
}

var projectsFilesCmd = &cobra.Command{
	Use:   "files <project-id>",
	Short: "List the indexed files of a project with their symbol counts",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		files, err := a.indexer.ProjectFiles(ctx, args[0])
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, files)
		}
		heading(w, fmt.Sprintf("Files of %s (%d)", files.ProjectID, files.TotalFiles))
		for _, f := range files.Files {
			fmt.Fprintf(w, "  %s %s %d symbols\n", location(f.FilePath, 0), paint(colorGray, f.Language), f.Symbols)
		}
		return nil
	}),
}

var projectsSymbolsCmd = &cobra.Command{
	Use:   "symbols <project-id>",
	Short: "List the symbols of a project, optionally for one language",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		symbols, err := a.indexer.ProjectSymbols(ctx, args[0], symbolsLanguage)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, symbols)
		}
		title := fmt.Sprintf("Symbols of %s (%d)", symbols.ProjectID, symbols.TotalSymbols)
		if symbols.Language != "" {
			title = fmt.Sprintf("%s symbols of %s (%d)", symbols.Language, symbols.ProjectID, symbols.TotalSymbols)
		}
		heading(w, title)
		for _, sym := range symbols.Symbols {
			fmt.Fprintf(w, "  %s %s %s\n", paint(colorGreen, sym.Name), paint(colorGray, sym.SymbolType),
				location(sym.FilePath, sym.LineStart))
		}
		return nil
	}),
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and every row it owns",
	Args:  cobra.ExactArgs(1),
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		if !deleteYes {
			return fmt.Errorf("refusing to delete %s without --yes", args[0])
		}
		res, err := a.indexer.DeleteProject(ctx, args[0])
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, res)
		}
		if !res.ProjectRemoved {
			fmt.Fprintf(w, "%s project %s was not indexed\n", paint(colorYellow, "warning:"), args[0])
			return nil
		}
		fmt.Fprintf(w, "Deleted %s: %d symbols, %d files, %d relationships, %d embeddings\n",
			args[0], res.Symbols, res.Files, res.Relationships, res.Embeddings)
		return nil
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		st, err := a.indexer.Stats(ctx, statsProjectID)
		if err != nil {
			return err
		}
		if rootJSON {
			return writeJSON(w, st)
		}
		title := "Index Statistics"
		if statsProjectID != "" {
			title += " for " + statsProjectID
		}
		heading(w, title)
		field(w, "Symbols", st.TotalSymbols)
		field(w, "Embedded", st.SymbolsWithEmbeddings)
		field(w, "Files", st.TotalFiles)
		field(w, "Relationships", st.TotalRelationships)
		field(w, "Vectors", fmt.Sprintf("%s (%d loaded)", st.VectorBackend, st.IndexedVectors))
		if st.EmbeddingModel != "" {
			field(w, "Embeddings", st.EmbeddingModel)
		}
		printCounts(w, "Languages", st.Languages)
		printCounts(w, "Relationship types", st.RelationshipTypes)
		return nil
	}),
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check every component without modifying anything",
	Args:  cobra.NoArgs,
	RunE: withEngine(func(ctx context.Context, w io.Writer, a *app, args []string) error {
		h := a.indexer.Health(ctx)
		if rootJSON {
			if err := writeJSON(w, h); err != nil {
				return err
			}
		} else {
			heading(w, "Health")
			for _, c := range []struct{ name, status string }{
				{"Database", h.Database},
				{"Embedder", h.Embedder},
				{"Parser", h.Parser},
				{"Vector index", h.VectorBackend},
			} {
				color := colorGreen
				if c.status != "healthy" {
					color = colorYellow
				}
				field(w, c.name, paint(color, c.status))
			}
			if len(h.Grammars) > 0 {
				field(w, "Grammars", h.Grammars)
			}
		}
		if !h.Healthy {
			return ErrUnhealthy
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(projectsCmd, statsCmd, healthCmd)
	projectsCmd.AddCommand(projectsListCmd, projectsInfoCmd, projectsFilesCmd, projectsSymbolsCmd, projectsDeleteCmd)

	projectsSymbolsCmd.Flags().StringVar(&symbolsLanguage, "language", "", "Restrict to one language")

	projectsDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "Confirm deletion")
	statsCmd.Flags().StringVarP(&statsProjectID, "project", "p", "", "Restrict to one project")
}

func listProjects(ctx context.Context, w io.Writer, a *app, _ []string) error {
	projects, err := a.indexer.ListProjects(ctx)
	if err != nil {
		return err
	}
	if rootJSON {
		return writeJSON(w, projects)
	}
	heading(w, fmt.Sprintf("Projects (%d)", len(projects)))
	for _, p := range projects {
		scanned := "never"
		if !p.LastScanTime.IsZero() {
			scanned = p.LastScanTime.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s %s\n", paint(colorGreen, p.ID), paint(colorGray, p.Path))
		fmt.Fprintf(w, "  %d symbols, %d files, %d relationships, last scan %s\n",
			p.Symbols, p.Files, p.Relationships, scanned)
	}
	return nil
}

func printCounts(w io.Writer, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, paint(colorBold, title))
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", k, counts[k])
	}
}
