package main

import (
	"fmt"
	"strings"
	"time"

	"ontoforge/internal/graph"
	"ontoforge/internal/retrieval"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	queryOutcome    string
	entitiesOutcome string
	runsLimit       int
)

// queryCmd runs one structured query against the compiled graph
var queryCmd = &cobra.Command{
	Use:   "query [goal]",
	Short: "Query the compiled ontology graph directly",
	Long: `Runs a single Datalog goal against the newest build outcome (or the
one given with --outcome), without involving the model.

Examples:
  onto query 'instance_of(X, "Color")'
  onto query 'value_of("Yellow", P, V)'
  onto query 'member_of(X, "Product")'`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

// entitiesCmd prints the entities index of an outcome
var entitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "Print the entities index of a build outcome",
	RunE:  runEntities,
}

// runsCmd lists archived runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived build and retrieval runs",
	RunE:  runRuns,
}

func init() {
	queryCmd.Flags().StringVar(&queryOutcome, "outcome", "", "Outcome directory to load (default: newest)")
	entitiesCmd.Flags().StringVar(&entitiesOutcome, "outcome", "", "Outcome directory to load (default: newest)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list (0 for all)")
}

func loadOutcome(flagValue string) (*retrieval.Artifacts, error) {
	dir := flagValue
	if dir == "" {
		var err error
		dir, err = retrieval.LatestOutcome(workspacePath(cfg.Store.OutcomesDir))
		if err != nil {
			return nil, err
		}
	}
	return retrieval.LoadArtifacts(dir)
}

func runQuery(cmd *cobra.Command, args []string) error {
	art, err := loadOutcome(queryOutcome)
	if err != nil {
		return err
	}

	eng, err := graph.New(graph.Config{
		FactLimit:    cfg.Graph.FactLimit,
		QueryTimeout: cfg.GetQueryTimeout(),
	})
	if err != nil {
		return err
	}
	if err := eng.AddFacts(art.Facts); err != nil {
		return err
	}
	stats := eng.GetStats()
	logger.Debug("Graph loaded", zap.Int("facts", stats.TotalFacts))

	res, err := eng.Query(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Println(res.Format())
	fmt.Println(mutedStyle.Render(fmt.Sprintf("%d rows in %s over %d facts",
		len(res.Rows), res.Duration.Round(time.Millisecond), stats.TotalFacts)))
	return nil
}

func runEntities(cmd *cobra.Command, args []string) error {
	art, err := loadOutcome(entitiesOutcome)
	if err != nil {
		return err
	}
	data, err := art.Index.MarshalJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	runs, err := archive.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println(mutedStyle.Render("No archived runs."))
		return nil
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-36s  %-9s  %-8s  %6s  %6s  %s", "ID", "PHASE", "OUTCOME", "TURNS", "TOOLS", "STARTED")))
	for _, r := range runs {
		line := fmt.Sprintf("%-36s  %-9s  %-8s  %6d  %6d  %s",
			r.ID, r.Phase, r.Outcome, r.Turns, r.ToolCalls,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if r.Outcome == "failed" {
			line += "  " + warnStyle.Render(truncate(r.Error, 60))
		}
		fmt.Println(line)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
