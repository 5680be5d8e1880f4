package main

import (
	"fmt"

	"ontoforge/internal/builder"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// buildCmd runs the full build phase over the given sources
var buildCmd = &cobra.Command{
	Use:   "build [sources...]",
	Short: "Build an ontology from source documents",
	Long: `Runs one agent loop per source document to register classes,
properties, and individuals, then compiles the registered entities into
a Datalog fact base.

JSON sources are treated as product taxonomies; everything else as prose.
Artifacts land in .onto/outcomes/<timestamp>/ and the run is archived.

Example:
  onto build taxonomy.json notes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	logger.Info("Build starting",
		zap.Strings("sources", args),
		zap.String("model", cfg.LLM.Model))

	cfgCopy := *cfg
	cfgCopy.Store.OutcomesDir = workspacePath(cfg.Store.OutcomesDir)
	b := builder.New(client, &cfgCopy, archive)

	res, err := b.Build(cmd.Context(), args)
	if err != nil {
		return err
	}

	stats := res.Index.Stats()
	fmt.Println(headerStyle.Render("Build complete"))
	fmt.Printf("  Run:       %s\n", res.RunID)
	fmt.Printf("  Entities:  %d (%d classes, %d properties, %d individuals)\n",
		res.Index.Len(), stats["class"], stats["property"], stats["individual"])
	fmt.Printf("  Facts:     %d\n", len(res.Facts))
	fmt.Printf("  Turns:     %d (%d tool calls)\n", res.Turns, res.ToolCalls)
	fmt.Printf("  Tokens:    %d in / %d out\n", res.Usage.InputTokens, res.Usage.OutputTokens)
	fmt.Printf("  Artifacts: %s\n", res.OutcomeDir)

	if len(res.Warnings) > 0 {
		fmt.Println(warnStyle.Render(fmt.Sprintf("%d integrity warnings:", len(res.Warnings))))
		for _, w := range res.Warnings {
			fmt.Println(warnStyle.Render("  - " + w))
		}
	}
	return nil
}
