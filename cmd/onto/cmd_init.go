package main

import (
	"fmt"
	"os"
	"path/filepath"

	"ontoforge/internal/config"

	"github.com/spf13/cobra"
)

// initCmd sets up the .onto workspace directory
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize an ontoforge workspace",
	Long: `Creates the .onto/ directory structure and a default config file.

This sets up:
  .onto/config.yaml   workspace configuration
  .onto/logs/         categorized log files
  .onto/outcomes/     build artifacts per run
  .onto/archive.db    run history (created on first run)

Run this once per workspace. Existing config is left untouched.`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	ontoDir := filepath.Join(workspace, ".onto")
	for _, dir := range []string{ontoDir, filepath.Join(ontoDir, "logs"), filepath.Join(ontoDir, "outcomes")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	cfgPath := config.DefaultPath(workspace)
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Println(mutedStyle.Render("Config already exists at " + cfgPath))
		return nil
	}
	if err := config.DefaultConfig().Save(cfgPath); err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Workspace initialized"))
	fmt.Println("  Config written to " + cfgPath)
	fmt.Println("  Set llm.api_key there, or export ANTHROPIC_API_KEY / OPENAI_API_KEY.")
	return nil
}
