package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"ontoforge/internal/retrieval"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	askOutcome   string
	askQuestions string
	askWatch     bool
)

// askCmd answers questions over a compiled ontology
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask questions over a compiled ontology",
	Long: `Loads the newest build outcome (or the one given with --outcome) and
answers questions with an agent restricted to structured graph queries.

Questions come from a positional argument, a JSON file of strings
(--questions), or an interactive prompt when neither is given. With
--watch the compiled graph is reloaded when the artifact changes on
disk, so a rebuild is picked up between questions.

Examples:
  onto ask "Which colors are available?"
  onto ask --questions questions.json
  onto ask --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askOutcome, "outcome", "", "Outcome directory to load (default: newest)")
	askCmd.Flags().StringVar(&askQuestions, "questions", "", "JSON file with an array of questions")
	askCmd.Flags().BoolVar(&askWatch, "watch", false, "Reload the graph when the artifact changes")
}

func runAsk(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	archive, err := openArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	dir := askOutcome
	if dir == "" {
		dir, err = retrieval.LatestOutcome(workspacePath(cfg.Store.OutcomesDir))
		if err != nil {
			return err
		}
	}

	r := retrieval.New(client, cfg, archive)
	if err := r.Load(dir); err != nil {
		return err
	}
	logger.Info("Outcome loaded", zap.String("dir", dir))

	if askWatch {
		watcher, err := r.Watch(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			watcher.Stop()
			if stats := watcher.GetStats(); stats.Reloads > 0 {
				fmt.Println(mutedStyle.Render(fmt.Sprintf("Graph reloaded %d times while watching", stats.Reloads)))
			}
		}()
		if watcher.IsWatching() {
			fmt.Println(mutedStyle.Render("Watching " + dir + " for changes"))
		}
	}

	questions, interactive, err := collectQuestions(args)
	if err != nil {
		return err
	}

	var runErr error
	if interactive {
		runErr = askInteractive(cmd, r)
	} else {
		runErr = askBatch(cmd, r, questions)
	}
	r.Finish(runErr)
	return runErr
}

// collectQuestions resolves the question source. An empty list with
// interactive=true means REPL mode.
func collectQuestions(args []string) ([]string, bool, error) {
	if len(args) == 1 {
		return []string{args[0]}, false, nil
	}
	if askQuestions != "" {
		data, err := os.ReadFile(askQuestions)
		if err != nil {
			return nil, false, fmt.Errorf("read questions file: %w", err)
		}
		var questions []string
		if err := json.Unmarshal(data, &questions); err != nil {
			return nil, false, fmt.Errorf("questions file must be a JSON array of strings: %w", err)
		}
		if len(questions) == 0 {
			return nil, false, fmt.Errorf("questions file is empty")
		}
		return questions, false, nil
	}
	return nil, true, nil
}

func askBatch(cmd *cobra.Command, r *retrieval.Retriever, questions []string) error {
	for _, q := range questions {
		fmt.Println(promptStyle.Render("? " + q))
		ans, err := r.Ask(cmd.Context(), q)
		if err != nil {
			return err
		}
		printAnswer(ans.Text)
	}
	return nil
}

func askInteractive(cmd *cobra.Command, r *retrieval.Retriever) error {
	fmt.Println(headerStyle.Render("ontoforge ask"))
	fmt.Println(mutedStyle.Render("Type a question, or \"exit\" to quit."))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("? "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			continue
		}
		if q == "exit" || q == "quit" {
			return nil
		}
		ans, err := r.Ask(cmd.Context(), q)
		if err != nil {
			return err
		}
		printAnswer(ans.Text)
	}
}

// printAnswer renders the answer as markdown inside a bordered block.
func printAnswer(text string) {
	rendered := text
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err == nil {
		if out, rerr := renderer.Render(text); rerr == nil {
			rendered = strings.TrimRight(out, "\n")
		}
	}
	fmt.Println(answerStyle.Render(rendered))
}
