package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sortwatch/sortwatch/internal/display"
	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/logging"
	"github.com/sortwatch/sortwatch/internal/pending"
	"github.com/sortwatch/sortwatch/internal/router"
	"github.com/sortwatch/sortwatch/internal/types"
)

var askYes bool

var askCmd = &cobra.Command{
	Use:   "ask <request...>",
	Short: "Run a one-off request against the file tools",
	Long: `Profiles the request, picks a model tier for it, and runs it through the
file tool loop. Deletions the model asks for are queued, listed, and only
performed after you approve them; approved files go to the sortwatch trash,
not to oblivion.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		request := strings.Join(args, " ")

		client, err := newAIClient(ctx)
		if err != nil {
			return err
		}

		models := router.Models{
			Minimal:  cfg.AI.MinimalModel,
			Balanced: cfg.AI.BalancedModel,
			Maximum:  cfg.AI.MaximumModel,
		}
		rt := router.New(client, models, metrics, logging.Named("router"))

		bus := events.NewBus()
		queue := pending.NewQueue(cfg.TrashDir(), bus, logging.Named("pending"), func(a types.PendingAction, outcome string, err error) {
			if auditErr := db.AppendPendingAudit(a, outcome, err); auditErr != nil {
				logging.Named("pending").Warn("audit write failed")
			}
		})
		exec := router.NewExecutor(rt, queue, bus, logging.Named("executor"))

		res, err := exec.Execute(ctx, request)
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"answer":    res.Answer,
				"tier":      res.Tier,
				"escalated": res.Escalated,
				"rounds":    res.Rounds,
				"pending":   queue.List(),
			})
		}

		fmt.Println(res.Answer)
		if !quietFlag {
			note := fmt.Sprintf("tier=%s rounds=%d", res.Tier, res.Rounds)
			if res.Escalated {
				note += " (escalated)"
			}
			display.SubHeader(note)
		}

		return approvePending(queue)
	},
}

// approvePending lists queued destructive operations and asks before running
// them. Declining keeps every file untouched.
func approvePending(queue *pending.Queue) error {
	actions := queue.List()
	if len(actions) == 0 {
		return nil
	}

	display.Header(fmt.Sprintf("%d pending operation(s)", len(actions)))
	for i, a := range actions {
		display.PendingLine(i+1, string(a.Kind), a.FileName, a.Reason, a.Size)
	}

	if !askYes {
		fmt.Print("Execute? Files are moved to trash, not erased. [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			kept := queue.KeepAll()
			display.SuccessMsg("kept %d file(s), nothing changed", kept)
			return nil
		}
	}

	results := queue.ExecuteAll()
	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			display.ErrorMsg("%s: %s", r.ID, r.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d operation(s) failed and stay queued", failed, len(results))
	}
	display.SuccessMsg("executed %d operation(s)", len(results))
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show session model usage",
	Run: func(cmd *cobra.Command, args []string) {
		m := metrics.Snapshot()
		fmt.Printf("calls %d, prompt tokens %d, output tokens %d, escalations %d, failures %d\n",
			m.Calls, m.PromptTokens, m.OutputTokens, m.Escalations, m.Failures)
	},
}

func init() {
	askCmd.Flags().BoolVarP(&askYes, "yes", "y", false, "Execute pending operations without prompting")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(statsCmd)
}
