package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sortwatch/sortwatch/internal/display"
	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/fswatch"
	"github.com/sortwatch/sortwatch/internal/logging"
	"github.com/sortwatch/sortwatch/internal/rules"
	"github.com/sortwatch/sortwatch/internal/types"
)

var (
	watchRules []string
	watchLog   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <folder>",
	Short: "Watch a folder and sort incoming files by rule",
	Long: `Watches a folder for new files. Once a file stops changing it is classified
against the rules and moved (or renamed) accordingly. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if info, err := os.Stat(folder); err != nil || !info.IsDir() {
			return fmt.Errorf("%s is not a directory", folder)
		}
		if len(watchRules) == 0 {
			return fmt.Errorf("at least one --rule is required")
		}

		ctx := cmd.Context()
		client, err := newAIClient(ctx)
		if err != nil {
			return err
		}

		wcfg := types.WatcherConfig{
			Folder:      folder,
			LogActivity: watchLog,
		}
		if watchLog {
			wcfg.LogPath = filepath.Join(folder, ".sortwatch.log")
		}
		for i, text := range watchRules {
			wcfg.Rules = append(wcfg.Rules, types.Rule{
				ID: fmt.Sprintf("r%d", i+1), Text: text, Enabled: true, Order: i,
			})
		}

		eval := rules.New(client, cfg.AI.MinimalModel, logging.Named("rules"))
		bus := events.NewBus()
		watcher := fswatch.New(wcfg, eval, db, bus, logging.Named("fswatch"), cfg.Debounce())

		if err := watcher.Start(ctx); err != nil {
			return err
		}
		if !quietFlag {
			display.SuccessMsg("watching %s (%d rules)", folder, len(wcfg.Rules))
		}

		printEvents(ctx, bus)

		watcher.Stop()
		stats := watcher.Stats()
		if !quietFlag {
			fmt.Printf("seen %d, moved %d, skipped %d, errors %d\n",
				stats.FilesSeen, stats.FilesMoved, stats.Skipped, stats.Errors)
		}
		return nil
	},
}

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show recent file-sorting activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := db.ListFSActivity(50)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no activity yet")
			return nil
		}

		display.Header("Recent activity")
		for i, e := range entries {
			connector := "├─"
			if i == len(entries)-1 {
				connector = "└─"
			}
			line := e.File
			if e.Destination != "" {
				line += " → " + e.Destination
			}
			if e.Error != "" {
				line += "  " + display.ErrStyle.Render(e.Error)
			}
			display.ActivityLine(connector, e.Action, line, e.Time)
		}
		return nil
	},
}

// printEvents mirrors bus events to the terminal until interrupt.
func printEvents(ctx context.Context, bus *events.Bus) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	ch := bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			return
		case e := <-ch:
			if quietFlag {
				continue
			}
			switch e.Kind {
			case events.ItemProcessed:
				display.SuccessMsg("sorted %v", e.Payload)
			case events.Notification:
				fmt.Println(display.Warn.Render("!") + fmt.Sprintf(" %v", e.Payload))
			}
		}
	}
}

func init() {
	watchCmd.Flags().StringArrayVar(&watchRules, "rule", nil, "Sorting rule in plain language (repeatable)")
	watchCmd.Flags().BoolVar(&watchLog, "log", false, "Append an activity log inside the watched folder")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(activityCmd)
}
