package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sortwatch/sortwatch/internal/auth"
	"github.com/sortwatch/sortwatch/internal/display"
	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/gmail"
	"github.com/sortwatch/sortwatch/internal/logging"
	"github.com/sortwatch/sortwatch/internal/mailwatch"
	"github.com/sortwatch/sortwatch/internal/rules"
	"github.com/sortwatch/sortwatch/internal/sheets"
	"github.com/sortwatch/sortwatch/internal/store"
	"github.com/sortwatch/sortwatch/internal/types"
)

var (
	mailName       string
	mailAccount    string
	mailPoll       int
	mailRules      []string
	mailCategories []string
	mailActions    []string
	mailLogXLSX    string
	mailLogSheet   string
)

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Manage mailbox watchers",
}

// newMailRegistry wires the mail watcher engine for this process.
func newMailRegistry(ctx context.Context, bus *events.Bus) (*mailwatch.Registry, error) {
	client, err := newAIClient(ctx)
	if err != nil {
		return nil, err
	}
	eval := rules.New(client, cfg.AI.MinimalModel, logging.Named("rules"))

	providers := func(ctx context.Context, account string) (mailwatch.Provider, error) {
		creds := credentialsPath(account)
		if err := auth.Available(creds); err != nil {
			return nil, err
		}
		svc, err := auth.LoadGmailService(ctx, creds)
		if err != nil {
			return nil, err
		}
		return gmail.NewClient(svc), nil
	}

	sinks := func(target types.LogTarget) (sheets.Sink, error) {
		switch target.Kind {
		case types.LogTargetLocalXLSX:
			if target.Path == "" {
				return nil, fmt.Errorf("local log target has no path")
			}
			return sheets.NewLocalWorkbook(target.Path, target.Sheet), nil
		case types.LogTargetRemoteSheet:
			creds := credentialsPath("")
			svc, err := auth.LoadSheetsService(ctx, creds)
			if err != nil {
				return nil, err
			}
			return sheets.NewRemoteSheet(svc, target.SpreadsheetTitle, target.Sheet, cfg.DataDir), nil
		default:
			return nil, fmt.Errorf("unknown log target kind %q", target.Kind)
		}
	}

	limits := mailwatch.Limits{
		MaxWatchers:    cfg.Limits.MaxMailWatchers,
		MinPoll:        cfg.MinPoll(),
		ProcessedIDCap: cfg.Limits.ProcessedIDCap,
		ActivityCap:    cfg.Limits.ActivityCap,
		MatchCap:       cfg.Limits.MatchCap,
	}
	return mailwatch.NewRegistry(limits, providers, sinks, eval, db, bus, logging.Named("mailwatch")), nil
}

var mailAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a mailbox watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		if mailName == "" {
			return fmt.Errorf("--name is required")
		}
		if len(mailRules) == 0 {
			return fmt.Errorf("at least one --rule is required")
		}

		mcfg := types.MailWatcherConfig{
			Name:        mailName,
			Account:     mailAccount,
			PollSeconds: mailPoll,
			Rules:       mailRules,
			IsActive:    false, // armed by `sw mail start`
		}
		for _, c := range mailCategories {
			c = strings.ToLower(strings.TrimSpace(c))
			if !types.IsValidCategory(c) {
				return fmt.Errorf("unknown category %q (valid: %s)", c, strings.Join(types.ValidCategories, ", "))
			}
			mcfg.Categories = append(mcfg.Categories, c)
		}

		actions, err := parseCategoryActions(mailActions)
		if err != nil {
			return err
		}
		mcfg.CategoryActions = actions

		if mailLogXLSX != "" {
			mcfg.LogTargets = append(mcfg.LogTargets, types.LogTarget{
				Kind: types.LogTargetLocalXLSX, Path: mailLogXLSX,
			})
		}
		if mailLogSheet != "" {
			mcfg.LogTargets = append(mcfg.LogTargets, types.LogTarget{
				Kind: types.LogTargetRemoteSheet, SpreadsheetTitle: mailLogSheet,
			})
		}

		reg, err := newMailRegistry(cmd.Context(), nil)
		if err != nil {
			return err
		}
		inst, err := reg.Create(cmd.Context(), mcfg)
		if err != nil {
			return err
		}

		saved, _, _, _ := inst.Snapshot()
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(saved)
		}
		display.SuccessMsg("added watcher %s (%s)", saved.Name, saved.ID)
		return nil
	},
}

var mailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mailbox watchers",
	RunE: func(cmd *cobra.Command, args []string) error {
		states, err := db.LoadWatchers()
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(states)
		}
		if len(states) == 0 {
			fmt.Println("no watchers configured")
			return nil
		}

		display.Header("Mail watchers")
		for _, s := range states {
			state := "paused"
			if s.Config.IsActive {
				state = "active"
			}
			fmt.Printf("  %s %s  %s  every %ds  checked %d, matched %d, errors %d\n",
				display.StateDot(state),
				display.Bold.Render(s.Config.Name),
				display.Muted.Render(display.AccountLabel(s.Config.Account)),
				s.Config.PollSeconds,
				s.Stats.EmailsChecked, s.Stats.MatchesFound, s.Stats.Errors)
			fmt.Printf("    %s\n", display.Dim.Render(s.Config.ID))
		}
		return nil
	},
}

var mailShowCmd = &cobra.Command{
	Use:   "show <watcher-id>",
	Short: "Show one watcher's matches and activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findWatcherState(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(s)
		}

		display.Header(s.Config.Name)
		display.SubHeader(fmt.Sprintf("last checked %s", display.TimeAgo(s.Config.LastChecked)))

		if len(s.Matches) > 0 {
			display.Header("Matches")
			for i, m := range s.Matches {
				connector := "├─"
				if i == len(s.Matches)-1 {
					connector = "└─"
				}
				fmt.Printf("  %s %s %s  %s\n",
					display.Muted.Render(connector),
					display.CategoryLabel(m.Category),
					display.Truncate(m.Subject, 50),
					display.Dim.Render(display.TimeAgo(m.Time)))
			}
		}
		if len(s.Activity) > 0 {
			display.Header("Activity")
			for i, a := range s.Activity {
				connector := "├─"
				if i == len(s.Activity)-1 {
					connector = "└─"
				}
				subject := a.Subject
				if a.Error != "" {
					subject += "  " + display.ErrStyle.Render(a.Error)
				}
				display.ActivityLine(connector, a.Action, subject, a.Time)
			}
		}
		return nil
	},
}

var mailStartCmd = &cobra.Command{
	Use:   "start [watcher-id]",
	Short: "Run mailbox watchers in the foreground",
	Long: `Starts the given watcher (or every watcher marked active) and polls until
interrupted. Pause state is persisted, so a stopped watcher stays stopped
across runs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		bus := events.NewBus()
		reg, err := newMailRegistry(ctx, bus)
		if err != nil {
			return err
		}
		if err := reg.LoadAll(ctx); err != nil {
			return err
		}

		if len(args) == 1 {
			id, err := resolveWatcherID(args[0])
			if err != nil {
				return err
			}
			if err := reg.Start(ctx, id); err != nil {
				return err
			}
		}

		running := 0
		for _, inst := range reg.List() {
			if !inst.Paused() {
				running++
			}
		}
		if running == 0 {
			return fmt.Errorf("no active watchers; use 'sw mail start <id>'")
		}
		if !quietFlag {
			display.SuccessMsg("polling %d watcher(s), ctrl-c to stop", running)
		}

		waitForInterrupt(ctx, bus)
		reg.StopAll()
		return nil
	},
}

var mailRunCmd = &cobra.Command{
	Use:   "run <watcher-id>",
	Short: "Poll one watcher once, right now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := newMailRegistry(ctx, nil)
		if err != nil {
			return err
		}
		if err := reg.LoadAll(ctx); err != nil {
			return err
		}
		id, err := resolveWatcherID(args[0])
		if err != nil {
			return err
		}

		// A paused watcher can still be polled by hand.
		inst, ok := reg.Get(id)
		if !ok {
			return fmt.Errorf("watcher %q not found", id)
		}
		reg.RunOnce(ctx, id)

		_, stats, _, _ := inst.Snapshot()
		if !quietFlag {
			fmt.Printf("checked %d, matched %d, actions %d, errors %d\n",
				stats.EmailsChecked, stats.MatchesFound, stats.ActionsPerformed, stats.Errors)
		}
		return nil
	},
}

var mailStopCmd = &cobra.Command{
	Use:   "stop <watcher-id>",
	Short: "Pause a mailbox watcher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findWatcherState(args[0])
		if err != nil {
			return err
		}
		s.Config.IsActive = false
		if err := db.SaveWatcher(s); err != nil {
			return err
		}
		display.SuccessMsg("paused %s", s.Config.Name)
		return nil
	},
}

var mailRmCmd = &cobra.Command{
	Use:   "rm <watcher-id>",
	Short: "Remove a mailbox watcher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := findWatcherState(args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteWatcher(s.Config.ID); err != nil {
			return err
		}
		display.SuccessMsg("removed %s", s.Config.Name)
		return nil
	},
}

var mailDeleteMsgCmd = &cobra.Command{
	Use:   "delete <watcher-id> <message-id>",
	Short: "Trash a matched message and strip it from the watcher's logs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := newMailRegistry(ctx, nil)
		if err != nil {
			return err
		}
		if err := reg.LoadAll(ctx); err != nil {
			return err
		}
		reg.StopAll()

		id, err := resolveWatcherID(args[0])
		if err != nil {
			return err
		}
		if err := reg.DeleteMessage(ctx, id, args[1], true); err != nil {
			return err
		}
		display.SuccessMsg("deleted %s", args[1])
		return nil
	},
}

// parseCategoryActions parses repeated "category=action[:arg]" flags.
func parseCategoryActions(raw []string) (map[string][]types.ActionSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string][]types.ActionSpec)
	for _, entry := range raw {
		category, action, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("bad --action %q, want category=action[:arg]", entry)
		}
		category = strings.ToLower(strings.TrimSpace(category))
		if !types.IsValidCategory(category) {
			return nil, fmt.Errorf("unknown category %q in --action", category)
		}
		name, arg, _ := strings.Cut(action, ":")
		spec, err := types.ParseActionSpec(strings.ToLower(strings.TrimSpace(name)), strings.TrimSpace(arg))
		if err != nil {
			return nil, err
		}
		out[category] = append(out[category], spec)
	}
	return out, nil
}

// findWatcherState loads one watcher row by id, name, or unambiguous prefix.
func findWatcherState(idOrPrefix string) (*store.WatcherState, error) {
	states, err := db.LoadWatchers()
	if err != nil {
		return nil, err
	}
	var found *store.WatcherState
	for _, s := range states {
		if s.Config.ID == idOrPrefix || s.Config.Name == idOrPrefix {
			return s, nil
		}
		if strings.HasPrefix(s.Config.ID, idOrPrefix) {
			if found != nil {
				return nil, fmt.Errorf("ambiguous watcher id %q", idOrPrefix)
			}
			found = s
		}
	}
	if found == nil {
		return nil, fmt.Errorf("watcher %q not found", idOrPrefix)
	}
	return found, nil
}

func resolveWatcherID(idOrPrefix string) (string, error) {
	s, err := findWatcherState(idOrPrefix)
	if err != nil {
		return "", err
	}
	return s.Config.ID, nil
}

func waitForInterrupt(ctx context.Context, bus *events.Bus) {
	printEvents(ctx, bus)
}

func init() {
	mailAddCmd.Flags().StringVar(&mailName, "name", "", "Watcher name")
	mailAddCmd.Flags().StringVar(&mailAccount, "account", "", "Account label (selects the credentials directory)")
	mailAddCmd.Flags().IntVar(&mailPoll, "poll", 300, "Poll interval in seconds")
	mailAddCmd.Flags().StringArrayVar(&mailRules, "rule", nil, "Classification rule in plain language (repeatable)")
	mailAddCmd.Flags().StringArrayVar(&mailCategories, "category", nil, "Category to act on (repeatable; empty = all)")
	mailAddCmd.Flags().StringArrayVar(&mailActions, "action", nil, "Static action as category=action[:arg] (repeatable)")
	mailAddCmd.Flags().StringVar(&mailLogXLSX, "log-xlsx", "", "Local XLSX workbook to log matches into")
	mailAddCmd.Flags().StringVar(&mailLogSheet, "log-sheet", "", "Remote spreadsheet title to log matches into")

	mailCmd.AddCommand(mailAddCmd, mailListCmd, mailShowCmd, mailStartCmd,
		mailRunCmd, mailStopCmd, mailRmCmd, mailDeleteMsgCmd)
	rootCmd.AddCommand(mailCmd)
}
