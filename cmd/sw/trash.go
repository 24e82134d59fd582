package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sortwatch/sortwatch/internal/display"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Inspect and restore trashed files",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trashed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := os.ReadDir(cfg.TrashDir())
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Println("trash is empty")
				return nil
			}
			return err
		}
		if len(entries) == 0 {
			fmt.Println("trash is empty")
			return nil
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() > entries[j].Name() })

		display.Header("Trash")
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			fmt.Printf("  %s  %s\n", display.Bold.Render(e.Name()),
				display.Muted.Render(display.HumanSize(info.Size())))
		}
		return nil
	},
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <name> <destination>",
	Short: "Move a trashed file back out",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := filepath.Join(cfg.TrashDir(), args[0])
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("no trashed file named %q", args[0])
		}
		dest := args[1]
		if info, err := os.Stat(dest); err == nil && info.IsDir() {
			dest = filepath.Join(dest, args[0])
		}
		if _, err := os.Stat(dest); err == nil {
			return fmt.Errorf("destination %s already exists", dest)
		}
		if err := os.Rename(src, dest); err != nil {
			return err
		}
		display.SuccessMsg("restored to %s", dest)
		return nil
	},
}

func init() {
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd)
	rootCmd.AddCommand(trashCmd)
}
