package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claude/posereps/internal/localstore"
	"github.com/claude/posereps/internal/protocol"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List sessions recorded by replay, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyDir == "" {
			return fmt.Errorf("no history directory configured")
		}
		store, err := localstore.Open(historyDir)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No sessions recorded yet.")
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, e := range entries {
			s := e.Summary
			fmt.Printf("%s  %s  %-14s patient=%s  reps=%d good=%d avg=%s  score=%s\n",
				cyan(s.StartedAt.Local().Format("2006-01-02 15:04")),
				s.SessionID.String()[:8],
				s.ExerciseID,
				s.PatientID,
				s.TotalReps, s.GoodReps,
				protocol.FormatRepTime(s.AverageRepDuration),
				yellow(fmt.Sprintf("%.0f", s.Score)),
			)
			if e.Source != "" {
				fmt.Printf("    source %s (%s)\n", e.Source, e.SourceHash[:min(12, len(e.SourceHash))])
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of sessions to show")
	rootCmd.AddCommand(historyCmd)
}
