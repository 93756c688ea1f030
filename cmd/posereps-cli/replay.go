package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/localstore"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/pose"
	"github.com/claude/posereps/internal/protocol"
	"github.com/claude/posereps/internal/rep"
	"github.com/claude/posereps/internal/session"
)

var (
	replayExercise      string
	replaySource        string
	replayPatient       string
	replayMinVisibility float64
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Count and score reps in a JSON-lines landmark recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		def, err := reg.Lookup(replayExercise)
		if err != nil {
			return err
		}
		frames, err := pose.LoadRecording(replaySource, replayMinVisibility)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("%s %s (%d frames)\n\n", cyan("Replaying"), replaySource, len(frames))
		rec := replayRecording(def, replayPatient, frames, time.Now().UTC(), func(r models.RepResult) {
			verdict := green("GOOD")
			if !r.Good {
				verdict = red("BAD ")
			}
			fmt.Printf("  rep %-3d %s  %-20s %6s  range %5.1f..%5.1f  quality %5.1f\n",
				r.Number, verdict, r.Feedback, protocol.FormatRepTime(r.Duration),
				r.Metrics.MinAngle, r.Metrics.MaxAngle, r.Quality)
		})

		printSummary(rec.Summary)

		if historyDir == "" {
			return nil
		}
		store, err := localstore.Open(historyDir)
		if err != nil {
			return err
		}
		defer store.Close()
		hash, err := localstore.HashFile(replaySource)
		if err != nil {
			return fmt.Errorf("hashing %s: %w", replaySource, err)
		}
		if err := store.RecordReplay(cmd.Context(), rec, replaySource, hash); err != nil {
			return err
		}
		fmt.Printf("\n%s %s\n", cyan("Recorded as"), rec.Summary.SessionID)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayExercise, "exercise", "e", "curl", "exercise id")
	replayCmd.Flags().StringVarP(&replaySource, "source", "s", "", "landmark recording (.jsonl)")
	replayCmd.Flags().StringVarP(&replayPatient, "patient", "p", "local", "patient id stored with the session")
	replayCmd.Flags().Float64Var(&replayMinVisibility, "min-visibility", 0.5, "drop landmarks below this visibility")
	_ = replayCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(replayCmd)
}

// replayRecording runs frames through the rep machine as if they had been
// captured from started on. onRep is called for every completed rep.
func replayRecording(def exercise.Definition, patientID string, frames []pose.RecordedFrame, started time.Time, onRep func(models.RepResult)) models.SessionRecord {
	m := rep.NewMachine(def)
	var (
		results []models.RepResult
		ended   = started
	)
	for _, f := range frames {
		at := started.Add(f.Offset)
		ended = at
		s, err := rep.Measure(def, models.NewPoseFrame(at, f.Landmarks))
		if errors.Is(err, rep.ErrMissingLandmark) {
			continue
		}
		if r, done := m.Observe(s); done {
			results = append(results, r)
			if onRep != nil {
				onRep(r)
			}
		}
	}

	summary := session.Summarize(session.Summary{
		ID:         uuid.New(),
		ExerciseID: def.ID,
		PatientID:  patientID,
		StartedAt:  started,
	}, results, ended, models.EndClientClosed)
	return models.SessionRecord{Summary: summary, Reps: results}
}

func printSummary(s models.SessionSummary) {
	bold := color.New(color.Bold).SprintFunc()
	scoreColor := color.New(color.FgGreen)
	switch {
	case s.Score < 50:
		scoreColor = color.New(color.FgRed)
	case s.Score < 80:
		scoreColor = color.New(color.FgYellow)
	}
	fmt.Printf("\n%s\n", bold("Session summary"))
	fmt.Printf("  Exercise:      %s\n", s.ExerciseID)
	fmt.Printf("  Total reps:    %d\n", s.TotalReps)
	fmt.Printf("  Good reps:     %d\n", s.GoodReps)
	fmt.Printf("  Avg rep time:  %s\n", protocol.FormatRepTime(s.AverageRepDuration))
	fmt.Printf("  Quality:       %s\n", scoreColor.Sprintf("%.1f%%", s.Score))
}
