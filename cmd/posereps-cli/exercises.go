package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/claude/posereps/internal/exercise"
)

var exercisesCmd = &cobra.Command{
	Use:   "exercises",
	Short: "List the exercise registry",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := loadRegistry()
		if err != nil {
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		for _, def := range reg.List() {
			fmt.Printf("%s  %s\n", green(def.ID), def.Name)
			fmt.Print(describeDefinition(def))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exercisesCmd)
}

func describeDefinition(def exercise.Definition) string {
	if def.Kind == exercise.KindLateralDeviation {
		d := def.Deviation
		return fmt.Sprintf("    %s vs midpoint of %s/%s, turn %.3f, neutral %.3f, min reach %.3f\n",
			d.Marker, d.Left, d.Right, d.TurnThreshold, d.NeutralBand, def.ROMMinThreshold)
	}
	out := fmt.Sprintf("    %s-%s-%s (%s) up %.0f down %.0f rom %.0f/%.0f\n",
		def.Primary.A, def.Primary.Vertex, def.Primary.C, def.Direction,
		def.StateUpThreshold, def.StateDownThreshold, def.ROMMinThreshold, def.ROMMaxThreshold)
	if s := def.Stability; s != nil {
		out += fmt.Sprintf("    stability: %s within %.2f of %s-%s\n", s.Landmark, s.Threshold, s.ReferenceFrom, s.ReferenceTo)
	}
	if a := def.Auxiliary; a != nil {
		out += fmt.Sprintf("    auxiliary: %s-%s-%s at least %.0f\n", a.Triad.A, a.Triad.Vertex, a.Triad.C, a.MinAngle)
	}
	return out
}
