package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/claude/posereps/internal/exercise"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	definitionsFile string
	historyDir      string
)

var rootCmd = &cobra.Command{
	Use:           "posereps-cli",
	Short:         "Replay landmark recordings, stream frames and inspect PoseReps history",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&definitionsFile, "definitions", "", "TOML file with extra or overriding exercise definitions")
	rootCmd.PersistentFlags().StringVar(&historyDir, "history", defaultHistoryDir(), "directory holding the local session history (empty disables recording)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultHistoryDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".posereps")
}

// loadRegistry returns the built-in exercises merged with the definitions file, if any.
func loadRegistry() (*exercise.Registry, error) {
	reg := exercise.Default()
	if definitionsFile == "" {
		return reg, nil
	}
	defs, err := exercise.LoadFile(definitionsFile)
	if err != nil {
		return nil, err
	}
	return reg.Merge(defs...)
}
