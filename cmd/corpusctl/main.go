package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "corpusctl",
		Short:   "Exercise the corpus engine's seed/dictionary/blacklist loaders",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newSeedStatsCmd())
	root.AddCommand(newDictCheckCmd())
	root.AddCommand(newBlacklistCheckCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
