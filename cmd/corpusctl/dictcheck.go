package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/honggfuzz-go/corpus/internal/config"
	"github.com/honggfuzz-go/corpus/internal/dict"
)

// newDictCheckCmd creates the dict-check subcommand: parses a dictionary
// file and prints the decoded entries, a smoke test for §4.6.
func newDictCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dict-check <file>",
		Short: "Parse a dictionary file and print its decoded entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDictCheck(args[0])
		},
	}
}

func runDictCheck(path string) error {
	mutate := &config.MutateConfig{}
	if err := dict.Load(path, mutate); err != nil {
		return err
	}

	fmt.Printf("entries: %d\n", mutate.DictionaryCnt)
	for i, e := range mutate.Dictionary {
		fmt.Printf("  [%d] %q (%d bytes)\n", i, e.Val, e.Len)
	}
	return nil
}
