package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/honggfuzz-go/corpus/internal/blacklist"
	"github.com/honggfuzz-go/corpus/internal/config"
)

// newBlacklistCheckCmd creates the blacklist-check subcommand: parses a
// stack-hash blacklist and reports its count, a smoke test for §4.7.
func newBlacklistCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blacklist-check <file>",
		Short: "Parse a stack-hash blacklist and report its entry count",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runBlacklistCheck(args[0])
		},
	}
}

func runBlacklistCheck(path string) error {
	feedback := &config.FeedbackConfig{}
	if err := blacklist.Load(path, feedback); err != nil {
		return err
	}
	fmt.Printf("entries: %d\n", feedback.BlacklistCnt)
	return nil
}
