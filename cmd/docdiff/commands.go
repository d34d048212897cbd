package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dgallion1/docdiff/internal/differ"
	"github.com/dgallion1/docdiff/internal/parser"
	"github.com/dgallion1/docdiff/internal/pipeline"
	"github.com/dgallion1/docdiff/internal/wikiapi"
	"github.com/spf13/cobra"
)

// dialectFor resolves the --dialect flag, falling back to the extension.
func dialectFor(flag, filename string) (parser.Dialect, error) {
	if flag != "" {
		return parser.ParseDialect(flag)
	}
	if d, err := parser.DialectForFile(filename); err == nil {
		return d, nil
	}
	return parser.Wikitext, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(timeoutFlag)
	if err != nil {
		return fmt.Errorf("invalid --timeout: %w", err)
	}
	dialect, err := dialectFor(dialectFlag, args[1])
	if err != nil {
		return err
	}
	prev, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	curr, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(nil, nil, logger(), maxCellsFlag)
	diff, err := runner.Run(cmd.Context(), pipeline.Request{
		Previous: prev,
		Current:  curr,
		Dialect:  dialect,
		Filename: args[1],
		Timeout:  timeout,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Outcome(err), err)
	}
	return printDiff(cmd, diff)
}

func runRevision(cmd *cobra.Command, args []string) error {
	timeout, err := time.ParseDuration(timeoutFlag)
	if err != nil {
		return fmt.Errorf("invalid --timeout: %w", err)
	}
	if !wikiapi.ValidLang(langFlag) {
		return fmt.Errorf("invalid --lang %q", langFlag)
	}

	wiki := wikiapi.NewClient(apiURLFlag, userAgentFlag, 0, 1)
	defer wiki.Close()

	runner := pipeline.NewRunner(wiki, nil, logger(), maxCellsFlag)
	diff, err := runner.Run(cmd.Context(), pipeline.Request{
		Lang:    langFlag,
		RevID:   revIDFlag,
		Timeout: timeout,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", pipeline.Outcome(err), err)
	}
	return printDiff(cmd, diff)
}

func runTree(cmd *cobra.Command, args []string) error {
	dialect, err := dialectFor(dialectFlag, args[0])
	if err != nil {
		return err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	tree := parser.Build(dialect, data, args[0], logger())
	renderTree(cmd.OutOrStdout(), tree, newPalette(colorEnabled()))
	return nil
}

func printDiff(cmd *cobra.Command, diff *differ.Diff) error {
	out := cmd.OutOrStdout()
	if jsonFlag {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}
	renderDiff(out, diff, newPalette(colorEnabled()))
	return nil
}
