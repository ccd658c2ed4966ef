package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conneroisu/devreload/internal/engine"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build the artifacts once without serving",
	Long: `Run the style and render stages once and write styles.css, index.html
and hydrate.js to the output directory. Unlike serve, a compile or render
error makes the command exit non-zero.

Examples:
  devreload build                  # Build src/ into dist/
  devreload build --output public  # Build into another directory`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	addPathFlags(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	e, err := engine.New(cfg, engine.Options{
		Logger:  logger,
		Console: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	if err := e.Build(context.Background()); err != nil {
		return err
	}

	var failed []string
	for stage, st := range e.Status().Snapshot() {
		if !st.OK {
			failed = append(failed, stage)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return fmt.Errorf("build failed in stage(s): %v", failed)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Artifacts written to %s\n", e.Store().Dir())
	return nil
}
