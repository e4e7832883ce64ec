package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"benchcheck/internal/config"
	"benchcheck/internal/logging"
	"benchcheck/internal/orchestrator"
	"benchcheck/internal/session"
)

// newAnalyzeCommand runs one analysis session in the foreground. The daemon
// dispatches detached copies of this command for queued jobs; it is equally
// usable by hand for a single video.
func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a bench-press video in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			input := strings.TrimSpace(inputPath)
			if input == "" {
				return errors.New("--input is required")
			}
			input, err = config.ExpandPath(input)
			if err != nil {
				return fmt.Errorf("resolve input path: %w", err)
			}
			input, err = filepath.Abs(input)
			if err != nil {
				return fmt.Errorf("resolve input path: %w", err)
			}

			output := strings.TrimSpace(outputPath)
			if output == "" {
				output = orchestrator.OutputPath(cfg.Paths.ProcessedDir, input)
			} else {
				output, err = config.ExpandPath(output)
				if err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			result, err := session.New(cfg, logger).Run(cmd.Context(), input, output)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, "Analysis complete")
			fmt.Fprintln(out, verdictLine("Overall", result.Verdict.Overall, colorize))
			fmt.Fprintln(out, verdictLine("Hip lift", result.Verdict.HipLiftStatus, colorize))
			fmt.Fprintln(out, verdictLine("Rep depth", result.Verdict.ShallowRepStatus, colorize))
			fmt.Fprintf(out, "  %-*s %d\n", verdictLabelWidth, "Reps:", result.Verdict.Reps)
			fmt.Fprintf(out, "  %-*s %d frames at %.2f fps (%.1fs)\n",
				verdictLabelWidth, "Video:", result.TotalFrames, result.FPS, result.DurationSeconds)
			fmt.Fprintf(out, "Annotated video written to %s\n", result.OutputPath)
			fmt.Fprintf(out, "Artifact written to %s\n", result.ArtifactPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Video file to analyze")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination for the annotated video (defaults to the processed directory)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
