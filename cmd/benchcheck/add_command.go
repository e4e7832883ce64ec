package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"benchcheck/internal/config"
	"benchcheck/internal/jobs"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <video>",
		Short: "Queue a video for analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			path, err = filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve video path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("video %s: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("video %s is a directory", path)
			}

			return ctx.withStore(func(store *jobs.Store) error {
				job, err := store.NewJob(cmd.Context(), path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (%s)\n", job.ID, job.Status)
				return nil
			})
		},
	}
}
