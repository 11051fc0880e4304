package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync state and progress summary",
	Long: `Show connectivity, queued changes, pending conflicts and a summary
of streaks, study time and achievements.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List changes waiting to be synced",
	Long: `List queued changes in the order they will be sent: higher priority
first, oldest first within a priority.`,
	Args: cobra.NoArgs,
	RunE: runQueue,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, sessionOptions{out: out})
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.tracker.Status(ctx)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	doc, err := s.tracker.Snapshot()
	if err != nil {
		return err
	}
	renderStatus(out, st, doc)

	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Debugf("store stats: %v", err)
		return nil
	}
	renderStoreStats(out, stats)
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	items, err := s.queue.List(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	renderQueue(cmd.OutOrStdout(), items)
	return nil
}
