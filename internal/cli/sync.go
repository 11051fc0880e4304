package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/scheduler"
)

var (
	syncInteractive bool
	watchInterval   time.Duration
	clearYes        bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local progress with the progress service",
	Long: `Fetch the server copy, resolve conflicts, push local changes and
drain the queue of offline changes.

Conflicts whose strategy is user_choice are left pending. With
--interactive you are asked to keep the local copy, the server copy or a
merge of both.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync periodically until interrupted",
	Long: `Run a sync pass immediately and then on a fixed interval
(sync.auto_interval, default 5m). Connectivity is re-checked before each
pass. Stop with Ctrl+C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete local progress, settings and queued changes",
	Long: `Delete all offline data for this device: progress, settings and the
queue of unsynced changes. Data already on the progress service is kept.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	syncCmd.Flags().BoolVarP(&syncInteractive, "interactive", "i", false, "Prompt for conflicts that need a choice")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Override sync.auto_interval")
	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "Do not ask for confirmation")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, sessionOptions{out: out})
	if err != nil {
		return err
	}
	defer s.Close()

	if s.service == nil {
		_, _ = fmt.Fprintln(out, warnStyle.Render("No progress service configured; set api.url or sync.blob_dir."))
		return nil
	}

	_, _ = fmt.Fprintln(out, headerStyle.Render("SYNCING"))
	rule(out)
	res, err := s.tracker.Sync(ctx)
	renderSyncResult(out, res)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	pending := s.tracker.PendingConflicts()
	if len(pending) == 0 {
		return nil
	}
	if !syncInteractive {
		_, _ = fmt.Fprintf(out, "\n%d conflict(s) need a choice. Run `prepsync sync --interactive`.\n", len(pending))
		return nil
	}
	return resolveInteractively(ctx, s, cmd.InOrStdin(), out, pending)
}

// resolveInteractively asks for a choice on each pending conflict.
func resolveInteractively(ctx context.Context, s *session, in io.Reader, out io.Writer, pending []models.Conflict) error {
	reader := bufio.NewReader(in)
	_, _ = fmt.Fprintln(out)
	for _, c := range pending {
		renderConflict(out, c)
		_, _ = fmt.Fprint(out, "  Keep [l]ocal, [s]erver or [m]erge both? (enter to skip) ")

		answer, _ := reader.ReadString('\n')
		choice, ok := parseChoice(answer)
		if !ok {
			_, _ = fmt.Fprintf(out, "  %s\n", dimStyle.Render("skipped"))
			continue
		}
		res, err := s.tracker.ResolveConflict(ctx, c.ID, choice)
		if err != nil {
			_, _ = fmt.Fprintf(out, "  %s %v [%s]\n", errorStyle.Render("x"), err, classifyError(err))
			continue
		}
		_, _ = fmt.Fprintf(out, "  %s resolved with %s\n", successStyle.Render("v"), res.Strategy)
	}
	return nil
}

func parseChoice(answer string) (models.Choice, bool) {
	switch strings.TrimSpace(strings.ToLower(answer)) {
	case "l", "local":
		return models.ChoiceLocal, true
	case "s", "server":
		return models.ChoiceServer, true
	case "m", "merge":
		return models.ChoiceMerge, true
	}
	return "", false
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	if s.service == nil {
		return fmt.Errorf("watch needs a progress service: set api.url or sync.blob_dir")
	}

	interval := s.cfg.Sync.AutoInterval
	if watchInterval > 0 {
		interval = watchInterval
	}

	events, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	auto := scheduler.New(interval, func(ctx context.Context) error {
		online := !flagOffline && reachable(ctx, s.service, s.logger)
		_, err := s.tracker.SetOnline(ctx, online)
		return err
	}, s.logger)
	if err := auto.Start(ctx); err != nil {
		return err
	}
	defer auto.Stop()

	_, _ = fmt.Fprintf(out, "%s every %s (Ctrl+C to stop)\n", headerStyle.Render("WATCHING"), interval)
	for {
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintf(out, "Stopped after %d pass(es).\n", auto.Runs())
			return nil
		case e := <-events:
			_, _ = fmt.Fprintf(out, "%s %s\n", dimStyle.Render(e.Time.Local().Format("15:04:05")), formatEvent(e))
		}
	}
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !clearYes {
		_, _ = fmt.Fprint(out, "Delete all local progress, settings and queued changes? [y/N] ")
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		answer = strings.TrimSpace(strings.ToLower(answer))
		if answer != "y" && answer != "yes" {
			_, _ = fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.tracker.QueueStatus(ctx)
	if err != nil {
		return err
	}
	if err := s.tracker.ClearOfflineData(ctx); err != nil {
		return fmt.Errorf("clear offline data: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s Cleared local data (%d queued change(s) discarded).\n", successStyle.Render("v"), st.Count)
	return nil
}
