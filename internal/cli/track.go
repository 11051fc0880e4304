package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/prepsync/internal/tracker"
)

var (
	trackTasks    []string
	trackDuration time.Duration
	trackMeta     []string
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Record study activity",
	Long: `Record study activity.

Subcommands:
  day <track> <day>          Mark a track day as completed
  question <id> <category>   Record a studied question
  session [type]             Record time spent studying`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var trackDayCmd = &cobra.Command{
	Use:     "day <track> <day>",
	Short:   "Mark a track day as completed",
	Example: `  prepsync track day dsa 3 --task arrays --task hashing --time 45m`,
	Args:    cobra.ExactArgs(2),
	RunE:    runTrackDay,
}

var trackQuestionCmd = &cobra.Command{
	Use:     "question <id> <category>",
	Short:   "Record a studied question",
	Example: `  prepsync track question two-sum arrays --time 20m`,
	Args:    cobra.ExactArgs(2),
	RunE:    runTrackQuestion,
}

var trackSessionCmd = &cobra.Command{
	Use:     "session [type]",
	Short:   "Record time spent studying",
	Example: `  prepsync track session mock-interview --time 1h --meta company=acme`,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runTrackSession,
}

func init() {
	trackDayCmd.Flags().StringSliceVar(&trackTasks, "task", nil, "Task completed that day (repeatable)")
	for _, c := range []*cobra.Command{trackDayCmd, trackQuestionCmd, trackSessionCmd} {
		c.Flags().DurationVar(&trackDuration, "time", 0, "Time spent (e.g. 30m, 1h15m)")
	}
	trackSessionCmd.Flags().StringSliceVar(&trackMeta, "meta", nil, "Session metadata as key=value (repeatable)")
	_ = trackSessionCmd.MarkFlagRequired("time")

	trackCmd.AddCommand(trackDayCmd)
	trackCmd.AddCommand(trackQuestionCmd)
	trackCmd.AddCommand(trackSessionCmd)
}

func runTrackDay(cmd *cobra.Command, args []string) error {
	day, err := strconv.Atoi(args[1])
	if err != nil || day < 1 {
		return fmt.Errorf("invalid day %q: must be a positive number", args[1])
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	s, err := openSession(ctx, sessionOptions{out: out})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.tracker.TrackDayCompletion(ctx, args[0], day, trackTasks, trackDuration); err != nil {
		return fmt.Errorf("track day: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s %s day %d completed\n", successStyle.Render("v"), args[0], day)
	return reportProgress(cmd, s)
}

func runTrackQuestion(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	s, err := openSession(ctx, sessionOptions{out: out})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.tracker.TrackQuestionStudied(ctx, args[0], args[1], trackDuration); err != nil {
		return fmt.Errorf("track question: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s studied %s (%s)\n", successStyle.Render("v"), args[0], args[1])
	return reportProgress(cmd, s)
}

func runTrackSession(cmd *cobra.Command, args []string) error {
	sessionType := tracker.SessionStudy
	if len(args) == 1 {
		sessionType = args[0]
	}
	if trackDuration <= 0 {
		return fmt.Errorf("invalid --time %s: must be positive", trackDuration)
	}
	meta, err := parseMetadata(trackMeta)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	s, err := openSession(ctx, sessionOptions{out: out})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.tracker.TrackSessionTime(ctx, sessionType, trackDuration, meta); err != nil {
		return fmt.Errorf("track session: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s %s session, %s\n", successStyle.Render("v"), sessionType, trackDuration)
	return reportProgress(cmd, s)
}

// reportProgress prints the streak line and where the change went.
func reportProgress(cmd *cobra.Command, s *session) error {
	out := cmd.OutOrStdout()
	doc, err := s.tracker.Snapshot()
	if err != nil {
		return err
	}
	st, err := s.tracker.QueueStatus(cmd.Context())
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "  streak %d (best %d), %s studied\n",
		doc.Streaks.Current, doc.Streaks.Longest, formatDuration(doc.Statistics.TotalStudyTime))
	if st.Count > 0 {
		_, _ = fmt.Fprintf(out, "  %s\n", dimStyle.Render(fmt.Sprintf("%d change(s) queued for sync", st.Count)))
	}
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q: expected key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}
