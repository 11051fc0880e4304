package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/asteroid-belt/prepsync/internal/db"
	"github.com/asteroid-belt/prepsync/internal/models"
	"github.com/asteroid-belt/prepsync/internal/notify"
	"github.com/asteroid-belt/prepsync/internal/tracker"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

const ruleWidth = 50

func rule(w io.Writer) {
	_, _ = fmt.Fprintln(w, strings.Repeat("─", ruleWidth))
}

func field(w io.Writer, label, value string) {
	_, _ = fmt.Fprintf(w, "%s %s\n", labelStyle.Render(label), value)
}

// statusWord renders a sync status with its color.
func statusWord(s string) string {
	switch notify.SyncStatus(s) {
	case notify.StatusSynced:
		return successStyle.Render(s)
	case notify.StatusFailed:
		return errorStyle.Render(s)
	case notify.StatusOffline, notify.StatusDegraded, notify.StatusSyncing:
		return warnStyle.Render(s)
	case "":
		return dimStyle.Render("never")
	}
	return s
}

func formatDuration(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return dimStyle.Render("never")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// renderStatus prints connectivity, queue and progress summary.
func renderStatus(w io.Writer, st tracker.Status, doc *models.ProgressDocument) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("PREPSYNC STATUS"))
	rule(w)

	user := st.UserID
	if user == "" {
		user = dimStyle.Render("anonymous")
	}
	field(w, "User", user)

	online := warnStyle.Render("offline")
	if st.Online {
		online = successStyle.Render("online")
	}
	field(w, "Connection", online)
	if st.Degraded {
		field(w, "Storage", warnStyle.Render("in-memory (changes will not survive exit)"))
	}

	synced := warnStyle.Render("local changes not synced")
	if st.Synced {
		synced = successStyle.Render("up to date")
	}
	field(w, "Progress", synced)
	field(w, "Last sync", fmt.Sprintf("%s (%s)", formatTime(st.LastSyncAt), statusWord(st.LastSyncStatus)))
	field(w, "Queued changes", fmt.Sprintf("%d", st.Queue.Count))
	if st.Queue.Count > 0 {
		field(w, "Oldest queued", formatTime(st.Queue.OldestItemTimestamp))
	}
	if st.PendingConflicts > 0 {
		field(w, "Conflicts", warnStyle.Render(fmt.Sprintf("%d awaiting choice (run `prepsync sync --interactive`)", st.PendingConflicts)))
	}

	if doc == nil {
		return
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, headerStyle.Render("PROGRESS"))
	rule(w)
	field(w, "Current streak", fmt.Sprintf("%d days", doc.Streaks.Current))
	field(w, "Longest streak", fmt.Sprintf("%d days", doc.Streaks.Longest))
	field(w, "Study time", formatDuration(doc.Statistics.TotalStudyTime))
	field(w, "Questions", fmt.Sprintf("%d", len(doc.Statistics.QuestionsStudied)))
	field(w, "Completed days", fmt.Sprintf("%d", doc.CompletedDayCount()))
	field(w, "Completion", fmt.Sprintf("%.1f%%", doc.Statistics.CompletionRate))

	var unlocked []string
	for id, a := range doc.Achievements {
		if a.Unlocked {
			unlocked = append(unlocked, id)
		}
	}
	sort.Strings(unlocked)
	if len(unlocked) > 0 {
		field(w, "Achievements", strings.Join(unlocked, ", "))
	}
}

// renderStoreStats prints record counts per collection and the file size.
func renderStoreStats(w io.Writer, stats *db.Stats) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, headerStyle.Render("LOCAL STORE"))
	rule(w)

	collections := make([]string, 0, len(stats.Records))
	for c := range stats.Records {
		collections = append(collections, string(c))
	}
	sort.Strings(collections)
	for _, c := range collections {
		field(w, c, fmt.Sprintf("%d", stats.Records[models.Collection(c)]))
	}
	field(w, "sync queue", fmt.Sprintf("%d", stats.QueuedItems))
	if stats.SizeBytes > 0 {
		field(w, "size", fmt.Sprintf("%.1f KiB", float64(stats.SizeBytes)/1024))
	}
}

// renderSyncResult prints the outcome of one sync pass.
func renderSyncResult(w io.Writer, res tracker.SyncResult) {
	switch {
	case res.Skipped:
		_, _ = fmt.Fprintln(w, dimStyle.Render("A sync is already running."))
		return
	case res.Offline:
		_, _ = fmt.Fprintln(w, warnStyle.Render("Offline: changes stay queued until the service is reachable."))
		return
	}

	renderDocumentResult(w, "progress", res.Progress)
	renderDocumentResult(w, "settings", res.Settings)

	d := res.Drain
	if d.Attempted > 0 {
		_, _ = fmt.Fprintf(w, "  queue: %d sent, %d failed, %d dropped\n", d.Succeeded, d.Failed, d.Dropped)
	}
	_, _ = fmt.Fprintf(w, "Status: %s\n", statusWord(string(res.Status)))
}

func renderDocumentResult(w io.Writer, name string, r tracker.DocumentResult) {
	if r.Err != nil {
		_, _ = fmt.Fprintf(w, "  %s %s: %v [%s]\n", errorStyle.Render("x"), name, r.Err, classifyError(r.Err))
		return
	}

	var parts []string
	if !r.RemoteFound {
		parts = append(parts, "no server copy")
	}
	if r.Conflicts > 0 {
		parts = append(parts, fmt.Sprintf("%d conflict(s)", r.Conflicts))
	}
	if r.Applied > 0 {
		parts = append(parts, fmt.Sprintf("%d applied", r.Applied))
	}
	if r.Pending > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("%d awaiting choice", r.Pending)))
	}
	if r.Pushed {
		parts = append(parts, "pushed")
	}
	if len(parts) == 0 {
		parts = append(parts, "in sync")
	}
	_, _ = fmt.Fprintf(w, "  %s %s: %s\n", successStyle.Render("v"), name, strings.Join(parts, ", "))
}

// renderQueue lists queued changes in drain order.
func renderQueue(w io.Writer, items []models.SyncQueueItem) {
	_, _ = fmt.Fprintf(w, "%s (%d)\n", headerStyle.Render("QUEUED CHANGES"), len(items))
	rule(w)
	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("Nothing queued."))
		return
	}
	for _, it := range items {
		line := fmt.Sprintf("#%-4d p%d %-9s %-22s %s  attempts %d/%d",
			it.ID, it.Priority, it.Type, it.Operation, formatTime(it.Timestamp), it.Attempts, it.MaxAttempts)
		_, _ = fmt.Fprintln(w, line)
		if it.LastError != "" {
			_, _ = fmt.Fprintf(w, "      %s\n", errorStyle.Render(it.LastError))
		}
	}
}

// renderConflict describes one conflict for a prompt.
func renderConflict(w io.Writer, c models.Conflict) {
	_, _ = fmt.Fprintf(w, "%s %s %s (%s)\n", warnStyle.Render("!"), c.DataType, c.Field, c.Severity)
	_, _ = fmt.Fprintf(w, "    local  (%s): %s\n", formatTime(c.LocalTimestamp), summarize(c.LocalValue))
	_, _ = fmt.Fprintf(w, "    server (%s): %s\n", formatTime(c.ServerTimestamp), summarize(c.ServerValue))
}

// summarize renders a conflict value on one line.
func summarize(v any) string {
	switch x := v.(type) {
	case nil:
		return dimStyle.Render("(unset)")
	case *models.ProgressDocument:
		return fmt.Sprintf("%d days, streak %d, %s studied", x.CompletedDayCount(), x.Streaks.Current, formatDuration(x.Statistics.TotalStudyTime))
	case map[string]map[int]models.DayCompletion:
		n := 0
		for _, days := range x {
			n += len(days)
		}
		return fmt.Sprintf("%d completed days", n)
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

// formatEvent renders a notification as a single line.
func formatEvent(e notify.Event) string {
	switch e.Type {
	case notify.EventAchievementUnlocked:
		title := e.AchievementID
		if e.Achievement != nil && e.Achievement.Title != "" {
			title = e.Achievement.Title
		}
		return successStyle.Render("* Achievement unlocked: " + title)
	case notify.EventSyncStatusChanged:
		msg := "sync: " + statusWord(string(e.Status))
		if e.Message != "" {
			msg += " (" + e.Message + ")"
		}
		return dimStyle.Render(msg)
	case notify.EventConflictRequiresChoice:
		what := ""
		if e.Conflict != nil {
			what = fmt.Sprintf("%s %s", e.Conflict.DataType, e.Conflict.Field)
		}
		return warnStyle.Render("! Conflict needs your choice: " + what)
	case notify.EventSyncItemDropped:
		op := ""
		if e.Item != nil {
			op = e.Item.Operation
		}
		return errorStyle.Render(fmt.Sprintf("x Gave up syncing %s: %s", op, e.Message))
	}
	return string(e.Type)
}

// eventPrinter writes every event to w as it happens.
func eventPrinter(w io.Writer) notify.Notifier {
	return notify.Func(func(e notify.Event) {
		// Status transitions are summarized by the commands themselves.
		if e.Type == notify.EventSyncStatusChanged && e.Status != notify.StatusDegraded {
			return
		}
		_, _ = fmt.Fprintln(w, formatEvent(e))
	})
}
