package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/asteroid-belt/prepsync/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View or change preferences",
	Long: `View or change preferences.

Settings are addressed as <category>.<key> where category is one of
theme, notifications, display or study.

Subcommands:
  show                 List all settings
  set <path> <value>   Change a setting (JSON values are decoded)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List all settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:     "set <category.key> <value>",
	Short:   "Change a setting",
	Example: "  prepsync settings set theme.mode dark\n  prepsync settings set study.daily_goal 3",
	Args:    cobra.ExactArgs(2),
	RunE:    runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	doc, err := s.tracker.Settings()
	if err != nil {
		return err
	}
	renderSettings(cmd.OutOrStdout(), doc)
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if _, _, err := models.SplitSettingsPath(args[0]); err != nil {
		return err
	}
	value := parseSettingValue(args[1])

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	s, err := openSession(ctx, sessionOptions{out: out})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.tracker.UpdateSetting(ctx, args[0], value); err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s %s = %v\n", successStyle.Render("v"), args[0], value)
	return nil
}

// parseSettingValue decodes JSON literals (numbers, booleans, objects) and
// keeps anything else as a plain string.
func parseSettingValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func renderSettings(w io.Writer, doc *models.SettingsDocument) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("SETTINGS"))
	rule(w)
	n := 0
	for _, category := range models.SettingsCategories {
		values := doc.Values[category]
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			field(w, category+"."+k, fmt.Sprintf("%v", values[k]))
			n++
		}
	}
	if n == 0 {
		_, _ = fmt.Fprintln(w, dimStyle.Render("No settings yet."))
	}
	if !doc.Synced {
		_, _ = fmt.Fprintln(w, dimStyle.Render("(local changes not synced)"))
	}
}
