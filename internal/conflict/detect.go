package conflict

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/asteroid-belt/prepsync/internal/models"
)

// DefaultThreshold is the lastModified difference under which two copies are
// treated as written at the same moment.
const DefaultThreshold = 5 * time.Second

// DetectProgress compares two progress documents. It returns nil when either
// side is absent.
//
// A general conflict is emitted when the timestamps differ by at least the
// threshold and any compared field differs. Field conflicts for
// completedDays, currentStreak and totalStudyTime are emitted independently
// of the general one.
func (r *Resolver) DetectProgress(local, server *models.ProgressDocument) []models.Conflict {
	if local == nil || server == nil {
		return nil
	}

	var conflicts []models.Conflict

	lv := progressFields(local)
	sv := progressFields(server)

	diff := local.LastModified.Sub(server.LastModified)
	if diff < 0 {
		diff = -diff
	}
	if diff >= r.threshold && !equalJSON(lv, sv) {
		conflicts = append(conflicts, r.newConflict(models.DataProgress, models.ConflictData,
			models.FieldGeneral, local.Clone(), server.Clone(),
			local.LastModified, server.LastModified, models.SeverityHigh))
	}

	for _, field := range []string{
		models.FieldCompletedDays,
		models.FieldCurrentStreak,
		models.FieldTotalStudyTime,
	} {
		if equalJSON(lv[field], sv[field]) {
			continue
		}
		conflicts = append(conflicts, r.newConflict(models.DataProgress, models.ConflictField,
			field, lv[field], sv[field],
			local.LastModified, server.LastModified, models.SeverityMedium))
	}

	return conflicts
}

// DetectSettings emits one low-severity conflict per differing category.key.
func (r *Resolver) DetectSettings(local, server *models.SettingsDocument) []models.Conflict {
	if local == nil || server == nil {
		return nil
	}

	var conflicts []models.Conflict
	for _, category := range models.SettingsCategories {
		lc := local.Values[category]
		sc := server.Values[category]
		for _, key := range unionKeys(lc, sc) {
			lval, sval := lc[key], sc[key]
			if equalJSON(lval, sval) {
				continue
			}
			conflicts = append(conflicts, r.newConflict(models.DataSettings, models.ConflictSettings,
				category+"."+key, lval, sval,
				local.LastModified, server.LastModified, models.SeverityLow))
		}
	}
	return conflicts
}

func (r *Resolver) newConflict(dt models.DataType, typ, field string, local, server any, lt, st time.Time, sev models.Severity) models.Conflict {
	return models.Conflict{
		ID:              r.newID(),
		DataType:        dt,
		Type:            typ,
		Field:           field,
		LocalValue:      local,
		ServerValue:     server,
		LocalTimestamp:  lt,
		ServerTimestamp: st,
		Severity:        sev,
	}
}

// progressFields extracts the values compared during detection.
func progressFields(d *models.ProgressDocument) map[string]any {
	return map[string]any{
		models.FieldCompletedDays:  d.CompletedDays(),
		models.FieldCurrentStreak:  d.Streaks.Current,
		models.FieldLongestStreak:  d.Streaks.Longest,
		models.FieldTotalStudyTime: d.Statistics.TotalStudyTime,
	}
}

// equalJSON compares the serialized forms of a and b. Map keys are sorted
// by encoding/json, so equal maps always serialize identically.
func equalJSON(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func unionKeys(a, b map[string]any) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	keys := make([]string, 0, len(a)+len(b))
	for _, m := range []map[string]any{a, b} {
		for k := range m {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
