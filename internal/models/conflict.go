package models

import "time"

// DataType selects the detection rules and default strategy for a document.
type DataType string

const (
	DataProgress DataType = "progress"
	DataSettings DataType = "settings"
)

// Strategy names a conflict resolution policy.
type Strategy string

const (
	StrategyServerWins      Strategy = "server_wins"
	StrategyLocalWins       Strategy = "local_wins"
	StrategyMergeLatestWins Strategy = "merge_latest_wins"
	StrategyMergeBoth       Strategy = "merge_both"
	StrategyUserChoice      Strategy = "user_choice"
)

// Severity ranks how much of a document a conflict covers.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Choice is the user's answer to a pending conflict.
type Choice string

const (
	ChoiceLocal  Choice = "local"
	ChoiceServer Choice = "server"
	ChoiceMerge  Choice = "merge"
)

// Conflict types.
const (
	ConflictData     = "data_conflict"
	ConflictField    = "field_conflict"
	ConflictSettings = "settings_conflict"
)

// Progress fields compared during detection.
const (
	FieldGeneral        = "general"
	FieldCompletedDays  = "completedDays"
	FieldCurrentStreak  = "currentStreak"
	FieldLongestStreak  = "longestStreak"
	FieldTotalStudyTime = "totalStudyTime"
)

// Conflict is a detected disagreement between a local and a server copy.
// It lives only for the duration of a resolution pass unless it is waiting
// for a user choice.
type Conflict struct {
	ID              string    `json:"id"`
	DataType        DataType  `json:"dataType"`
	Type            string    `json:"type"`
	Field           string    `json:"field"`
	LocalValue      any       `json:"localValue"`
	ServerValue     any       `json:"serverValue"`
	LocalTimestamp  time.Time `json:"localTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`
	Severity        Severity  `json:"severity"`
}

// Resolution is the outcome of applying a strategy to a conflict.
type Resolution struct {
	Conflict      Conflict `json:"conflict"`
	Strategy      Strategy `json:"strategy"`
	ResolvedValue any      `json:"resolvedValue"`
	Pending       bool     `json:"pending"`
}
