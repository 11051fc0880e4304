package models

import (
	"fmt"
	"strings"
	"time"
)

// Settings categories.
const (
	SettingsTheme         = "theme"
	SettingsNotifications = "notifications"
	SettingsDisplay       = "display"
	SettingsStudy         = "study"
)

// SettingsCategories lists the categories compared during conflict detection.
var SettingsCategories = []string{
	SettingsTheme,
	SettingsNotifications,
	SettingsDisplay,
	SettingsStudy,
}

// SettingsDocument holds per-user preferences grouped by category.
type SettingsDocument struct {
	UserID       string                    `json:"userId"`
	Values       map[string]map[string]any `json:"values"`
	LastModified time.Time                 `json:"lastModified"`
	Synced       bool                      `json:"synced"`
}

// NewSettingsDocument returns empty settings for userID.
func NewSettingsDocument(userID string, now time.Time) *SettingsDocument {
	s := &SettingsDocument{UserID: userID, LastModified: now}
	s.Normalize()
	return s
}

// Normalize ensures every known category has a map.
func (s *SettingsDocument) Normalize() {
	if s.Values == nil {
		s.Values = make(map[string]map[string]any)
	}
	for _, c := range SettingsCategories {
		if s.Values[c] == nil {
			s.Values[c] = make(map[string]any)
		}
	}
}

// Validate rejects documents without a user or with unknown categories.
func (s *SettingsDocument) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: settings document has no user id", ErrInvalidDocument)
	}
	for c := range s.Values {
		if !IsSettingsCategory(c) {
			return fmt.Errorf("%w: unknown settings category %q", ErrInvalidDocument, c)
		}
	}
	return nil
}

// Clone returns a copy with fresh category maps. Values themselves are
// expected to be JSON scalars and are copied by assignment.
func (s *SettingsDocument) Clone() *SettingsDocument {
	if s == nil {
		return nil
	}
	out := *s
	out.Values = make(map[string]map[string]any, len(s.Values))
	for c, kv := range s.Values {
		m := make(map[string]any, len(kv))
		for k, v := range kv {
			m[k] = v
		}
		out.Values[c] = m
	}
	return &out
}

// Get returns the value at a dotted "category.key" path.
func (s *SettingsDocument) Get(path string) (any, bool) {
	category, key, err := SplitSettingsPath(path)
	if err != nil {
		return nil, false
	}
	v, ok := s.Values[category][key]
	return v, ok
}

// Set assigns the value at a dotted "category.key" path.
func (s *SettingsDocument) Set(path string, value any) error {
	category, key, err := SplitSettingsPath(path)
	if err != nil {
		return err
	}
	s.Normalize()
	s.Values[category][key] = value
	return nil
}

// IsSettingsCategory reports whether c is a known category.
func IsSettingsCategory(c string) bool {
	for _, known := range SettingsCategories {
		if c == known {
			return true
		}
	}
	return false
}

// SplitSettingsPath splits "category.key" and validates the category.
func SplitSettingsPath(path string) (string, string, error) {
	category, key, ok := strings.Cut(path, ".")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid settings path %q: want category.key", path)
	}
	if !IsSettingsCategory(category) {
		return "", "", fmt.Errorf("unknown settings category %q", category)
	}
	return category, key, nil
}
