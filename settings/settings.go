// Package settings is the persistent key-value Settings Store: tracker
// thresholds, the ignore list, the premium flag and the todo list, kept in
// SQLite and read by both the coordinator and every observed page.
package settings

import (
	"slices"

	"github.com/hazyhaar/scrollguard/hostname"
)

// Priority of a todo.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of low, medium, high.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Todo is one entry of the user's todo list.
type Todo struct {
	ID        int64    `json:"id"`
	Text      string   `json:"text"`
	Priority  Priority `json:"priority"`
	Completed bool     `json:"completed"`
}

// Settings is the full settings object as returned by GET_SETTINGS.
type Settings struct {
	ScrollThreshold   int      `json:"scrollThreshold"`
	TimeWindowSeconds int      `json:"timeWindowSeconds"`
	IsPremium         bool     `json:"isPremium"`
	IgnoredDomains    []string `json:"ignoredDomains"`
	Todos             []Todo   `json:"todos"`
}

// Defaults returns the settings written on first install.
func Defaults() Settings {
	return Settings{
		ScrollThreshold:   DefaultScrollThreshold,
		TimeWindowSeconds: DefaultTimeWindowSeconds,
		IsPremium:         false,
		IgnoredDomains:    []string{},
		Todos: []Todo{
			{ID: 1, Text: "Complete this task", Priority: PriorityMedium, Completed: false},
			{ID: 2, Text: "Drink water", Priority: PriorityLow, Completed: false},
		},
	}
}

// Ignores reports whether host (already normalised or not) is on the
// ignore list.
func (s Settings) Ignores(host string) bool {
	h := hostname.Normalize(host)
	if h == "" {
		return false
	}
	for _, d := range s.IgnoredDomains {
		if hostname.Normalize(d) == h {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can cache settings safely.
func (s Settings) Clone() Settings {
	c := s
	// slices.Clone keeps an empty list empty rather than nil.
	c.IgnoredDomains = slices.Clone(s.IgnoredDomains)
	c.Todos = slices.Clone(s.Todos)
	return c
}

// Storage keys; each value is stored as JSON.
const (
	keyScrollThreshold   = "scrollThreshold"
	keyTimeWindowSeconds = "timeWindowSeconds"
	keyIsPremium         = "isPremium"
	keyIgnoredDomains    = "ignoredDomains"
	keyTodos             = "todos"
	keySetupCompleted    = "setupCompleted"
)
