// Package storage keeps labeled messages and trained models in a sql database.
// Each table is represented by a struct working on top of engine.SQL, all records are scoped by the engine's group id.
package storage

import (
	"errors"
	"unicode/utf8"
)

// ErrNotFound is returned when requested record is not in the storage
var ErrNotFound = errors.New("not found")

// dbgText shortens long text for debug logging, cut by runes
func dbgText(s string) string {
	const maxLen = 256
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
