package models

import "regexp"

// DefaultSourceID keys the index, plans and notes when a caller names no session.
const DefaultSourceID = "default"

var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidSourceID reports whether id may name a session.
func ValidSourceID(id string) bool {
	return sourceIDPattern.MatchString(id)
}
