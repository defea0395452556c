package selector

import (
	"strconv"
	"strings"
)

// ContributionsKey is the part of a Selector the contribution calendar fetches by.
type ContributionsKey struct {
	Subject string
	Year    int
}

// ActivityKey is the part of a Selector visibility-sensitive widgets fetch by.
// Code frequency, commit timing, and per-repo commit counts share it.
type ActivityKey struct {
	Subject    string
	Visibility Visibility
}

// ProfileKey is the part of a Selector the profile widget fetches by.
type ProfileKey struct {
	Subject string
}

// Contributions projects the selector onto the contribution calendar key.
func (s Selector) Contributions() ContributionsKey {
	return ContributionsKey{Subject: s.Subject, Year: s.Year}
}

// Activity projects the selector onto the visibility-sensitive key.
func (s Selector) Activity() ActivityKey {
	return ActivityKey{Subject: s.Subject, Visibility: s.Visibility}
}

// Profile projects the selector onto the profile key.
func (s Selector) Profile() ProfileKey {
	return ProfileKey{Subject: s.Subject}
}

// Key renders a stable cache key.
func (k ContributionsKey) Key() string {
	year := "trailing"
	if k.Year > 0 {
		year = strconv.Itoa(k.Year)
	}
	return strings.ToLower(k.Subject) + "|" + year
}

// Key renders a stable cache key.
func (k ActivityKey) Key() string {
	return strings.ToLower(k.Subject) + "|" + string(k.Visibility)
}

// Key renders a stable cache key.
func (k ProfileKey) Key() string {
	return strings.ToLower(k.Subject)
}
