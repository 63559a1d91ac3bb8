// Package models holds the data types shared across the year-resolution
// pipeline: tracks as read from the library, album groupings derived from
// them, and the records the pipeline persists (cache rows, pending
// entries, changelog entries).
package models

import (
	"strings"
	"time"
)

// TrackStatus mirrors the host library's read/write classification for a
// track. Only "subscription" tracks are ever mutated by the pipeline.
type TrackStatus string

const (
	StatusSubscription TrackStatus = "subscription"
	StatusPurchased    TrackStatus = "purchased"
	StatusPrerelease   TrackStatus = "prerelease"
	StatusUnknown      TrackStatus = "unknown"
)

// Writable reports whether the host library allows mutating a track in
// this status. Only subscription tracks are writable; everything else
// (purchased, prerelease, unknown) is read-only (P8).
func (s TrackStatus) Writable() bool {
	return s == StatusSubscription
}

// Track is the atomic library item the pipeline reasons about. ID
// uniquely identifies a track within the host library; mutations to Year
// must go through a library.Client.
type Track struct {
	ID           string
	Name         string
	Artist       string
	AlbumArtist  string
	Album        string
	Genre        string
	Year         string // raw "year" field, may be empty, "0", or a 4-digit string
	ReleaseYear  string // library's distinct "release date" field
	DateAdded    time.Time
	LastModified time.Time
	TrackStatus  TrackStatus

	// Extras carries fields the pipeline does not interpret directly but
	// that downstream reporting (changelog, problematic-albums report)
	// wants to echo back: composer, disc_number, track_number,
	// compilation.
	Extras map[string]string
}

// EffectiveAlbumArtist returns AlbumArtist when set, else Artist.
func (t Track) EffectiveAlbumArtist() string {
	if strings.TrimSpace(t.AlbumArtist) != "" {
		return t.AlbumArtist
	}
	return t.Artist
}

// IsEmptyYear reports whether y counts as "no year" per P9: nil
// (represented here as ""), empty after trim, the literal "0", or
// all-whitespace.
func IsEmptyYear(y string) bool {
	trimmed := strings.TrimSpace(y)
	return trimmed == "" || trimmed == "0"
}

// IsValidYear reports whether y is a 4-digit integer in
// [1900, currentYear+1] (P9). currentYear is passed in explicitly so the
// check is deterministic and testable.
func IsValidYear(y string, currentYear int) bool {
	if len(y) != 4 {
		return false
	}
	for _, r := range y {
		if r < '0' || r > '9' {
			return false
		}
	}
	n := 0
	for _, r := range y {
		n = n*10 + int(r-'0')
	}
	return n >= 1900 && n <= currentYear+1
}

// ChangeLogEntry records one successful (or attempted) mutation to a
// track
type ChangeLogEntry struct {
	Timestamp     time.Time
	ChangeType    string // "year_update", "metadata_cleaning", ...
	TrackID       string
	Artist        string
	AlbumName     string
	TrackName     string
	OldYear       string
	NewYear       string
	OldTrackName  string
	NewTrackName  string
	OldAlbumName  string
	NewAlbumName  string
}
