package models

import "strings"

// collaborationSplitters are tried, in order, against an artist string to
// find a "primary" artist for album-grouping purposes. The first segment
// before any of these separators is used.
var collaborationSplitters = []string{
	" & ", " feat. ", " ft. ", " vs. ", " with ", " and ", " x ",
}

// NormalizePrimaryArtist splits a collaboration-style artist credit on the
// first matching separator and returns the leading segment, trimmed.
func NormalizePrimaryArtist(artist string) string {
	best := artist
	bestIdx := -1
	for _, sep := range collaborationSplitters {
		if idx := strings.Index(artist, sep); idx != -1 {
			if bestIdx == -1 || idx < bestIdx {
				bestIdx = idx
				best = artist[:idx]
			}
		}
	}
	return strings.TrimSpace(best)
}

// AlbumKey uniquely identifies an AlbumGroup: the album's artist
// (album_artist when present, else the normalized primary artist) paired
// with the album title.
type AlbumKey struct {
	Artist string
	Album  string
}

// AlbumGroup is the unit of decision: every Track belonging to one album,
// keyed by (album_artist_or_normalized_artist, album).
type AlbumGroup struct {
	Key    AlbumKey
	Tracks []Track
}

// GroupTracksByAlbum buckets tracks into AlbumGroups9:
// group by (album_artist, album), falling back to the normalized primary
// artist when album_artist is empty.
func GroupTracksByAlbum(tracks []Track) []*AlbumGroup {
	order := make([]AlbumKey, 0)
	index := make(map[AlbumKey]*AlbumGroup)

	for _, t := range tracks {
		artist := strings.TrimSpace(t.AlbumArtist)
		if artist == "" {
			artist = NormalizePrimaryArtist(t.Artist)
		}
		key := AlbumKey{Artist: artist, Album: t.Album}

		group, ok := index[key]
		if !ok {
			group = &AlbumGroup{Key: key}
			index[key] = group
			order = append(order, key)
		}
		group.Tracks = append(group.Tracks, t)
	}

	groups := make([]*AlbumGroup, 0, len(order))
	for _, k := range order {
		groups = append(groups, index[k])
	}
	return groups
}
