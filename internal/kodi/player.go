package kodi

import (
	"fmt"
	"strings"

	"chronicle-scrobbler/internal/scrobble"
)

// Item properties requested from Player.GetItem.
var itemProperties = []string{
	"title",
	"year",
	"season",
	"episode",
	"showtitle",
	"imdbnumber", // IMDB id for movies, sometimes a TMDB id
	"uniqueid",   // scraper-populated map: imdb / tmdb / tvdb / musicbrainz
	"file",
	"duration", // seconds (audio)
	"runtime",  // seconds (video)
}

// Player properties requested from Player.GetProperties.
var playerProperties = []string{
	"time",
	"totaltime",
	"percentage",
	"speed", // 0 = paused, 1 = normal, >1 = fast-forward
}

type activePlayer struct {
	PlayerID int    `json:"playerid"`
	Type     string `json:"type"` // "video" | "audio" | "picture"
}

type timeDetail struct {
	Hours        int `json:"hours"`
	Minutes      int `json:"minutes"`
	Seconds      int `json:"seconds"`
	Milliseconds int `json:"milliseconds"`
}

func (t timeDetail) TotalSeconds() float64 {
	return float64(t.Hours)*3600 + float64(t.Minutes)*60 + float64(t.Seconds) + float64(t.Milliseconds)/1000
}

type playerItem struct {
	ID         int               `json:"id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Year       int               `json:"year"`
	Season     int               `json:"season"`
	Episode    int               `json:"episode"`
	ShowTitle  string            `json:"showtitle"`
	IMDBNumber string            `json:"imdbnumber"`
	UniqueID   map[string]string `json:"uniqueid"`
	Duration   float64           `json:"duration"`
	Runtime    float64           `json:"runtime"`
}

type itemResult struct {
	Item *playerItem `json:"item"`
}

type playerProps struct {
	Time       timeDetail `json:"time"`
	TotalTime  timeDetail `json:"totaltime"`
	Percentage float64    `json:"percentage"`
	Speed      float64    `json:"speed"`
}

// rpcCaller is the slice of Client the reader needs.
type rpcCaller interface {
	Call(method string, params any, dst any) error
}

// Reader builds scrobble snapshots from the host's live player state. It
// implements scrobble.SnapshotReader.
type Reader struct {
	rpc rpcCaller
}

func NewReader(client *Client) *Reader {
	return &Reader{rpc: client}
}

// Current returns a snapshot of the active player, or (nil, nil) when
// nothing is playing. Picture slideshows do not count as media.
func (r *Reader) Current() (*scrobble.Snapshot, error) {
	var players []activePlayer
	if err := r.rpc.Call("Player.GetActivePlayers", nil, &players); err != nil {
		return nil, fmt.Errorf("active players: %w", err)
	}
	if len(players) == 0 {
		return nil, nil
	}
	player := players[0]
	if player.Type == "picture" {
		return nil, nil
	}

	var item itemResult
	err := r.rpc.Call("Player.GetItem", map[string]any{
		"playerid":   player.PlayerID,
		"properties": itemProperties,
	}, &item)
	if err != nil {
		return nil, fmt.Errorf("player item: %w", err)
	}
	if item.Item == nil {
		return nil, nil
	}

	var props playerProps
	err = r.rpc.Call("Player.GetProperties", map[string]any{
		"playerid":   player.PlayerID,
		"properties": playerProperties,
	}, &props)
	if err != nil {
		return nil, fmt.Errorf("player properties: %w", err)
	}

	return buildSnapshot(item.Item, props), nil
}

func buildSnapshot(item *playerItem, props playerProps) *scrobble.Snapshot {
	libraryID := item.ID
	if libraryID == 0 {
		libraryID = -1
	}
	return &scrobble.Snapshot{
		Kind:        mediaKind(item.Type),
		Title:       item.Title,
		Year:        item.Year,
		Season:      item.Season,
		Episode:     item.Episode,
		ShowTitle:   item.ShowTitle,
		ExternalIDs: externalIDs(item.UniqueID, item.IMDBNumber),
		Elapsed:     props.Time.TotalSeconds(),
		Duration:    totalDuration(item, props),
		Percentage:  clampPercent(props.Percentage),
		Paused:      props.Speed == 0,
		LibraryID:   libraryID,
	}
}

func mediaKind(itemType string) scrobble.MediaKind {
	switch itemType {
	case "movie":
		return scrobble.KindMovie
	case "episode":
		return scrobble.KindEpisode
	case "song":
		return scrobble.KindTrack
	default:
		return scrobble.KindUnknown
	}
}

// totalDuration resolves the media duration with the fixed fallback order:
// live total-time, else item runtime, else item duration, else zero.
func totalDuration(item *playerItem, props playerProps) float64 {
	if t := props.TotalTime.TotalSeconds(); t > 0 {
		return t
	}
	if item.Runtime > 0 {
		return item.Runtime
	}
	if item.Duration > 0 {
		return item.Duration
	}
	return 0
}

// externalIDs collects identifiers from the scraper-populated uniqueid map
// first, in fixed source priority, then falls back to the legacy imdbnumber
// field for keys the map did not provide.
func externalIDs(uniqueID map[string]string, imdbNumber string) map[string]string {
	ids := make(map[string]string)
	for _, key := range []string{"imdb", "tmdb", "tvdb", "musicbrainz"} {
		if v := strings.TrimSpace(uniqueID[key]); v != "" {
			ids[key] = v
		}
	}

	if _, ok := ids["imdb"]; !ok {
		legacy := strings.TrimSpace(imdbNumber)
		switch {
		case strings.HasPrefix(legacy, "tt"):
			ids["imdb"] = legacy
		case legacy != "" && isDigits(legacy):
			if _, ok := ids["tmdb"]; !ok {
				ids["tmdb"] = legacy
			}
		}
	}
	return ids
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
