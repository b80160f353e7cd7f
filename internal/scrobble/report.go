package scrobble

import "math"

// Report is the payload delivered to the tracking service, one per committed
// decision. JSON field names follow the Chronicle scrobble API.
type Report struct {
	MediaType   string            `json:"mediaType"`
	Title       string            `json:"title"`
	Year        int               `json:"year"`
	Season      int               `json:"season,omitempty"`
	Episode     int               `json:"episode,omitempty"`
	ShowTitle   string            `json:"showTitle,omitempty"`
	Progress    float64           `json:"progress"`    // percent, 2-decimal rounding
	CurrentTime float64           `json:"currentTime"` // seconds, 1-decimal rounding
	TotalTime   float64           `json:"totalTime"`   // seconds, 1-decimal rounding
	ExternalIDs map[string]string `json:"externalIds"`
	PlayerName  string            `json:"playerName"`
}

// BuildReport assembles the payload for one snapshot. Season, episode and
// show title ride along only for episodes.
func BuildReport(snap *Snapshot, playerName string) Report {
	r := Report{
		MediaType:   string(snap.Kind),
		Title:       snap.Title,
		Year:        snap.Year,
		Progress:    round(snap.Percentage, 2),
		CurrentTime: round(snap.Elapsed, 1),
		TotalTime:   round(snap.Duration, 1),
		ExternalIDs: snap.ExternalIDs,
		PlayerName:  playerName,
	}
	if snap.Kind == KindEpisode {
		r.Season = snap.Season
		r.Episode = snap.Episode
		r.ShowTitle = snap.ShowTitle
	}
	return r
}

func round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
