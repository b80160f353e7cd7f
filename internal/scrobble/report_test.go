package scrobble

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildReportMovie(t *testing.T) {
	snap := &Snapshot{
		Kind:        KindMovie,
		Title:       "Heat",
		Year:        1995,
		Duration:    10200,
		Elapsed:     5123.456,
		Percentage:  50.2299,
		ExternalIDs: map[string]string{"imdb": "tt0113277"},
	}

	r := BuildReport(snap, "Kodi")

	if r.MediaType != "movie" {
		t.Errorf("MediaType = %q, want movie", r.MediaType)
	}
	if r.Progress != 50.23 {
		t.Errorf("Progress = %v, want 50.23 (2-decimal rounding)", r.Progress)
	}
	if r.CurrentTime != 5123.5 {
		t.Errorf("CurrentTime = %v, want 5123.5 (1-decimal rounding)", r.CurrentTime)
	}
	if r.TotalTime != 10200 {
		t.Errorf("TotalTime = %v, want 10200", r.TotalTime)
	}
	if r.Season != 0 || r.Episode != 0 || r.ShowTitle != "" {
		t.Errorf("movie report must not carry episode fields: %+v", r)
	}
	if r.ExternalIDs["imdb"] != "tt0113277" {
		t.Errorf("ExternalIDs = %v", r.ExternalIDs)
	}
	if r.PlayerName != "Kodi" {
		t.Errorf("PlayerName = %q", r.PlayerName)
	}
}

func TestBuildReportEpisode(t *testing.T) {
	snap := &Snapshot{
		Kind:       KindEpisode,
		Title:      "Pilot",
		ShowTitle:  "Twin Peaks",
		Season:     1,
		Episode:    1,
		Year:       1990,
		Duration:   5640,
		Elapsed:    1410,
		Percentage: 25,
	}

	r := BuildReport(snap, "Kodi")

	if r.Season != 1 || r.Episode != 1 || r.ShowTitle != "Twin Peaks" {
		t.Errorf("episode fields missing: %+v", r)
	}
}

func TestReportJSONOmitsEpisodeFieldsForMovies(t *testing.T) {
	r := BuildReport(&Snapshot{Kind: KindMovie, Title: "Heat", Year: 1995}, "Kodi")
	payload, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	body := string(payload)
	for _, field := range []string{"season", "episode", "showTitle"} {
		if strings.Contains(body, `"`+field+`"`) {
			t.Errorf("movie payload must omit %q: %s", field, body)
		}
	}
	if !strings.Contains(body, `"mediaType":"movie"`) {
		t.Errorf("payload missing mediaType: %s", body)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v        float64
		decimals int
		want     float64
	}{
		{50.2299, 2, 50.23},
		{0.004, 2, 0},
		{99.999, 2, 100},
		{5123.44, 1, 5123.4},
		{5123.46, 1, 5123.5},
	}
	for _, tc := range tests {
		if got := round(tc.v, tc.decimals); got != tc.want {
			t.Errorf("round(%v, %d) = %v, want %v", tc.v, tc.decimals, got, tc.want)
		}
	}
}
