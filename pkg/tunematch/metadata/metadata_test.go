package metadata

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArtistTitle(t *testing.T) {
	tests := []struct {
		in, artist, title string
	}{
		{"Alan Walker - Fade [NCS Release]", "Alan Walker", "Fade"},
		{"Daft Punk - One More Time", "Daft Punk", "One More Time"},
		{"A - B - C", "A", "B - C"},
		{"Untitled", "", "Untitled"},
		{"X - Song  [Remix]  [Live]", "X", "Song"},
	}
	for _, tt := range tests {
		artist, title := ParseArtistTitle(tt.in)
		if artist != tt.artist || title != tt.title {
			t.Errorf("ParseArtistTitle(%q) = (%q, %q), want (%q, %q)", tt.in, artist, title, tt.artist, tt.title)
		}
	}
}

func TestLoadCSV(t *testing.T) {
	data := "filename,display_name,link\n" +
		"a.wav,Daft Punk - Aerodynamic,https://open.spotify.com/track/1\n" +
		"b.wav,Just A Title\n"
	s, err := LoadCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("LoadCSV failed: %v", err)
	}
	a, ok := s.Lookup("a.wav")
	if !ok || a.Artist != "Daft Punk" || a.Link == "" {
		t.Errorf("Unexpected entry %+v", a)
	}
	if _, ok := s.Lookup("c.wav"); ok {
		t.Error("Expected miss for unknown file")
	}
	if _, err := LoadCSV(strings.NewReader("onlyone\n")); err == nil {
		t.Error("Expected error for short row")
	}
}

func TestTagProviderFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "Artist - Track.wav"), []byte("no tags here"), 0o644)

	p := &TagProvider{Dir: dir}
	info, ok := p.Lookup("Artist - Track.wav")
	if !ok {
		t.Fatal("Expected a result")
	}
	if info.Artist != "Artist" || info.Title != "Track" || info.DisplayName != "Artist - Track" {
		t.Errorf("Unexpected info %+v", info)
	}
}

func TestTagProviderOverrides(t *testing.T) {
	p := &TagProvider{Overrides: Static{"x.mp3": {DisplayName: "Custom"}}}
	info, _ := p.Lookup("x.mp3")
	if info.DisplayName != "Custom" {
		t.Errorf("Expected override, got %+v", info)
	}
}
