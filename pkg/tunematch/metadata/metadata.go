// Package metadata supplies display information for catalog entries. The
// fingerprint store only knows filenames; everything a listener sees comes
// from a Provider.
package metadata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dhowden/tag"
)

type Info struct {
	DisplayName string `json:"display_name"`
	Artist      string `json:"artist,omitempty"`
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
}

type Provider interface {
	Lookup(filename string) (Info, bool)
}

var (
	bracketed   = regexp.MustCompile(`\[.*?\]`)
	multiSpaces = regexp.MustCompile(` +`)
)

// ParseArtistTitle splits "Artist - Title [Tag]" on the first " - ". Bracketed
// tags are dropped from the title. Without a separator the whole name is the title.
func ParseArtistTitle(name string) (artist, title string) {
	artist, rest, ok := strings.Cut(name, " - ")
	if !ok {
		return "", name
	}
	title = bracketed.ReplaceAllString(rest, "")
	title = strings.Trim(strings.TrimSpace(title), " -")
	title = multiSpaces.ReplaceAllString(title, " ")
	return strings.TrimSpace(artist), strings.TrimSpace(title)
}

// FromFilename derives Info from the file stem alone.
func FromFilename(filename string) Info {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	artist, title := ParseArtistTitle(stem)
	return Info{DisplayName: stem, Artist: artist, Title: title}
}

// Static is an in-memory filename -> Info table.
type Static map[string]Info

func (s Static) Lookup(filename string) (Info, bool) {
	info, ok := s[filename]
	return info, ok
}

// LoadCSV reads rows of filename,display_name[,link]. A header row whose first
// cell is "filename" is skipped.
func LoadCSV(r io.Reader) (Static, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := Static{}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading song csv: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], "filename") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("song csv line %d: expected at least 2 fields", line)
		}
		info := Info{DisplayName: rec[1]}
		info.Artist, info.Title = ParseArtistTitle(rec[1])
		if len(rec) > 2 {
			info.Link = rec[2]
		}
		out[rec[0]] = info
	}
}

// LoadCSVFile is LoadCSV on a file path.
func LoadCSVFile(path string) (Static, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadCSV(f)
}

// TagProvider reads embedded tags from files under Dir. Files without usable
// tags fall back to Overrides, then to the parsed filename.
type TagProvider struct {
	Dir       string
	Overrides Provider
}

func (p *TagProvider) Lookup(filename string) (Info, bool) {
	if p.Overrides != nil {
		if info, ok := p.Overrides.Lookup(filename); ok {
			return info, true
		}
	}
	info := FromFilename(filename)
	if p.Dir == "" {
		return info, true
	}

	f, err := os.Open(filepath.Join(p.Dir, filename))
	if err != nil {
		return info, true
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return info, true
	}
	if t := strings.TrimSpace(m.Title()); t != "" {
		info.Title = t
	}
	if a := strings.TrimSpace(m.Artist()); a != "" {
		info.Artist = a
	}
	if info.Artist != "" && info.Title != "" {
		info.DisplayName = info.Artist + " - " + info.Title
	}
	return info, true
}
