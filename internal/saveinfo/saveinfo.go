// Package saveinfo derives save-game details from an archive's table of
// contents without extracting it.
package saveinfo

import (
	"archive/tar"
	"errors"
	"gsb/internal/manifest"
	"gsb/internal/tarball"
	"io"
	"path"
	"regexp"
	"strings"
)

var ErrNoSave = errors.New("no main save file in archive")

// TheIsland_17.10.2026_12.00.00.ark
var autoSavePattern = regexp.MustCompile(`_\d{2}\.\d{2}\.\d{4}_\d{2}\.\d{2}\.\d{2}\.ark$`)

var mapDisplayNames = map[string]string{
	"TheIsland":        "The Island",
	"TheIsland_WP":     "The Island",
	"ScorchedEarth_P":  "Scorched Earth",
	"ScorchedEarth_WP": "Scorched Earth",
	"Aberration_P":     "Aberration",
	"Aberration_WP":    "Aberration",
	"Extinction":       "Extinction",
	"Extinction_WP":    "Extinction",
	"TheCenter":        "The Center",
	"TheCenter_WP":     "The Center",
	"Ragnarok":         "Ragnarok",
	"Ragnarok_WP":      "Ragnarok",
	"Valguero_P":       "Valguero",
	"CrystalIsles":     "Crystal Isles",
	"Fjordur":          "Fjordur",
	"LostIsland":       "Lost Island",
	"Genesis":          "Genesis: Part 1",
	"Gen2":             "Genesis: Part 2",
}

// DisplayName maps an internal map name to its human-readable form. Unknown
// maps are returned unchanged.
func DisplayName(mapName string) string {
	if name, ok := mapDisplayNames[mapName]; ok {
		return name
	}
	return mapName
}

// Extract reads the archive at archivePath and summarizes the save it holds.
func Extract(archivePath string) (*manifest.SaveInfo, error) {
	info := &manifest.SaveInfo{}
	err := tarball.Walk(archivePath, func(hdr *tar.Header, _ io.Reader) error {
		if hdr.Typeflag != tar.TypeReg {
			return nil
		}
		info.TotalFileCount++

		base := path.Base(hdr.Name)
		switch {
		case strings.HasSuffix(base, ".arkprofile"):
			info.PlayerCount++
		case strings.HasSuffix(base, ".arktribe"):
			info.TribeCount++
		case autoSavePattern.MatchString(base):
			info.AutoSaveCount++
		case strings.HasSuffix(base, ".ark"):
			// Several maps in one directory: report the largest.
			if hdr.Size >= info.MainSaveSize {
				info.MapName = strings.TrimSuffix(base, ".ark")
				info.MainSaveSize = hdr.Size
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if info.MapName == "" {
		return nil, ErrNoSave
	}

	info.MapDisplayName = DisplayName(info.MapName)
	info.SuggestedTags = SuggestTags(info)
	return info, nil
}

// SuggestTags returns tags derived from info, in a stable order.
func SuggestTags(info *manifest.SaveInfo) []string {
	tags := []string{info.MapDisplayName}
	switch {
	case info.PlayerCount == 0:
		tags = append(tags, "no-players")
	case info.PlayerCount == 1:
		tags = append(tags, "solo")
	default:
		tags = append(tags, "multiplayer")
	}
	if info.TribeCount > 0 {
		tags = append(tags, "tribes")
	}
	return tags
}
