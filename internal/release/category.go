package release

import (
	"slices"
	"strings"
)

// Torznab category ids
const (
	CategoryConsole = 1000

	CategoryMovies   = 2000
	CategoryMoviesSD = 2030
	CategoryMoviesHD = 2040
	CategoryMovies4K = 2045

	CategoryAudio         = 3000
	CategoryAudioMP3      = 3010
	CategoryAudioLossless = 3040

	CategoryPC     = 4000
	CategoryPCGame = 4050

	CategoryTV            = 5000
	CategoryTVSD          = 5030
	CategoryTVHD          = 5040
	CategoryTV4K          = 5045
	CategoryTVAnime       = 5070
	CategoryTVDocumentary = 5080

	CategoryXXX = 6000

	CategoryBooks       = 7000
	CategoryBooksEbook  = 7020
	CategoryBooksComics = 7030

	CategoryOther = 8000
)

var categoryNames = map[int]string{
	CategoryConsole:       "Console",
	CategoryMovies:        "Movies",
	CategoryMoviesSD:      "Movies/SD",
	CategoryMoviesHD:      "Movies/HD",
	CategoryMovies4K:      "Movies/UHD",
	CategoryAudio:         "Audio",
	CategoryAudioMP3:      "Audio/MP3",
	CategoryAudioLossless: "Audio/Lossless",
	CategoryPC:            "PC",
	CategoryPCGame:        "PC/Games",
	CategoryTV:            "TV",
	CategoryTVSD:          "TV/SD",
	CategoryTVHD:          "TV/HD",
	CategoryTV4K:          "TV/UHD",
	CategoryTVAnime:       "TV/Anime",
	CategoryTVDocumentary: "TV/Documentary",
	CategoryXXX:           "XXX",
	CategoryBooks:         "Books",
	CategoryBooksEbook:    "Books/EBook",
	CategoryBooksComics:   "Books/Comics",
	CategoryOther:         "Other",
}

// CategoryName returns the display name, falling back to the parent.
func CategoryName(id int) string {
	if name, ok := categoryNames[id]; ok {
		return name
	}
	if name, ok := categoryNames[ParentCategory(id)]; ok {
		return name
	}
	return "Other"
}

// CategoryByName resolves names like "movies/hd" case-insensitively.
func CategoryByName(name string) (int, bool) {
	for id, n := range categoryNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return id, true
		}
	}
	return 0, false
}

// ParentCategory maps 2040 to 2000. Custom site ids (>= 100000) are
// their own parent.
func ParentCategory(id int) int {
	if id >= 100000 {
		return id
	}
	return id / 1000 * 1000
}

// MatchesCategories reports whether r falls in any of want. An empty want
// matches everything; a parent id matches its children.
func (r Release) MatchesCategories(want []int) bool {
	if len(want) == 0 {
		return true
	}
	for _, c := range r.Category {
		if slices.Contains(want, c) || slices.Contains(want, ParentCategory(c)) {
			return true
		}
	}
	return false
}
