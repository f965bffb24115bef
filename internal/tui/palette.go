package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/ini.v1"
)

// Palette holds the color scheme for the TUI
type Palette struct {
	FG       string // foreground (primary text)
	Muted    string // secondary info
	Accent   string // spinner, highlights
	AccentBg string // selection background
	Good     string
	Warn     string
	Error    string
}

// DefaultPalette returns the fallback amber-on-dark theme
func DefaultPalette() Palette {
	return Palette{
		FG:       "#d4a017",
		Muted:    "#6b6b4f",
		Accent:   "#8bc34a",
		AccentBg: "#1a1a14",
		Good:     "#8bc34a",
		Warn:     "#ffb347",
		Error:    "#ff6b6b",
	}
}

// DetectPalette follows the terminal's colors when it can find them:
// Alacritty (including the Omarchy current theme), then foot. Env overrides
// apply last.
func DetectPalette() Palette {
	home, err := os.UserHomeDir()
	if err != nil {
		return PaletteFromEnv(DefaultPalette())
	}

	for _, path := range []string{
		filepath.Join(home, ".config", "omarchy", "current", "theme", "alacritty.toml"),
		filepath.Join(home, ".config", "alacritty", "alacritty.toml"),
	} {
		if p, ok := paletteFromAlacritty(path); ok {
			return PaletteFromEnv(p)
		}
	}
	if p, ok := paletteFromFoot(filepath.Join(home, ".config", "foot", "foot.ini")); ok {
		return PaletteFromEnv(p)
	}
	return PaletteFromEnv(DefaultPalette())
}

type alacrittyColors struct {
	Colors struct {
		Primary struct {
			Foreground string `toml:"foreground"`
		} `toml:"primary"`
		Selection struct {
			Background string `toml:"background"`
		} `toml:"selection"`
	} `toml:"colors"`
}

func paletteFromAlacritty(path string) (Palette, bool) {
	var cfg alacrittyColors
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Palette{}, false
	}
	return derivePalette(cfg.Colors.Primary.Foreground, cfg.Colors.Selection.Background)
}

func paletteFromFoot(path string) (Palette, bool) {
	f, err := ini.Load(path)
	if err != nil {
		return Palette{}, false
	}
	colors := f.Section("colors")
	return derivePalette(colors.Key("foreground").String(), colors.Key("selection-background").String())
}

func derivePalette(fg, selection string) (Palette, bool) {
	fg, ok := normalizeHex(fg)
	if !ok {
		return Palette{}, false
	}
	p := DefaultPalette()
	p.FG = fg
	p.Muted = dimColor(fg, 0.5)
	if sel, ok := normalizeHex(selection); ok {
		p.AccentBg = sel
	}
	return p, true
}

// PaletteFromEnv applies LSINDEXER_COLOR_<NAME> overrides, e.g.
// LSINDEXER_COLOR_ACCENT=#00ff00.
func PaletteFromEnv(p Palette) Palette {
	overrides := map[string]*string{
		"FG":        &p.FG,
		"MUTED":     &p.Muted,
		"ACCENT":    &p.Accent,
		"ACCENT_BG": &p.AccentBg,
		"GOOD":      &p.Good,
		"WARN":      &p.Warn,
		"ERROR":     &p.Error,
	}
	for name, field := range overrides {
		if v, ok := normalizeHex(os.Getenv("LSINDEXER_COLOR_" + name)); ok {
			*field = v
		}
	}
	return p
}

// normalizeHex accepts "#rrggbb", "0xrrggbb", "rrggbb" and "#rgb".
func normalizeHex(color string) (string, bool) {
	color = strings.ToLower(strings.TrimSpace(color))
	color = strings.TrimPrefix(color, "0x")
	color = strings.TrimPrefix(color, "#")
	if len(color) == 3 {
		color = string([]byte{color[0], color[0], color[1], color[1], color[2], color[2]})
	}
	if len(color) != 6 {
		return "", false
	}
	if _, err := strconv.ParseUint(color, 16, 32); err != nil {
		return "", false
	}
	return "#" + color, true
}

// dimColor scales each channel of a normalized color by factor.
func dimColor(hex string, factor float64) string {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return hex
	}
	r := float64(v>>16&0xff) * factor
	g := float64(v>>8&0xff) * factor
	b := float64(v&0xff) * factor
	return fmt.Sprintf("#%02x%02x%02x", int(r), int(g), int(b))
}
