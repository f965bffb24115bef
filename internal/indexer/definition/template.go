package definition

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
)

type queryData struct {
	Keywords string
	Term     string
	IMDB     string
	Season   int
	Episode  string
}

type templateData struct {
	Query      queryData
	Config     map[string]string
	Category   string
	Categories []string
}

func newTemplateData(def *Definition, cfg config.IndexerConfig, q indexer.Query) templateData {
	settings := make(map[string]string, len(cfg.Extra)+2)
	for k, v := range cfg.Extra {
		settings[k] = v
	}
	settings["username"] = cfg.Username
	settings["password"] = cfg.Password

	cats := siteCategories(def, q.Categories)
	data := templateData{
		Query: queryData{
			Keywords: q.Keywords(),
			Term:     strings.Join(strings.Fields(q.SearchTerm), " "),
			IMDB:     q.ImdbID,
			Season:   q.Season,
			Episode:  q.Episode,
		},
		Config:     settings,
		Categories: cats,
	}
	if len(cats) > 0 {
		data.Category = cats[0]
	}
	return data
}

// siteCategories maps wanted category ids back to the site's own ids.
func siteCategories(def *Definition, want []int) []string {
	if len(want) == 0 {
		return nil
	}
	var out []string
	for siteID, name := range def.Categories {
		id, ok := release.CategoryByName(name)
		if !ok {
			continue
		}
		for _, w := range want {
			if w == id || w == release.ParentCategory(id) {
				out = append(out, siteID)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// categoryFor maps a site category id to a category id.
func categoryFor(def *Definition, siteID string) int {
	siteID = strings.TrimSpace(siteID)
	if name, ok := def.Categories[siteID]; ok {
		if id, ok := release.CategoryByName(name); ok {
			return id
		}
	}
	if id, err := strconv.Atoi(siteID); err == nil && id >= 1000 && id < 9000 {
		return id
	}
	return release.CategoryOther
}

func render(text string, data templateData) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tpl, err := template.New("").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", text, err)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("template %q: %w", text, err)
	}
	return b.String(), nil
}
