package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
)

// buildQuery accepts category ids ("2000") or names ("Movies/HD").
func buildQuery(term, categories string, limit int) (indexer.Query, error) {
	q := indexer.Query{SearchTerm: term, Limit: limit}
	for _, c := range strings.Split(categories, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if id, err := strconv.Atoi(c); err == nil {
			q.Categories = append(q.Categories, id)
			continue
		}
		id, ok := release.CategoryByName(c)
		if !ok {
			return q, fmt.Errorf("unknown category %q", c)
		}
		q.Categories = append(q.Categories, id)
	}
	return q, nil
}

func printResults(w io.Writer, res indexer.SearchResult) {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	right := cell.Align(lipgloss.Right)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("TITLE", "SIZE", "SEED", "LEECH", "INDEXER").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col >= 1 && col <= 3:
				return right
			default:
				return cell
			}
		})

	for _, r := range res.Releases {
		t.Row(
			truncate(r.Title, 70),
			release.FormatSize(r.Size),
			strconv.Itoa(r.Seeders),
			strconv.Itoa(r.Leechers()),
			r.Indexer,
		)
	}

	if len(res.Releases) > 0 {
		fmt.Fprintln(w, t.Render())
	}
	fmt.Fprintf(w, "%d results\n", len(res.Releases))
	for id, err := range res.Errors {
		fmt.Fprintf(w, "  %s: %v\n", id, err)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped failing: %s\n", strings.Join(res.Skipped, ", "))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// testIndexers runs ApplyConfiguration for every loaded indexer with its live
// settings, env overrides included, which logs in where the site needs it.
func testIndexers(ctx context.Context, reg *indexer.Registry) int {
	failed := 0
	for _, ix := range reg.All() {
		cfg := ix.Runtime().Config()
		ctx, cancel := context.WithTimeout(ctx, time.Minute)
		status, err := ix.ApplyConfiguration(ctx, cfg)
		cancel()

		if err != nil {
			failed++
			fmt.Printf("FAIL %-20s %v\n", ix.ID(), err)
			continue
		}
		fmt.Printf("ok   %-20s %s\n", ix.ID(), status)
	}
	if failed > 0 {
		return 1
	}
	return 0
}
