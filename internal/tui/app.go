// Package tui implements the terminal user interface using Bubble Tea.
// It searches every configured indexer at once, lists the merged results
// and shows the health of each indexer.
package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/litescript/ls-indexer/internal/config"
	"github.com/litescript/ls-indexer/internal/health"
	"github.com/litescript/ls-indexer/internal/indexer"
	"github.com/litescript/ls-indexer/internal/release"
	"github.com/litescript/ls-indexer/internal/version"
)

// Tabs
type tabType int

const (
	tabSearch tabType = iota
	tabIndexers
)

// Result columns
const (
	colName = iota
	colSize
	colSeeders
	colLeechers
	colHealth
	numCols
)

// Backend is what the TUI drives.
type Backend interface {
	Search(ctx context.Context, q indexer.Query) indexer.SearchResult
	Indexers() []*indexer.Indexer
	Download(ctx context.Context, indexerID, link string) ([]byte, error)
}

// RegistryBackend serves the TUI from a live registry.
type RegistryBackend struct {
	Registry *indexer.Registry
	Options  indexer.AggregatorOptions
}

func (b RegistryBackend) Search(ctx context.Context, q indexer.Query) indexer.SearchResult {
	return b.Registry.Aggregator(b.Options).Search(ctx, q)
}

func (b RegistryBackend) Indexers() []*indexer.Indexer {
	return b.Registry.All()
}

func (b RegistryBackend) Download(ctx context.Context, indexerID, link string) ([]byte, error) {
	ix, ok := b.Registry.Get(indexerID)
	if !ok {
		return nil, fmt.Errorf("unknown indexer %q", indexerID)
	}
	return ix.Download(ctx, link)
}

// TorrentClient receives downloaded payloads.
type TorrentClient interface {
	Add(ctx context.Context, name string, payload []byte) error
}

// Options configures the model.
type Options struct {
	Backend     Backend
	DownloadDir string
	// Client, when set, enables sending releases with "a".
	Client      TorrentClient
	Palette     Palette
	Logger      zerolog.Logger
	// CheckUpdate runs once at startup when set.
	CheckUpdate func(ctx context.Context) version.UpdateInfo
}

type indexerRow struct {
	id     string
	name   string
	health health.Snapshot
}

// Model is the main application state
type Model struct {
	opts   Options
	styles Styles

	searchInput textinput.Model
	spinner     spinner.Model

	activeTab tabType
	results   []release.Release
	failures  map[string]error
	skipped   []string
	cursor    int
	ixCursor  int
	searching bool
	err       error
	statusMsg string

	sortCol int
	sortAsc bool

	downloaded map[string]bool
	indexers   []indexerRow

	width  int
	height int
}

// Messages
type searchResultMsg struct {
	res indexer.SearchResult
}

type downloadMsg struct {
	title string
	path  string
	err   error
}

type probeMsg struct {
	id      string
	results int
	err     error
}

type updateCheckMsg struct {
	info version.UpdateInfo
}

type tickMsg time.Time

// NewModel creates the initial model
func NewModel(opts Options) Model {
	if opts.Palette == (Palette{}) {
		opts.Palette = DefaultPalette()
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	styles := NewStyles(opts.Palette)

	ti := textinput.New()
	ti.Placeholder = "Search indexers..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := Model{
		opts:        opts,
		styles:      styles,
		searchInput: ti,
		spinner:     sp,
		sortCol:     colSeeders,
		downloaded:  make(map[string]bool),
	}
	m.refreshIndexers()
	return m
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, tickCmd()}
	if m.opts.CheckUpdate != nil {
		check := m.opts.CheckUpdate
		cmds = append(cmds, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return updateCheckMsg{info: check(ctx)}
		})
	}
	return tea.Batch(cmds...)
}

// tickCmd refreshes the indexer health view every 5 seconds
func tickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) refreshIndexers() {
	if m.opts.Backend == nil {
		return
	}
	ixs := m.opts.Backend.Indexers()
	rows := make([]indexerRow, 0, len(ixs))
	for _, ix := range ixs {
		rows = append(rows, indexerRow{id: ix.ID(), name: ix.Name(), health: ix.HealthSnapshot()})
	}
	m.indexers = rows
	if m.ixCursor >= len(rows) {
		m.ixCursor = max(len(rows)-1, 0)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.searchInput.Width = max(msg.Width-20, 10)
		return m, nil

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case searchResultMsg:
		m.searching = false
		m.results = msg.res.Releases
		m.failures = msg.res.Errors
		m.skipped = msg.res.Skipped
		m.cursor = 0
		m.err = nil
		sortResults(m.results, m.sortCol, m.sortAsc)
		if len(m.results) == 0 && len(m.failures) > 0 {
			m.err = fmt.Errorf("all %d indexers failed", len(m.failures))
		}
		m.statusMsg = m.searchSummary()
		m.refreshIndexers()
		return m, nil

	case downloadMsg:
		if msg.err != nil {
			m.statusMsg = m.styles.Error.Render("Download failed: " + msg.err.Error())
			m.opts.Logger.Warn().Err(msg.err).Str("title", msg.title).Msg("Download failed")
			return m, nil
		}
		m.downloaded[msg.title] = true
		m.statusMsg = "Saved to " + msg.path
		return m, nil

	case probeMsg:
		if msg.err != nil {
			m.statusMsg = m.styles.Error.Render(fmt.Sprintf("%s: %v", msg.id, msg.err))
		} else {
			m.statusMsg = fmt.Sprintf("%s answered with %d releases", msg.id, msg.results)
		}
		m.refreshIndexers()
		return m, nil

	case updateCheckMsg:
		if msg.info.UpdateAvailable {
			m.statusMsg = fmt.Sprintf("Update available: v%s (%s)", msg.info.LatestVersion, version.InstallCommand())
		}
		return m, nil

	case tickMsg:
		m.refreshIndexers()
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" {
		return m, tea.Quit
	}

	if m.searchInput.Focused() {
		switch key {
		case "esc":
			m.searchInput.Blur()
			return m, nil
		case "ctrl+u":
			m.searchInput.SetValue("")
			return m, nil
		case "enter":
			if strings.TrimSpace(m.searchInput.Value()) == "" || m.searching {
				return m, nil
			}
			m.searchInput.Blur()
			m.searching = true
			m.err = nil
			m.statusMsg = ""
			return m, tea.Batch(m.spinner.Tick, m.doSearch())
		}
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		return m, cmd
	}

	switch key {
	case "q":
		return m, tea.Quit
	case "1", "alt+1":
		m.activeTab = tabSearch
	case "2", "alt+2":
		m.activeTab = tabIndexers
		m.refreshIndexers()
	case "tab":
		m.activeTab = (m.activeTab + 1) % 2
		m.refreshIndexers()
	case "/":
		m.activeTab = tabSearch
		m.searchInput.Focus()
		return m, textinput.Blink
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "left", "h":
		if m.activeTab == tabSearch {
			m.sortCol = (m.sortCol + numCols - 1) % numCols
			sortResults(m.results, m.sortCol, m.sortAsc)
		}
	case "right", "l":
		if m.activeTab == tabSearch {
			m.sortCol = (m.sortCol + 1) % numCols
			sortResults(m.results, m.sortCol, m.sortAsc)
		}
	case "s":
		if m.activeTab == tabSearch {
			m.sortAsc = !m.sortAsc
			sortResults(m.results, m.sortCol, m.sortAsc)
		}
	case "enter":
		if m.activeTab == tabSearch && m.cursor < len(m.results) {
			r := m.results[m.cursor]
			m.statusMsg = "Downloading " + TruncateString(r.Title, 40) + "..."
			return m, m.download(r)
		}
	case "a":
		if m.activeTab == tabSearch && m.opts.Client != nil && m.cursor < len(m.results) {
			r := m.results[m.cursor]
			m.statusMsg = "Sending " + TruncateString(r.Title, 40) + "..."
			return m, m.send(r)
		}
	case "r":
		if m.activeTab == tabIndexers && m.ixCursor < len(m.indexers) {
			id := m.indexers[m.ixCursor].id
			m.statusMsg = "Testing " + id + "..."
			return m, m.probe(id)
		}
	}
	return m, nil
}

func (m *Model) moveCursor(delta int) {
	if m.activeTab == tabIndexers {
		m.ixCursor = clamp(m.ixCursor+delta, 0, len(m.indexers)-1)
		return
	}
	m.cursor = clamp(m.cursor+delta, 0, len(m.results)-1)
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func (m Model) searchSummary() string {
	s := fmt.Sprintf("%d results", len(m.results))
	if n := len(m.failures); n > 0 {
		s += fmt.Sprintf(", %d indexers failed", n)
	}
	if n := len(m.skipped); n > 0 {
		s += fmt.Sprintf(", %d skipped", n)
	}
	return s
}

func (m Model) doSearch() tea.Cmd {
	backend := m.opts.Backend
	q := indexer.Query{SearchTerm: m.searchInput.Value()}
	logger := m.opts.Logger

	return func() tea.Msg {
		ctx := logger.WithContext(context.Background())
		return searchResultMsg{res: backend.Search(ctx, q)}
	}
}

func (m Model) download(r release.Release) tea.Cmd {
	backend := m.opts.Backend
	dir := m.opts.DownloadDir

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		data, err := backend.Download(ctx, r.Indexer, r.DownloadTarget())
		if err != nil {
			return downloadMsg{title: r.Title, err: err}
		}

		name := config.Slug(r.Title)
		if name == "" {
			name = "release"
		}
		ext := ".torrent"
		if strings.HasPrefix(string(data), "magnet:") {
			ext = ".magnet"
		}
		path := filepath.Join(dir, name+ext)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return downloadMsg{title: r.Title, err: err}
		}
		return downloadMsg{title: r.Title, path: path}
	}
}

func (m Model) send(r release.Release) tea.Cmd {
	backend := m.opts.Backend
	client := m.opts.Client

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		data, err := backend.Download(ctx, r.Indexer, r.DownloadTarget())
		if err == nil {
			err = client.Add(ctx, config.Slug(r.Title), data)
		}
		return downloadMsg{title: r.Title, path: "qBittorrent", err: err}
	}
}

// probe runs a latest-releases query against one indexer.
func (m Model) probe(id string) tea.Cmd {
	backend := m.opts.Backend
	return func() tea.Msg {
		for _, ix := range backend.Indexers() {
			if ix.ID() != id {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			res, err := ix.ResultsForQuery(ctx, indexer.Query{})
			return probeMsg{id: id, results: len(res), err: err}
		}
		return probeMsg{id: id, err: fmt.Errorf("indexer is gone")}
	}
}

func sortResults(results []release.Release, col int, asc bool) {
	sort.SliceStable(results, func(i, j int) bool {
		var less bool
		switch col {
		case colName:
			less = strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
		case colSize:
			less = results[i].Size < results[j].Size
		case colLeechers:
			less = results[i].Leechers() < results[j].Leechers()
		case colHealth:
			less = results[i].SwarmHealth() < results[j].SwarmHealth()
		default:
			less = results[i].Seeders < results[j].Seeders
		}
		if asc {
			return less
		}
		return !less
	})
}

// View renders the UI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("ls-indexer v" + version.Version))
	b.WriteString("\n")
	b.WriteString(m.renderTabBar())
	b.WriteString("\n\n")

	height := max(m.height-8, 5)
	switch m.activeTab {
	case tabIndexers:
		b.WriteString(m.renderIndexersTab(height))
	default:
		b.WriteString(m.renderSearchTab(height))
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabBar() string {
	failing := 0
	for _, ix := range m.indexers {
		if ix.health.Status == health.Failing {
			failing++
		}
	}

	tabs := []struct {
		name  string
		tab   tabType
		count int
	}{
		{"[1]Search", tabSearch, len(m.results)},
		{"[2]Indexers", tabIndexers, len(m.indexers)},
	}

	var parts []string
	for _, t := range tabs {
		label := t.name
		if t.count > 0 {
			label = fmt.Sprintf("%s(%d)", t.name, t.count)
		}
		if t.tab == m.activeTab {
			parts = append(parts, m.styles.Title.Render(label))
		} else {
			parts = append(parts, m.styles.Muted.Render(label))
		}
	}
	line := strings.Join(parts, "  ")
	if failing > 0 {
		line += "  " + m.styles.Bad.Render(fmt.Sprintf("%d failing", failing))
	}
	return line
}

func (m Model) renderSearchTab(height int) string {
	var b strings.Builder

	b.WriteString(m.styles.SearchPrompt.Render("Search: ") + m.searchInput.View())
	b.WriteString("\n")

	switch {
	case m.searching:
		b.WriteString(m.spinner.View() + " Searching...")
	case m.err != nil:
		b.WriteString(m.styles.Error.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
		b.WriteString(m.renderFailures())
	default:
		b.WriteString(m.renderResults(height - 1))
	}
	return b.String()
}

func (m Model) renderFailures() string {
	ids := make([]string, 0, len(m.failures))
	for id := range m.failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(m.styles.Muted.Render(TruncateString(fmt.Sprintf("  %s: %v", id, m.failures[id]), max(m.width-2, 40))))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderResults(height int) string {
	if len(m.results) == 0 {
		return m.styles.Muted.Render("No results")
	}

	var b strings.Builder

	colWidths := []int{0, 10, 6, 6, 6}
	nameWidth := max(m.width-2-10-6-6-6-4-2, 20)
	colWidths[0] = nameWidth
	colNames := []string{"NAME", "SIZE", "SEED", "LEECH", "HEALTH"}

	var headerParts []string
	for i, name := range colNames {
		w := colWidths[i]
		if i == m.sortCol {
			if m.sortAsc {
				name += "↑"
			} else {
				name += "↓"
			}
		}
		var text string
		if i == colName {
			text = PadRight(name, w)
		} else {
			text = PadLeft(name, w)
		}
		if i == m.sortCol {
			headerParts = append(headerParts, m.styles.SortedHeader.Render(text))
		} else {
			headerParts = append(headerParts, m.styles.Muted.Render(text))
		}
	}
	b.WriteString(m.styles.TableHeader.Render("  " + strings.Join(headerParts, " ")))
	b.WriteString("\n")

	visibleRows := max(height-3, 1)
	startIdx := 0
	if m.cursor >= visibleRows {
		startIdx = m.cursor - visibleRows + 1
	}
	endIdx := min(startIdx+visibleRows, len(m.results))

	for i := startIdx; i < endIdx; i++ {
		r := m.results[i]
		title := r.Title
		if r.FreeLeech() {
			title = "[FL] " + title
		}
		row := fmt.Sprintf("%s %s %s %s %s",
			PadRight(TruncateString(title, nameWidth-2), nameWidth),
			PadLeft(release.FormatSize(r.Size), 10),
			PadLeft(fmt.Sprintf("%d", r.Seeders), 6),
			PadLeft(fmt.Sprintf("%d", r.Leechers()), 6),
			m.styles.HealthBar(r.SwarmHealth(), 6))

		marker := "  "
		if m.downloaded[r.Title] {
			marker = m.styles.Good.Render("✓ ")
		}
		if i == m.cursor {
			b.WriteString(marker + m.styles.TableSelected.Render(row))
		} else {
			b.WriteString(marker + m.styles.TableRow.Render(row))
		}
		b.WriteString("\n")
	}

	if m.cursor < len(m.results) {
		r := m.results[m.cursor]
		b.WriteString(m.styles.Muted.Render(TruncateString(fmt.Sprintf("  %s · %s · %s", r.Indexer, release.CategoryName(firstCategory(r)), r.Details), max(m.width-2, 40))))
	}
	return b.String()
}

func firstCategory(r release.Release) int {
	if len(r.Category) == 0 {
		return release.CategoryOther
	}
	return r.Category[0]
}

func (m Model) renderIndexersTab(height int) string {
	var b strings.Builder
	b.WriteString(m.styles.PanelTitle.Render("Indexers"))
	b.WriteString("  ")
	b.WriteString(m.styles.Muted.Render("[r]Test"))
	b.WriteString("\n\n")

	if len(m.indexers) == 0 {
		b.WriteString(m.styles.Muted.Render("No indexers configured. Add one to " + config.ConfigPath()))
		return b.String()
	}

	nameWidth := max(m.width-10-8-12-8, 20)
	header := fmt.Sprintf("  %s %s %s %s",
		PadRight("INDEXER", nameWidth),
		PadLeft("STATUS", 10),
		PadLeft("ERRORS", 8),
		PadLeft("RECHECK", 12))
	b.WriteString(m.styles.TableHeader.Render(header))
	b.WriteString("\n")

	visibleRows := max(height-4, 1)
	startIdx := 0
	if m.ixCursor >= visibleRows {
		startIdx = m.ixCursor - visibleRows + 1
	}
	endIdx := min(startIdx+visibleRows, len(m.indexers))

	for i := startIdx; i < endIdx; i++ {
		ix := m.indexers[i]
		recheck := "-"
		if !ix.health.ExpireAt.IsZero() {
			recheck = time.Until(ix.health.ExpireAt).Round(time.Minute).String()
		}
		name := PadRight(TruncateString(fmt.Sprintf("%s (%s)", ix.name, ix.id), nameWidth), nameWidth)
		status := lipgloss.PlaceHorizontal(10, lipgloss.Right, m.styles.Status(ix.health.Status))
		rest := fmt.Sprintf(" %s %s", PadLeft(fmt.Sprintf("%d", ix.health.ErrorCount), 8), PadLeft(recheck, 12))

		if i == m.ixCursor {
			b.WriteString(m.styles.TableSelected.Render("▸ "+name+" ") + status + m.styles.TableSelected.Render(rest))
		} else {
			b.WriteString(m.styles.TableRow.Render("  "+name+" ") + status + m.styles.TableRow.Render(rest))
		}
		b.WriteString("\n")

		if i == m.ixCursor && ix.health.LastError != "" {
			b.WriteString(m.styles.Error.Render(TruncateString("    "+ix.health.LastError, max(m.width-2, 40))))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m Model) renderStatusBar() string {
	var modeStr string
	if m.searchInput.Focused() {
		modeStr = m.styles.Good.Render("INPUT")
	} else {
		modeStr = m.styles.Warn.Render("CMD")
	}

	var help string
	switch {
	case m.searchInput.Focused():
		help = "[esc]CMD [ctrl+u]Clear [enter]Search"
	case m.activeTab == tabIndexers:
		help = "[↑↓]Select [r]Test [1]Search [q]Quit"
	default:
		help = "[/]Search [←→]Sort [s]Toggle [enter]Download [2]Indexers [q]Quit"
		if m.opts.Client != nil {
			help = "[/]Search [←→]Sort [s]Toggle [enter]Save [a]Send [2]Indexers [q]Quit"
		}
	}

	left := modeStr
	if m.statusMsg != "" {
		left += "  " + m.statusMsg
	}
	right := m.styles.HelpKey.Render(help)

	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return left + strings.Repeat(" ", padding) + right
}
