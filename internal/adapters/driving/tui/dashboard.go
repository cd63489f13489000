package tui

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

// pollInterval is how often the engine status is re-read.
const pollInterval = time.Second

type (
	tickMsg time.Time

	openedMsg struct {
		info *domain.CollectionInfo
		err  error
	}

	snapshotMsg struct {
		info   *domain.CollectionInfo
		gens   []domain.GenerationInfo
		active string
		err    error
	}

	syncDoneMsg struct {
		result *domain.SyncResult
		err    error
	}

	cacheDoneMsg struct {
		report  *domain.InstallReport
		deleted []string
		err     error
	}
)

// Dashboard shows collection, sync and cache state and lets the user
// trigger passes. It implements tea.Model.
type Dashboard struct {
	ports   *Ports
	ctx     context.Context
	styles  *Styles
	keys    keyMap
	help    help.Model
	spinner spinner.Model

	status driving.SyncStatus
	info   *domain.CollectionInfo
	gens   []domain.GenerationInfo
	active string

	// busy names the running operation; empty when idle.
	busy    string
	message string
	err     error
	width   int
}

// Ensure Dashboard implements tea.Model.
var _ tea.Model = (*Dashboard)(nil)

// NewDashboard creates a dashboard over the given ports.
func NewDashboard(ports *Ports) (*Dashboard, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating dashboard: %w", err)
	}

	return &Dashboard{
		ports:   ports,
		ctx:     context.Background(),
		styles:  NewStyles(nil),
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		busy:    "Opening collection",
		width:   80,
	}, nil
}

// WithContext sets the context used for service calls.
func (d *Dashboard) WithContext(ctx context.Context) *Dashboard {
	d.ctx = ctx
	return d
}

// Run starts the dashboard and blocks until the user quits or ctx is done.
func Run(ctx context.Context, ports *Ports) error {
	d, err := NewDashboard(ports)
	if err != nil {
		return err
	}

	p := tea.NewProgram(d.WithContext(ctx), tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("larder"),
		d.spinner.Tick,
		d.open(),
		tick(),
	)
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.help.Width = msg.Width
		return d, nil

	case tea.KeyMsg:
		return d, d.handleKey(msg)

	case tickMsg:
		d.status = d.ports.Sync.Status()
		return d, tea.Batch(tick(), d.snapshot())

	case openedMsg:
		d.busy = ""
		if msg.err != nil {
			d.err = msg.err
			return d, nil
		}
		d.info = msg.info
		d.status = d.ports.Sync.Status()
		return d, d.snapshot()

	case snapshotMsg:
		if msg.err != nil {
			d.err = msg.err
			return d, nil
		}
		if msg.info != nil {
			d.info = msg.info
		}
		d.gens = msg.gens
		d.active = msg.active
		return d, nil

	case syncDoneMsg:
		d.busy = ""
		d.status = d.ports.Sync.Status()
		if msg.err != nil {
			d.err = msg.err
			return d, nil
		}
		d.err = nil
		d.message = formatResult(msg.result)
		return d, d.snapshot()

	case cacheDoneMsg:
		d.busy = ""
		if msg.err != nil {
			d.err = msg.err
			return d, nil
		}
		d.err = nil
		switch {
		case msg.report == nil:
			d.message = "Cache is up to date"
		default:
			d.message = fmt.Sprintf("Installed %s: %d prefetched, %d failed, %d purged",
				msg.report.Generation, len(msg.report.Stored), len(msg.report.Failed), len(msg.deleted))
		}
		return d, d.snapshot()

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	}

	return d, nil
}

func (d *Dashboard) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, d.keys.Quit):
		return tea.Quit
	case key.Matches(msg, d.keys.Help):
		d.help.ShowAll = !d.help.ShowAll
		return nil
	}

	if d.busy != "" {
		return nil
	}

	switch {
	case key.Matches(msg, d.keys.Refresh):
		d.busy = "Refreshing"
		return d.refresh(false)
	case key.Matches(msg, d.keys.Full):
		d.busy = "Full refresh"
		return d.refresh(true)
	case key.Matches(msg, d.keys.Cache):
		if d.ports.Cache == nil {
			return nil
		}
		d.busy = "Applying cache"
		return d.applyCache()
	}
	return nil
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	var b strings.Builder

	b.WriteString(d.styles.Title.Render("larder"))
	b.WriteString("\n\n")

	rows := []string{
		d.row("Collection", d.collectionLine()),
		d.row("Last sync", d.lastSyncLine()),
		d.row("Last pass", d.lastPassLine()),
		d.row("Downloads", fmt.Sprintf("%d pending", d.status.PendingDownloads)),
	}
	if d.ports.Cache != nil {
		rows = append(rows, d.row("Cache", d.cacheLine()))
	}
	b.WriteString(d.styles.Panel.Render(strings.Join(rows, "\n")))
	b.WriteString("\n")

	for _, g := range d.sortedGenerations() {
		marker := "  "
		style := d.styles.Muted
		if g.Name == d.active {
			marker = "* "
			style = d.styles.Normal
		}
		b.WriteString(style.Render(fmt.Sprintf("%s%-24s %d entries", marker, g.Name, g.Entries)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case d.err != nil:
		b.WriteString(d.styles.Error.Render("Error: " + d.err.Error()))
	case d.message != "":
		b.WriteString(d.styles.Success.Render(d.message))
	}
	b.WriteString("\n\n")
	b.WriteString(d.statusBar())

	return b.String()
}

func (d *Dashboard) row(label, value string) string {
	return d.styles.Label.Render(label) + d.styles.Normal.Render(value)
}

func (d *Dashboard) collectionLine() string {
	if d.info == nil {
		return "not open"
	}
	return fmt.Sprintf("%s, %d records", d.info.Name, d.info.Records)
}

func (d *Dashboard) lastSyncLine() string {
	if d.status.LastSync.IsZero() {
		return "never"
	}
	return d.status.LastSync.Local().Format(time.DateTime)
}

func (d *Dashboard) lastPassLine() string {
	if d.status.Running {
		return fmt.Sprintf("running, %d processed, %d errors", d.status.RecordsProcessed, d.status.ErrorCount)
	}
	if r := d.status.LastResult; r != nil && r.Failed > 0 &&
		d.status.LastError == fmt.Sprintf("%d records failed", r.Failed) {
		return d.styles.Warning.Render(formatResult(r))
	}
	if d.status.LastError != "" {
		return d.styles.Error.Render("aborted: " + d.status.LastError)
	}
	if d.status.LastResult == nil {
		return "none"
	}
	return formatResult(d.status.LastResult)
}

func (d *Dashboard) cacheLine() string {
	if d.active == "" {
		return "not installed"
	}
	return d.active
}

func (d *Dashboard) statusBar() string {
	left := d.styles.Muted.Render("Ready")
	if d.busy != "" {
		left = d.spinner.View() + " " + d.styles.Warning.Render(d.busy+"...")
	}
	right := d.help.View(d.keys)

	padding := d.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return d.styles.StatusBar.Render(left + strings.Repeat(" ", padding) + right)
}

func (d *Dashboard) sortedGenerations() []domain.GenerationInfo {
	gens := append([]domain.GenerationInfo(nil), d.gens...)
	sort.Slice(gens, func(i, j int) bool { return gens[i].Name < gens[j].Name })
	return gens
}

func formatResult(r *domain.SyncResult) string {
	if r == nil {
		return "none"
	}
	return fmt.Sprintf("%d inserted, %d updated, %d unchanged, %d failed", r.Inserted, r.Updated, r.Unchanged, r.Failed)
}

// Commands.

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (d *Dashboard) open() tea.Cmd {
	ctx, engine := d.ctx, d.ports.Sync
	return func() tea.Msg {
		info, err := engine.Start(ctx)
		return openedMsg{info: info, err: err}
	}
}

func (d *Dashboard) snapshot() tea.Cmd {
	ctx, records, cache := d.ctx, d.ports.Records, d.ports.Cache
	return func() tea.Msg {
		var msg snapshotMsg
		msg.info, msg.err = records.Info(ctx)
		if msg.err != nil || cache == nil {
			return msg
		}
		msg.active = cache.Active()
		versions, err := cache.Versions()
		if err != nil {
			msg.err = err
			return msg
		}
		msg.gens, msg.err = versions.Generations(ctx)
		return msg
	}
}

func (d *Dashboard) refresh(full bool) tea.Cmd {
	ctx, engine := d.ctx, d.ports.Sync
	return func() tea.Msg {
		var (
			result *domain.SyncResult
			err    error
		)
		if full {
			result, err = engine.Refresh(ctx, time.Time{})
		} else {
			result, err = engine.RefreshIncremental(ctx)
		}
		return syncDoneMsg{result: result, err: err}
	}
}

func (d *Dashboard) applyCache() tea.Cmd {
	ctx, cache := d.ctx, d.ports.Cache
	return func() tea.Msg {
		report, deleted, err := cache.Apply(ctx)
		return cacheDoneMsg{report: report, deleted: deleted, err: err}
	}
}
