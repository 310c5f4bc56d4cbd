// Package tui is the interactive merge wizard: pick the duplicates, pick
// the party that survives them, confirm.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/id"
	"github.com/lherron/partymerge/internal/merge"
)

// MergeFunc performs the confirmed merge.
type MergeFunc func(ctx context.Context, req domain.MergeRequest) (*merge.Report, error)

type step int

const (
	stepDuplicates step = iota
	stepTarget
	stepConfirm
	stepMerging
	stepDone
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#6BCB77")).MarginBottom(1)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).MarginTop(1)
	errorStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)
	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(1, 2)
)

// partyItem wraps a Party for the list display
type partyItem struct {
	party    domain.Party
	selected map[int64]bool
}

func (i partyItem) Title() string {
	mark := ""
	if i.selected != nil {
		mark = "[ ] "
		if i.selected[i.party.ID] {
			mark = "[x] "
		}
	}
	return mark + i.party.DisplayName
}

func (i partyItem) Description() string { return id.FormatParty(i.party.ID) }
func (i partyItem) FilterValue() string { return i.party.DisplayName }

// Model is the wizard's bubbletea model.
type Model struct {
	ctx     context.Context
	parties []domain.Party
	mergeFn MergeFunc
	policy  domain.MergePolicy

	step     step
	list     list.Model
	selected map[int64]bool
	target   *domain.Party
	errorMsg string

	report    *merge.Report
	err       error
	cancelled bool
}

type mergeDoneMsg struct {
	report *merge.Report
	err    error
}

// New creates the wizard over the active parties.
func New(ctx context.Context, parties []domain.Party, policy domain.MergePolicy, mergeFn MergeFunc) *Model {
	m := &Model{
		ctx:      ctx,
		parties:  parties,
		mergeFn:  mergeFn,
		policy:   policy,
		selected: make(map[int64]bool),
	}

	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	m.list = list.New(nil, delegate, 60, 20)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(true)
	m.list.DisableQuitKeybindings()
	m.showDuplicates()
	return m
}

func (m *Model) showDuplicates() {
	items := make([]list.Item, len(m.parties))
	for i, p := range m.parties {
		items[i] = partyItem{party: p, selected: m.selected}
	}
	m.list.Title = "Step 1/2: select duplicates (space to toggle, enter to continue)"
	m.list.SetItems(items)
	m.step = stepDuplicates
}

func (m *Model) showTargets() {
	items := make([]list.Item, 0, len(m.parties))
	for _, p := range m.parties {
		if !m.selected[p.ID] {
			items = append(items, partyItem{party: p})
		}
	}
	m.list.Title = "Step 2/2: select the party to keep (enter to choose)"
	m.list.ResetFilter()
	m.list.SetItems(items)
	m.list.Select(0)
	m.step = stepTarget
}

// Duplicates returns the selected duplicates in identity order.
func (m *Model) Duplicates() []int64 {
	out := make([]int64, 0, len(m.selected))
	for partyID, ok := range m.selected {
		if ok {
			out = append(out, partyID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Result returns the merge report, the merge error, and whether the user
// cancelled before anything was merged.
func (m *Model) Result() (*merge.Report, error, bool) {
	return m.report, m.err, m.cancelled
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 8
		if height < 5 {
			height = msg.Height
		}
		m.list.SetSize(msg.Width-4, height)
		return m, nil

	case mergeDoneMsg:
		m.report = msg.report
		m.err = msg.err
		m.step = stepDone
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancelled = m.step != stepMerging && m.step != stepDone
			return m, tea.Quit
		}
		if m.list.FilterState() == list.Filtering {
			break
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch m.step {
	case stepMerging, stepDone:
		return nil, true
	}

	key := msg.String()
	if key == "esc" {
		m.cancelled = true
		return tea.Quit, true
	}

	switch m.step {
	case stepDuplicates:
		switch key {
		case " ", "x":
			if item, ok := m.list.SelectedItem().(partyItem); ok {
				m.selected[item.party.ID] = !m.selected[item.party.ID]
				if !m.selected[item.party.ID] {
					delete(m.selected, item.party.ID)
				}
			}
			m.errorMsg = ""
			return nil, true
		case "enter":
			switch {
			case len(m.selected) == 0:
				m.errorMsg = "select at least one duplicate"
			case len(m.selected) == len(m.parties):
				m.errorMsg = "leave at least one party to keep"
			default:
				m.errorMsg = ""
				m.showTargets()
			}
			return nil, true
		}

	case stepTarget:
		if key == "enter" {
			if item, ok := m.list.SelectedItem().(partyItem); ok {
				target := item.party
				m.target = &target
				m.step = stepConfirm
			}
			return nil, true
		}

	case stepConfirm:
		switch key {
		case "y", "enter":
			m.step = stepMerging
			return m.runMerge(), true
		case "n":
			m.cancelled = true
			return tea.Quit, true
		}
		return nil, true
	}
	return nil, false
}

func (m *Model) runMerge() tea.Cmd {
	req := domain.MergeRequest{
		Duplicates: m.Duplicates(),
		Target:     m.target.ID,
		Policy:     m.policy,
	}
	ctx := m.ctx
	fn := m.mergeFn
	return func() tea.Msg {
		report, err := fn(ctx, req)
		return mergeDoneMsg{report: report, err: err}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	header := titleStyle.Render("⬡ MERGE PARTIES")

	var content string
	switch m.step {
	case stepDuplicates, stepTarget:
		content = m.list.View()
	case stepConfirm:
		content = summaryStyle.Render(m.summary() + "\n\nMerge now? (y/n)")
	case stepMerging:
		content = summaryStyle.Render(m.summary() + "\n\nMerging...")
	case stepDone:
		if m.err != nil {
			content = errorStyle.Render(fmt.Sprintf("⚠ merge failed: %v", m.err))
		} else {
			content = summaryStyle.Render(fmt.Sprintf("Merged %d parties into %s, %d references moved.",
				len(m.report.Duplicates), id.FormatParty(m.report.Target), m.report.Rows()))
		}
	}
	if m.errorMsg != "" {
		content = fmt.Sprintf("%s\n\n%s", content, errorStyle.Render("⚠ "+m.errorMsg))
	}

	footer := statusStyle.Render(fmt.Sprintf("%d selected · policy %s · esc to cancel", len(m.selected), m.policy))
	return fmt.Sprintf("%s\n%s\n%s", header, content, footer)
}

func (m *Model) summary() string {
	names := make([]string, 0, len(m.selected))
	for _, p := range m.parties {
		if m.selected[p.ID] {
			names = append(names, fmt.Sprintf("  %s %s", id.FormatParty(p.ID), p.DisplayName))
		}
	}
	return fmt.Sprintf("Duplicates:\n%s\n\nKeep:\n  %s %s\n\nPolicy: %s",
		strings.Join(names, "\n"), id.FormatParty(m.target.ID), m.target.DisplayName, m.policy)
}

// Run shows the wizard on the terminal and returns once it exits.
func Run(ctx context.Context, parties []domain.Party, policy domain.MergePolicy, mergeFn MergeFunc) (*merge.Report, error) {
	if len(parties) < 2 {
		return nil, fmt.Errorf("at least two active parties are needed to merge")
	}

	final, err := tea.NewProgram(New(ctx, parties, policy, mergeFn), tea.WithContext(ctx)).Run()
	if err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	report, mergeErr, cancelled := final.(*Model).Result()
	if cancelled {
		return nil, ErrCancelled
	}
	return report, mergeErr
}

// ErrCancelled is returned by Run when the user leaves without merging.
var ErrCancelled = fmt.Errorf("merge cancelled")
