package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/partymerge/internal/domain"
	"github.com/lherron/partymerge/internal/merge"
)

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keySpace = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyYes   = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}
)

func testParties() []domain.Party {
	return []domain.Party{
		{ID: 1, Name: "Acme", DisplayName: "Acme", Active: true},
		{ID: 2, Name: "ACME", DisplayName: "ACME", Active: true},
		{ID: 3, Name: "Acme Inc", DisplayName: "Acme Inc", Active: true},
	}
}

type recorder struct {
	calls []domain.MergeRequest
	err   error
}

func (r *recorder) merge(_ context.Context, req domain.MergeRequest) (*merge.Report, error) {
	r.calls = append(r.calls, req)
	if r.err != nil {
		return &merge.Report{Target: req.Target, Policy: req.Policy}, r.err
	}
	report := &merge.Report{Target: req.Target, Policy: req.Policy}
	for _, d := range req.Duplicates {
		report.Duplicates = append(report.Duplicates, merge.DuplicateReport{Duplicate: d})
	}
	return report, nil
}

// press sends keys in order and returns the command produced by the last.
func press(m *Model, keys ...tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = m.Update(k)
	}
	return cmd
}

func TestWizard_MergesSelectedDuplicates(t *testing.T) {
	rec := &recorder{}
	m := New(context.Background(), testParties(), domain.MergePolicyHard, rec.merge)

	press(m, keyDown, keySpace, keyDown, keySpace)
	assert.Equal(t, []int64{2, 3}, m.Duplicates())

	press(m, keyEnter)
	assert.Equal(t, stepTarget, m.step)
	assert.Len(t, m.list.Items(), 1)

	press(m, keyEnter)
	require.Equal(t, stepConfirm, m.step)
	assert.Contains(t, m.View(), "Merge now?")
	assert.Empty(t, rec.calls, "nothing merges before confirmation")

	cmd := press(m, keyYes)
	require.NotNil(t, cmd)
	assert.Equal(t, stepMerging, m.step)

	_, quit := m.Update(cmd())
	require.NotNil(t, quit)
	assert.Equal(t, stepDone, m.step)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, domain.MergeRequest{Duplicates: []int64{2, 3}, Target: 1, Policy: domain.MergePolicyHard}, rec.calls[0])

	report, err, cancelled := m.Result()
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Len(t, report.Duplicates, 2)
	assert.Contains(t, m.View(), "Merged 2 parties into PTY-00001")
}

func TestWizard_RequiresSelection(t *testing.T) {
	m := New(context.Background(), testParties(), domain.MergePolicySoft, (&recorder{}).merge)

	press(m, keyEnter)
	assert.Equal(t, stepDuplicates, m.step)
	assert.Contains(t, m.View(), "select at least one duplicate")

	// Toggling twice clears the selection again.
	press(m, keySpace, keySpace)
	assert.Empty(t, m.Duplicates())

	press(m, keySpace, keyDown, keySpace, keyDown, keySpace, keyEnter)
	assert.Equal(t, stepDuplicates, m.step)
	assert.Contains(t, m.View(), "leave at least one party to keep")
}

func TestWizard_EscCancelsWithoutMerging(t *testing.T) {
	for _, steps := range [][]tea.KeyMsg{
		{keyEsc},
		{keySpace, keyEnter, keyEsc},
		{keySpace, keyEnter, keyEnter, keyEsc},
	} {
		rec := &recorder{}
		m := New(context.Background(), testParties(), domain.MergePolicySoft, rec.merge)
		cmd := press(m, steps...)
		require.NotNil(t, cmd)

		_, _, cancelled := m.Result()
		assert.True(t, cancelled)
		assert.Empty(t, rec.calls)
	}
}

func TestWizard_MergeFailure(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	m := New(context.Background(), testParties(), domain.MergePolicySoft, rec.merge)

	cmd := press(m, keySpace, keyEnter, keyEnter, keyEnter)
	require.NotNil(t, cmd)
	m.Update(cmd())

	_, err, cancelled := m.Result()
	assert.EqualError(t, err, "boom")
	assert.False(t, cancelled)
	assert.Contains(t, m.View(), "merge failed: boom")
	assert.Equal(t, []int64{1}, rec.calls[0].Duplicates)
	assert.Equal(t, int64(2), rec.calls[0].Target)
}

func TestRun_NeedsTwoParties(t *testing.T) {
	_, err := Run(context.Background(), testParties()[:1], domain.MergePolicySoft, (&recorder{}).merge)
	assert.ErrorContains(t, err, "at least two")
}
