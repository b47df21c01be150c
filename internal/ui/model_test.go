package ui

import (
	"strings"
	"testing"
	"time"

	"coursedesk/internal/models"
	"coursedesk/internal/registry"
	"coursedesk/internal/toast"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock    *clockwork.FakeClock
	registry *registry.Registry
	sink     *toast.Sink
	model    *Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	f := &fixture{
		clock:    clock,
		registry: registry.New(registry.Options{Clock: clock}),
		sink:     toast.NewSink(clock, time.Second),
	}
	t.Cleanup(f.registry.Close)
	t.Cleanup(f.sink.Stop)
	return f
}

func (f *fixture) start(t *testing.T, opts Options) {
	t.Helper()
	f.model = NewModel(f.registry, f.sink, opts)
	t.Cleanup(f.model.Dispose)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "delete":
		return tea.KeyMsg{Type: tea.KeyDelete}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelView(t *testing.T) {
	t.Run("Should render records in registration order", func(t *testing.T) {
		f := newFixture(t)
		f.registry.Register("a", "First job", models.Metadata{})
		f.registry.Register("b", "Second job", models.Metadata{})
		f.registry.UpdateProgress("a", 50, "")
		f.start(t, Options{})

		view := f.model.View()

		assert.Less(t, strings.Index(view, "First job"), strings.Index(view, "Second job"))
		assert.Contains(t, view, "Background jobs (2)")
	})

	t.Run("Should show an empty state", func(t *testing.T) {
		f := newFixture(t)
		f.start(t, Options{})

		assert.Contains(t, f.model.View(), "No background jobs.")
	})

	t.Run("Should show the current toast above the stack", func(t *testing.T) {
		f := newFixture(t)
		f.registry.Register("a", "First job", models.Metadata{})
		f.start(t, Options{})
		f.sink.Show("Upload complete: 3 of 3", toast.KindSuccess)

		view := f.model.View()

		require.Contains(t, view, "Upload complete: 3 of 3")
		assert.Less(t, strings.Index(view, "Upload complete"), strings.Index(view, "First job"))
	})
}

func TestModelKeys(t *testing.T) {
	t.Run("Should dismiss the selected record", func(t *testing.T) {
		f := newFixture(t)
		f.registry.Register("a", "First", models.Metadata{})
		f.registry.Register("b", "Second", models.Metadata{})
		f.start(t, Options{})

		f.model.Update(key("down"))
		f.model.Update(key("x"))

		records := f.registry.List()
		require.Len(t, records, 1)
		assert.Equal(t, "a", records[0].ID)

		f.model.Update(key("delete"))
		assert.Empty(t, f.registry.List())
	})

	t.Run("Should keep the cursor in range", func(t *testing.T) {
		f := newFixture(t)
		f.registry.Register("a", "First", models.Metadata{})
		f.start(t, Options{})

		f.model.Update(key("up"))
		f.model.Update(key("down"))
		f.model.Update(key("down"))
		assert.Equal(t, 0, f.model.cursor)
	})

	t.Run("Should close the toast", func(t *testing.T) {
		f := newFixture(t)
		f.start(t, Options{})
		f.sink.Show("hello", toast.KindInfo)

		f.model.Update(key("c"))

		_, ok := f.sink.Current()
		assert.False(t, ok)
	})

	t.Run("Should quit on q", func(t *testing.T) {
		f := newFixture(t)
		f.start(t, Options{})

		_, cmd := f.model.Update(key("q"))
		assert.True(t, isQuit(cmd))
	})
}

func TestModelSignals(t *testing.T) {
	t.Run("Should refresh when the registry changes", func(t *testing.T) {
		f := newFixture(t)
		f.start(t, Options{})

		f.registry.Register("a", "Late arrival", models.Metadata{})
		msg := f.model.Init()
		require.NotNil(t, msg)

		_, cmd := f.model.Update(jobsChangedMsg{})
		assert.NotNil(t, cmd)
		assert.Contains(t, f.model.View(), "Late arrival")
	})

	t.Run("Should react to grace-period removal without its own timer", func(t *testing.T) {
		f := newFixture(t)
		f.registry.Register("a", "Import", models.Metadata{})
		f.start(t, Options{})

		f.registry.Complete("a", true, "")
		f.clock.Advance(registry.DefaultGracePeriod)
		require.Eventually(t, func() bool { return f.registry.Len() == 0 }, time.Second, 5*time.Millisecond)

		f.model.Update(jobsChangedMsg{})
		assert.Contains(t, f.model.View(), "No background jobs.")
	})

	t.Run("Should quit when idle if asked to", func(t *testing.T) {
		f := newFixture(t)
		f.registry.Register("a", "Import", models.Metadata{})
		f.start(t, Options{ExitWhenIdle: true})

		f.registry.Remove("a")
		_, cmd := f.model.Update(jobsChangedMsg{})

		assert.True(t, isQuit(cmd))
	})

	t.Run("Should deliver a signal as a message", func(t *testing.T) {
		ch := make(chan struct{}, 1)
		ch <- struct{}{}
		assert.Equal(t, jobsChangedMsg{}, waitFor(ch, jobsChangedMsg{})())

		close(ch)
		assert.Nil(t, waitFor(ch, jobsChangedMsg{})())
		assert.Nil(t, waitFor(nil, jobsChangedMsg{}))
	})
}
