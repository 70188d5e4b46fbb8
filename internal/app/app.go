package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"scale-scanner.klederson.com/internal/bluetooth"
	"scale-scanner.klederson.com/internal/config"
	"scale-scanner.klederson.com/internal/events"
	"scale-scanner.klederson.com/internal/ui"
)

// shared holds state shared between the Bubble Tea model copies and the
// command that starts the work. Because Bubble Tea uses value receivers,
// pointer fields ensure all copies see the same underlying data.
type shared struct {
	store  *bluetooth.DeviceStore
	cancel context.CancelFunc
	err    error
}

// AppModel is the root Bubble Tea model for the live view.
type AppModel struct {
	width  int
	height int

	scanning bool
	source   string
	cursor   int
	filter   ui.FilterState

	lastStatus  string
	lastIsError bool

	shared *shared

	// Cached snapshot
	devices []*bluetooth.Device
}

// New creates a live view over store. source labels the menu bar.
func New(store *bluetooth.DeviceStore, source string) AppModel {
	return AppModel{
		scanning: true,
		source:   source,
		filter:   ui.FilterState{ScalesOnly: true},
		shared:   &shared{store: store},
	}
}

// Sink forwards events into the running program.
func Sink(p *tea.Program) events.Sink {
	return events.SinkFunc(func(e events.Event) error {
		p.Send(EventMsg(e))
		return nil
	})
}

// Run starts work in the background, feeding the live view, and blocks
// until the user quits or work returns. It reports work's error.
func Run(ctx context.Context, m AppModel, work func(ctx context.Context, sink events.Sink) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.shared.cancel = cancel

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := work(ctx, Sink(p))
		p.Send(DoneMsg{Err: err})
	}()

	_, err := p.Run()
	cancel()
	<-done
	if m.shared.err != nil {
		return m.shared.err
	}
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (m AppModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		evictCmd(),
	)
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case TickMsg:
		if m.scanning {
			m.devices = m.filter.Apply(m.shared.store.Snapshot())
			if m.cursor >= len(m.devices) {
				m.cursor = max(0, len(m.devices)-1)
			}
		}
		return m, tickCmd()

	case EvictMsg:
		m.shared.store.Evict(config.DeviceTimeout)
		return m, evictCmd()

	case EventMsg:
		switch msg.Type {
		case events.TypeStatus:
			m.lastStatus, m.lastIsError = msg.Status+": "+msg.Message, false
		case events.TypeError:
			m.lastStatus, m.lastIsError = msg.Error+": "+msg.Message, true
		}
		return m, nil

	case DoneMsg:
		m.shared.err = msg.Err
		if msg.Err != nil {
			m.lastStatus, m.lastIsError = msg.Err.Error(), true
		}
		m.scanning = false
		return m, nil
	}

	return m, nil
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filter.Active {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.filter.Active = false
		case tea.KeyBackspace:
			if n := len(m.filter.Search); n > 0 {
				m.filter.Search = m.filter.Search[:n-1]
			}
		case tea.KeyRunes:
			m.filter.Search += string(msg.Runes)
		}
		return m, nil
	}

	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.shared.cancel != nil {
			m.shared.cancel()
		}
		return m, tea.Quit

	case "s", "S":
		m.scanning = true

	case "p", "P":
		m.scanning = false

	case "f", "F":
		m.filter.ScalesOnly = !m.filter.ScalesOnly
		m.devices = m.filter.Apply(m.shared.store.Snapshot())
		m.cursor = 0

	case "/":
		m.filter.Active = true

	case "esc":
		m.filter.Search = ""

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.devices)-1 {
			m.cursor++
		}

	case "home":
		m.cursor = 0

	case "end":
		if len(m.devices) > 0 {
			m.cursor = len(m.devices) - 1
		}
	}

	return m, nil
}

// selected is the device under the cursor.
func (m AppModel) selected() *bluetooth.Device {
	if m.cursor < len(m.devices) {
		return m.devices[m.cursor]
	}
	return nil
}

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing " + config.AppName + "..."
	}

	bodyH := m.height - 2
	if bodyH < 5 {
		bodyH = 5
	}

	readingW := m.width * 3 / 5
	if readingW < 30 {
		readingW = 30
	}
	listW := m.width - readingW
	if listW < 20 {
		listW = 20
		readingW = m.width - listW
	}

	total := m.shared.store.Count()
	scales, measuring := m.shared.store.CountScales()

	return ui.ComposeLayout(
		ui.RenderMenuBar(m.width, m.source, m.scanning),
		ui.RenderDetailPanel(m.selected(), readingW, bodyH),
		ui.RenderDeviceList(m.devices, listW, bodyH, m.cursor, m.filter),
		ui.RenderStatusBar(m.width, m.scanning, total, scales, measuring, m.lastStatus, m.lastIsError),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func evictCmd() tea.Cmd {
	return tea.Tick(config.EvictInterval, func(t time.Time) tea.Msg {
		return EvictMsg(t)
	})
}
