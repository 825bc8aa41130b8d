package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/janhae4/DATN-sub006/internal/session"
)

const maxNotices = 5

// RoomUI is the live in-call view: the peer roster, signaling notices and the
// mute/camera/leave key bindings.
type RoomUI struct {
	program *tea.Program
	model   *roomModel
}

type roomModel struct {
	sess     *session.Session
	spinner  spinner.Model
	started  time.Time
	peers    []session.Peer
	notices  []string
	peakSize int
	quitting bool
}

type sessionEventMsg session.Event

type eventsClosedMsg struct{}

type tickMsg time.Time

// NewRoomUI builds the in-call view for a joined session.
func NewRoomUI(sess *session.Session) *RoomUI {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &RoomUI{
		model: &roomModel{
			sess:    sess,
			spinner: s,
			started: time.Now(),
			peers:   sess.Peers(),
		},
	}
}

// Run blocks until the user leaves or the session ends, then reports how
// long the call lasted and the largest roster seen.
func (ui *RoomUI) Run() (time.Duration, int, error) {
	// Inline mode keeps the pre-join output visible above the view.
	ui.program = tea.NewProgram(ui.model)
	if _, err := ui.program.Run(); err != nil {
		return 0, 0, fmt.Errorf("ui error: %w", err)
	}
	return time.Since(ui.model.started), ui.model.peakSize, nil
}

func (m *roomModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.listenForEvents(),
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func (m *roomModel) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.sess.Events()
		if !ok {
			return eventsClosedMsg{}
		}
		return sessionEventMsg(event)
	}
}

func (m *roomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "m":
			m.sess.SetMuted(!m.sess.Muted())
		case "v":
			m.sess.SetCameraOff(!m.sess.CameraOff())
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		if !m.quitting {
			cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg {
				return tickMsg(t)
			}))
		}

	case sessionEventMsg:
		m.apply(session.Event(msg))
		cmds = append(cmds, m.listenForEvents())

	case eventsClosedMsg:
		// Session is gone, nothing further will arrive.
		m.quitting = true
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

func (m *roomModel) apply(event session.Event) {
	m.peers = m.sess.Peers()
	if size := len(m.peers) + 1; size > m.peakSize {
		m.peakSize = size
	}

	switch event.Kind {
	case session.EventPeerJoined:
		m.notice(fmt.Sprintf("%s %s joined", IconPeer, displayName(event.MemberID, event.Info.DisplayName)))
	case session.EventPeerLeft:
		m.notice(fmt.Sprintf("%s %s left", IconLeave, event.MemberID))
	case session.EventPeerUnreachable:
		m.notice(WarningStyle.Render(fmt.Sprintf("%s %s unreachable", IconWarning, event.MemberID)))
	case session.EventServerError:
		m.notice(ErrorStyle.Render(fmt.Sprintf("%s %v", IconError, event.Err)))
	case session.EventDisconnected:
		m.notice(ErrorStyle.Render(IconError + " signaling connection lost"))
	}
}

func (m *roomModel) notice(line string) {
	m.notices = append(m.notices, line)
	if len(m.notices) > maxNotices {
		m.notices = m.notices[len(m.notices)-maxNotices:]
	}
}

func (m *roomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	elapsed := time.Since(m.started).Round(time.Second)
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.sess.RoomID())))
	b.WriteString(MutedStyle.Render(fmt.Sprintf("  %s  %s", m.sess.Mode(), elapsed)))
	b.WriteString("\n\n")

	// Self row
	b.WriteString(fmt.Sprintf("  %s you %s %s\n",
		IconPeer, micIcon(!m.sess.Muted()), cameraIcon(!m.sess.CameraOff())))

	// Remote rows
	if len(m.peers) == 0 {
		b.WriteString(fmt.Sprintf("\n  %s %s\n", m.spinner.View(),
			MutedStyle.Render("Waiting for others to join...")))
	}
	for _, p := range m.peers {
		link := p.LinkState
		if link == "" {
			link = "connecting"
		}
		icon := IconWaiting
		if link == "connected" {
			icon = IconConnected
		}
		b.WriteString(fmt.Sprintf("  %s %s %s %s %s\n",
			IconPeer,
			BoldStyle.Render(displayName(p.ID, p.Info.DisplayName)),
			micIcon(!p.Muted), cameraIcon(!p.CameraOff),
			MutedStyle.Render(fmt.Sprintf("%s %s", icon, link))))
	}

	if len(m.notices) > 0 {
		b.WriteString("\n")
		for _, n := range m.notices {
			b.WriteString("  " + n + "\n")
		}
	}

	b.WriteString("\n" + FooterStyle.Render("m mute · v camera · q leave"))

	return b.String()
}

func micIcon(on bool) string {
	if on {
		return IconMicOn
	}
	return IconMicOff
}

func cameraIcon(on bool) string {
	if on {
		return IconCameraOn
	}
	return IconCameraOff
}

func displayName(id, name string) string {
	if name != "" {
		return name
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
