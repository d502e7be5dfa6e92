package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"thoughtcap/app"
	"thoughtcap/catalog"
	"thoughtcap/clipboard"
	"thoughtcap/events"
	"thoughtcap/hotkey"
	"thoughtcap/model"
	"thoughtcap/recording"
)

type refreshMsg struct{}
type frameMsg time.Time

// actionMsg reports the outcome of a key action that the controller does
// not announce itself.
type actionMsg struct {
	text string
	err  error
}

// tuiBridge collects controller callbacks from any goroutine and wakes the
// UI loop. Signals coalesce: a burst of changes costs one redraw.
type tuiBridge struct {
	refresh chan struct{}

	mu       sync.Mutex
	elapsed  time.Duration
	level    int
	peak     int
	waveform []float64
	notice   app.Notice
	noticeN  int
}

type bridgeSnapshot struct {
	elapsed  time.Duration
	level    int
	peak     int
	waveform []float64
	notice   app.Notice
	noticeN  int
}

func newTUIBridge() *tuiBridge {
	return &tuiBridge{refresh: make(chan struct{}, 1)}
}

func (b *tuiBridge) signal() {
	select {
	case b.refresh <- struct{}{}:
	default:
	}
}

func (b *tuiBridge) tick(elapsed time.Duration) {
	b.mu.Lock()
	b.elapsed = elapsed
	b.mu.Unlock()
	b.signal()
}

func (b *tuiBridge) notify(n app.Notice) {
	b.mu.Lock()
	b.notice = n
	b.noticeN++
	b.mu.Unlock()
	b.signal()
}

func (b *tuiBridge) Publish(ev events.Event) {
	switch ev.Type {
	case events.RecordingStarted:
		b.mu.Lock()
		b.elapsed, b.level, b.peak, b.waveform = 0, 0, 0, nil
		b.mu.Unlock()
	case events.AudioLevel:
		d, ok := ev.Data.(events.AudioLevelData)
		if !ok {
			return
		}
		b.mu.Lock()
		b.level = d.Level
		b.peak = max(b.peak, d.Level)
		b.waveform = d.Waveform
		b.mu.Unlock()
	default:
		return
	}
	b.signal()
}

func (b *tuiBridge) snapshot() bridgeSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bridgeSnapshot{
		elapsed:  b.elapsed,
		level:    b.level,
		peak:     b.peak,
		waveform: b.waveform,
		notice:   b.notice,
		noticeN:  b.noticeN,
	}
}

// forward turns signals into refresh messages until ctx is done.
func (b *tuiBridge) forward(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.refresh:
			send(refreshMsg{})
		}
	}
}

type tuiModel struct {
	ctx    context.Context
	ctrl   *app.Controller
	bridge *tuiBridge
	clip   clipboard.Writer

	vm         catalog.ViewModel
	state      recording.State
	snap       bridgeSnapshot
	selected   string
	confirming string
	timestamps bool
	frame      int

	notice    string
	noticeErr bool
	seenN     int

	width, height int
}

func newTUIModel(ctx context.Context, ctrl *app.Controller, bridge *tuiBridge, clip clipboard.Writer) tuiModel {
	m := tuiModel{ctx: ctx, ctrl: ctrl, bridge: bridge, clip: clip}
	m.sync()
	return m
}

// sync pulls the latest controller state into the model.
func (m *tuiModel) sync() {
	m.vm = m.ctrl.View()
	m.state = m.ctrl.Session().State()
	m.snap = m.bridge.snapshot()
	m.selected = ""
	if m.vm.SelectedIndex >= 0 {
		m.selected = m.vm.Rows[m.vm.SelectedIndex].Filename
	}
	if m.snap.noticeN != m.seenN {
		m.seenN = m.snap.noticeN
		m.setNotice(m.snap.notice.Text, m.snap.notice.Err)
	}
}

func (m *tuiModel) setNotice(text string, err error) {
	m.noticeErr = err != nil
	switch {
	case err != nil && text != "":
		m.notice = text + " " + err.Error()
	case err != nil:
		m.notice = err.Error()
	default:
		m.notice = text
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(m.reload(), frameTick())
}

func (m tuiModel) reload() tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Reload(m.ctx)
		return nil
	}
}

func (m tuiModel) selectCmd(filename string) tea.Cmd {
	return func() tea.Msg {
		m.ctrl.Select(m.ctx, filename)
		return nil
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		m.frame++
		return m, frameTick()

	case refreshMsg:
		m.sync()

	case actionMsg:
		m.setNotice(msg.text, msg.err)

	case tea.KeyMsg:
		if m.confirming != "" {
			return m.confirmKey(msg)
		}
		return m.key(msg)
	}
	return m, nil
}

func (m tuiModel) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctrl, ctx := m.ctrl, m.ctx
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		m.notice = ""
		return m, func() tea.Msg {
			// Failures arrive as controller notices.
			ctrl.Toggle(ctx)
			return nil
		}

	case " ":
		switch m.state {
		case recording.Recording:
			return m, func() tea.Msg { ctrl.Pause(); return nil }
		case recording.Paused:
			return m, func() tea.Msg { ctrl.Resume(); return nil }
		}

	case "j", "down":
		return m.move(1)
	case "k", "up":
		return m.move(-1)

	case "enter":
		if m.selected != "" {
			return m, m.selectCmd(m.selected)
		}

	case "R":
		return m, m.reload()

	case "t":
		m.timestamps = !m.timestamps

	case "c":
		return m, m.copy()

	case "d":
		if m.selected != "" {
			m.confirming = m.selected
		}
	}
	return m, nil
}

// move selects the row delta steps from the current one, clamped to the
// list.
func (m tuiModel) move(delta int) (tea.Model, tea.Cmd) {
	rows := m.vm.Rows
	if len(rows) == 0 {
		return m, nil
	}
	i := -1
	for j, r := range rows {
		if r.Filename == m.selected {
			i = j
			break
		}
	}
	switch {
	case i < 0 && delta > 0:
		i = 0
	case i < 0:
		i = len(rows) - 1
	default:
		i = max(0, min(i+delta, len(rows)-1))
	}
	if rows[i].Filename == m.selected {
		return m, nil
	}
	m.selected = rows[i].Filename
	return m, m.selectCmd(m.selected)
}

func (m tuiModel) confirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	filename := m.confirming
	m.confirming = ""
	switch msg.String() {
	case "y", "Y":
		ctrl, ctx := m.ctrl, m.ctx
		return m, func() tea.Msg {
			err := ctrl.Delete(ctx, filename, func(model.Recording) bool { return true })
			if err != nil {
				// The controller already raised a notice.
				return nil
			}
			return actionMsg{text: "Deleted " + filename}
		}
	case "ctrl+c":
		return m, tea.Quit
	}
	m.setNotice("Delete cancelled.", nil)
	return m, nil
}

func (m tuiModel) copy() tea.Cmd {
	detail := m.ctrl.Detail()
	if detail.Kind != catalog.DetailReady || detail.Filename != m.selected {
		return func() tea.Msg { return actionMsg{err: clipboard.ErrEmpty} }
	}
	clip, timestamps := m.clip, m.timestamps
	return func() tea.Msg {
		if clip == nil {
			return actionMsg{err: errors.New("clipboard unavailable")}
		}
		if err := clipboard.CopyTranscript(clip, detail.Transcription, timestamps); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{text: "Copied to clipboard."}
	}
}

var (
	recStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Bold(true)
	rowSelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Background(lipgloss.Color("238")).Bold(true)
)

const listWidth = 34

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footer)-1, 3)

	list := lipgloss.NewStyle().
		Width(listWidth).
		Height(bodyHeight).
		Render(m.renderList(bodyHeight))

	detailWidth := max(m.width-listWidth-3, 20)
	detail := lipgloss.NewStyle().
		Width(detailWidth).
		Height(bodyHeight).
		PaddingLeft(2).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(lipgloss.Color("239")).
		Render(m.renderDetail(detailWidth - 2))

	body := lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	return lipgloss.JoinVertical(lipgloss.Left, header, "", body, footer)
}

func (m tuiModel) renderHeader() string {
	var status string
	clock := recording.FormatClock(m.snap.elapsed)
	switch m.state {
	case recording.Recording:
		dot := "●"
		if m.frame%2 == 1 {
			dot = " "
		}
		status = recStyle.Render(fmt.Sprintf("%s REC %s", dot, clock)) + "  " + levelBar(m.snap.level) + " " + infoStyle.Render(sparkline(m.snap.waveform, 24))
		if m.snap.elapsed > time.Second && m.snap.peak == 0 {
			status += warnStyle.Render("  ⚠ no voice detected")
		}
	case recording.Paused:
		status = pausedStyle.Render("❚❚ PAUSED " + clock)
	case recording.Stopping:
		status = infoStyle.Render("↑ UPLOADING")
	default:
		status = mutedStyle.Render("○ STANDBY")
	}

	if polls := len(m.ctrl.Coordinator().ActivePolls()); polls > 0 {
		status += infoStyle.Render(fmt.Sprintf("  · %d transcribing", polls))
	}

	summary := mutedStyle.Render(m.vm.Summary)
	gap := m.width - lipgloss.Width(status) - lipgloss.Width(summary)
	if gap < 2 {
		return status + "\n" + summary
	}
	return status + strings.Repeat(" ", gap) + summary
}

// levelBar draws the 0-100 meter as ten cells.
func levelBar(level int) string {
	n := max(0, min(level, 100)) / 10
	return okStyle.Render(strings.Repeat("▮", n)) + helpStyle.Render(strings.Repeat("▯", 10-n))
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline draws the absolute waveform in n cells.
func sparkline(wave []float64, n int) string {
	if len(wave) == 0 {
		return strings.Repeat(string(sparkRunes[0]), n)
	}
	var b strings.Builder
	for i := range n {
		var peak float64
		lo, hi := i*len(wave)/n, (i+1)*len(wave)/n
		for _, v := range wave[lo:max(hi, lo+1)] {
			if v < 0 {
				v = -v
			}
			peak = max(peak, v)
		}
		idx := min(int(peak*float64(len(sparkRunes))*2), len(sparkRunes)-1)
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

func (m tuiModel) renderList(height int) string {
	if m.vm.Placeholder != "" {
		return mutedStyle.Render(wrap(m.vm.Placeholder, listWidth))
	}

	sel := 0
	for i, r := range m.vm.Rows {
		if r.Filename == m.selected {
			sel = i
		}
	}
	start := 0
	if sel >= height {
		start = sel - height + 1
	}
	end := min(start+height, len(m.vm.Rows))

	lines := make([]string, 0, end-start)
	for _, r := range m.vm.Rows[start:end] {
		mark := " "
		if r.Transcribed {
			mark = "✓"
		}
		line := fmt.Sprintf(" %-16s %6s %s ", r.Time, r.Duration, mark)
		if r.Filename == m.selected {
			lines = append(lines, rowSelStyle.Render(line))
		} else {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (m tuiModel) renderDetail(width int) string {
	dv := m.vm.Detail
	if dv.Kind == catalog.DetailEmpty {
		return mutedStyle.Render(wrap(dv.Body, width))
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(dv.Title) + "\n")
	b.WriteString(mutedStyle.Render(dv.Meta) + "\n\n")

	switch dv.Kind {
	case catalog.DetailReady:
		text := clipboard.Format(&model.Transcription{Text: dv.Body, Segments: dv.Segments}, m.timestamps)
		b.WriteString(textStyle.Render(wrap(text, width)))
	case catalog.DetailPending:
		b.WriteString(warnStyle.Render(wrap(dv.Body, width)))
	case catalog.DetailError:
		b.WriteString(recStyle.UnsetBold().Render(wrap(dv.Body, width)))
	default:
		b.WriteString(infoStyle.Render(wrap(dv.Body, width)))
	}
	return b.String()
}

func (m tuiModel) renderFooter() string {
	switch {
	case m.confirming != "":
		rec, _ := m.ctrl.Catalog().Get(m.confirming)
		return pausedStyle.Render(fmt.Sprintf("Delete %s (%s)? y/N", rec.DisplayTime(), m.confirming))
	case m.notice != "" && m.noticeErr:
		return recStyle.UnsetBold().Render(m.notice)
	case m.notice != "":
		return okStyle.Render(m.notice)
	}
	keys := []string{"r", "record", "space", "pause", "↑↓", "select", "c", "copy", "t", "timestamps", "d", "delete", "R", "reload", "q", "quit"}
	parts := make([]string, 0, len(keys)/2+1)
	for i := 0; i < len(keys); i += 2 {
		parts = append(parts, helpKeyStyle.Render(keys[i])+helpStyle.Render(" "+keys[i+1]))
	}
	parts = append(parts, helpKeyStyle.Render(hotkey.Label)+helpStyle.Render(" anywhere"))
	return strings.Join(parts, helpStyle.Render(" · "))
}

// wrap breaks text at spaces so no line is wider than width. Existing line
// breaks are kept.
func wrap(text string, width int) string {
	width = max(width, 1)
	var out []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case lipgloss.Width(line)+1+lipgloss.Width(word) > width:
				out = append(out, line)
				line = word
			default:
				line += " " + word
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func newTUICmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the recorder and transcript browser (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, e)
		},
	}
	addSessionFlags(cmd)
	return cmd
}

func runTUI(cmd *cobra.Command, e *env) error {
	setup, _ := cmd.Flags().GetBool("setup")
	useHotkey, _ := cmd.Flags().GetBool("hotkey")

	ctx, cancel := commandContext(cmd)
	defer cancel()

	bridge := newTUIBridge()

	actx, dev, err := e.openAudio(setup)
	if err != nil {
		e.log.Warn().Err(err).Msg("recording disabled")
		bridge.notify(app.Notice{Text: "Recording disabled.", Err: err})
	} else {
		defer actx.Close()
	}

	var hub *events.Hub
	if e.cfg.Events.Enabled {
		hub = events.NewHub(e.log)
	}
	ctrl, err := e.newController(actx, dev, controllerHooks{
		hub:      hub,
		sink:     bridge,
		onTick:   bridge.tick,
		onNotice: bridge.notify,
		onChange: bridge.signal,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()
	defer e.sessionLog(cmd, ctrl)()

	if hub != nil {
		if _, _, err := startHub(ctx, e.cfg.Events.Addr, hub, e.log); err != nil {
			e.log.Warn().Err(err).Msg("event channel disabled")
			bridge.notify(app.Notice{Text: "Event channel disabled.", Err: err})
		} else {
			go ctrl.Run(ctx, hub.Commands())
		}
	}
	if useHotkey {
		if commands := e.startHotkey(ctx); commands != nil {
			go ctrl.Run(ctx, commands)
		}
	}

	p := tea.NewProgram(newTUIModel(ctx, ctrl, bridge, e.clipboard),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	go bridge.forward(ctx, p.Send)

	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	return err
}
