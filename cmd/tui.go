// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// Monitor TUI model
type model struct {
	connInfo       string
	capacity       int
	showAll        bool
	stats          *flem.Statistics
	eventLog       []logEntry
	maxLogEntries  int
	synchronized   bool
	invalidBytes   int
	lastPacket     *flem.Packet
	lastPacketAt   time.Time
	connectionLost bool
	width          int
	height         int
	quitting       bool
}

// Messages
type tickMsg time.Time
type connectionLostMsg struct {
	err error
}

// formatDuration formats a duration in milliseconds to a human-friendly string
func formatDuration(ms uint64) string {
	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n uint64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, capacity int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		capacity:      capacity,
		showAll:       showAll,
		stats:         flem.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)

	case frameBatch:
		m.applyFrameBatch(msg)
	}

	return m, nil
}

func (m *model) applyFrameBatch(batch frameBatch) {
	applyBatch(m.stats, batch)

	if batch.synced {
		m.synchronized = true
		m.invalidBytes = batch.skipped
		if batch.skipped > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", batch.skipped), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}
	}

	for _, ev := range batch.events {
		if ev.status == flem.StatusPacketReceived {
			m.lastPacket = ev.packet
			m.lastPacketAt = ev.at
		}
		line, isError := describeEvent(ev)
		if isError || m.showAll {
			m.addLogEntry(line, isError)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	focusedBoxStyle = boxStyle.
			BorderForeground(lipgloss.Color("12"))
)

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	mode := "Errors only"
	if m.showAll {
		mode = "All packets"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("FLEMSTAT - LINK MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Capacity: %d | Mode: %s | 'r' reset, 'q' quit",
		m.connInfo, m.capacity, mode)))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.connectionLost:
		s.WriteString(errorStyle.Render("✗ Connection lost"))
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.renderStatistics()))
	s.WriteString("\n\n")

	if m.lastPacket != nil {
		s.WriteString(statsLabelStyle.Render("Last Packet:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(strings.TrimRight(flem.FormatPacket(m.lastPacket, m.lastPacketAt), "\n")))
		s.WriteString("\n\n")
	}

	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(m.renderEventLog(m.height - 22)))

	return s.String()
}

func (m model) renderStatistics() string {
	st := m.stats
	st.CalculateRates()

	var validPercent, errorPercent float64
	if st.TotalPackets > 0 {
		validPercent = float64(st.ValidPackets) * 100.0 / float64(st.TotalPackets)
		errorPercent = float64(st.Errors()) * 100.0 / float64(st.TotalPackets)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.ValidPackets, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", st.Errors(), errorPercent)),
	)

	if st.ChecksumErrors > 0 || st.Overflows > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s\n",
			statsLabelStyle.Render("Checksum Errors:"), errorStyle.Render(fmt.Sprintf("%d", st.ChecksumErrors)),
			statsLabelStyle.Render("Overflows:"), errorStyle.Render(fmt.Sprintf("%d", st.Overflows)),
		)
	}

	if st.ErrorResponses > 0 || st.UnknownRequests > 0 {
		fmt.Fprintf(&b, "%s %s   %s %s\n",
			statsLabelStyle.Render("Error Responses:"), warningStyle.Render(fmt.Sprintf("%d", st.ErrorResponses)),
			statsLabelStyle.Render("Unknown Requests:"), warningStyle.Render(fmt.Sprintf("%d", st.UnknownRequests)),
		)
	}

	errorRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	if st.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", st.ErrorRate))
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %s   %s %s",
		statsLabelStyle.Render("Bytes:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalBytes)),
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", st.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), errorRate,
		statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(uint64(time.Since(st.StartTime).Milliseconds()))),
	)

	return b.String()
}

// renderEventLog renders the newest entries that fit in height lines
func (m model) renderEventLog(height int) string {
	return renderLog(m.eventLog, height)
}

func renderLog(entries []logEntry, height int) string {
	if height < 5 {
		height = 5
	}
	if len(entries) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	start := len(entries) - height
	if start < 0 {
		start = 0
	}

	var b strings.Builder
	for _, entry := range entries[start:] {
		timestamp := headerStyle.Render(entry.timestamp.Format("01/02/06 15:04:05.000"))
		if entry.isError {
			fmt.Fprintf(&b, "%s %s\n", timestamp, errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&b, "%s %s\n", timestamp, warningStyle.Render("ℹ "+entry.message))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
