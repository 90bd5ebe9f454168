// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusPresetList = iota
	focusRequestInput
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// requestPreset is an entry in the request list
type requestPreset struct {
	name    string
	desc    string
	request uint8
	custom  bool
}

// Implement list.Item interface
func (r requestPreset) Title() string       { return r.name }
func (r requestPreset) Description() string { return r.desc }
func (r requestPreset) FilterValue() string { return r.name }

var requestPresets = []requestPreset{
	{name: "ID", desc: "Ask for the device identity", request: flem.RequestID},
	{name: "IDLE", desc: "Send an empty IDLE request", request: flem.RequestIdle},
	{name: "EVENT", desc: "Send an empty EVENT", request: flem.RequestEvent},
	{name: "Custom", desc: "Request and payload from hex", custom: true},
}

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending requests and reconnection)
	connMgr  *connectionManager
	connInfo string

	presetList   list.Model
	requestInput textinput.Model
	focusedField int

	stats         *flem.Statistics
	eventLog      []logEntry
	maxLogEntries int

	// Send times of requests still waiting for a response
	pending map[uint8]time.Time

	device         string
	lastResponse   *flem.Packet
	lastResponseAt time.Time

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlBatchMsg struct {
	at       time.Time
	packets  []*flem.Packet
	statuses []flem.Status
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	ti := textinput.New()
	ti.Placeholder = "7F 01 02 03"
	ti.CharLimit = 3 * (capacity + 1)
	ti.Width = 40

	items := make([]list.Item, len(requestPresets))
	for i, preset := range requestPresets {
		items[i] = preset
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	presetList := list.New(items, delegate, 30, 10)
	presetList.Title = "Requests"
	presetList.SetShowStatusBar(false)
	presetList.SetShowHelp(false)
	presetList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		presetList:    presetList,
		requestInput:  ti,
		focusedField:  focusPresetList,
		stats:         flem.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		pending:       make(map[uint8]time.Time),
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		return m, controlTickCmd()

	case controlBatchMsg:
		m.processBatch(msg)

	case connectionLostMsg:
		m.connectionLost = true
		m.synchronized = false
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.pending = make(map[uint8]time.Time)
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusRequestInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "tab", "shift+tab":
		m.toggleFocus()
		return m, nil

	case "enter":
		m.sendSelected()
		return m, nil
	}

	// Pass through to focused component
	var cmd tea.Cmd
	if m.focusedField == focusRequestInput {
		m.requestInput, cmd = m.requestInput.Update(msg)
	} else {
		m.presetList, cmd = m.presetList.Update(msg)
	}
	return m, cmd
}

func (m *controlModel) toggleFocus() {
	if m.focusedField == focusPresetList {
		m.focusedField = focusRequestInput
		m.requestInput.Focus()
		return
	}
	m.focusedField = focusPresetList
	m.requestInput.Blur()
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	buttonStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color("12")).
		Padding(0, 2)

	var s strings.Builder

	// Header
	s.WriteString(titleStyle.Render("FLEMSTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | Tab=switch Enter=send Esc=quit", connStatus)))
	s.WriteString("\n")
	if m.device != "" {
		s.WriteString(fmt.Sprintf(" %s %s", statsLabelStyle.Render("Device:"), statsValueStyle.Render(m.device)))
	}
	s.WriteString("\n\n")

	// Layout: left panel (presets) | right panel (request and response)
	leftWidth := 30
	rightWidth := m.width - leftWidth - 6
	if rightWidth < 20 {
		rightWidth = 20
	}

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusPresetList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	presetPanel := listStyle.Render(m.presetList.View())

	var right strings.Builder
	right.WriteString(statsLabelStyle.Render("Custom: "))
	if m.focusedField == focusRequestInput {
		right.WriteString(m.requestInput.View())
	} else {
		val := m.requestInput.Value()
		if val == "" {
			val = m.requestInput.Placeholder
		}
		right.WriteString(fmt.Sprintf("[%s]", val))
	}
	right.WriteString("\n\n")
	right.WriteString(buttonStyle.Render("[ Enter: Send ]"))
	right.WriteString("\n\n")
	right.WriteString(statsLabelStyle.Render("Last Response:"))
	right.WriteString("\n")
	if m.lastResponse == nil {
		right.WriteString(headerStyle.Render("(none yet)"))
	} else {
		right.WriteString(strings.TrimRight(flem.FormatPacket(m.lastResponse, m.lastResponseAt), "\n"))
	}
	requestPanel := boxStyle.Width(rightWidth).Render(right.String())

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, presetPanel, " ", requestPanel))
	s.WriteString("\n\n")

	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderLog(m.eventLog, 8)))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderStatisticsBar() string {
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	if m.stats.TotalPackets > 0 {
		validPercent = float64(m.stats.ValidPackets) * 100.0 / float64(m.stats.TotalPackets)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalPackets)
	}

	errorText := statsValueStyle.Render("0.0%")
	if errorPercent > 0 {
		errorText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.TotalPackets)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		statsLabelStyle.Render("Errors:"), errorText,
		statsLabelStyle.Render("Rejected:"), statsValueStyle.Render(fmt.Sprintf("%d", m.stats.ErrorResponses+m.stats.UnknownRequests)),
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkt/s", m.stats.PacketRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processBatch(msg controlBatchMsg) {
	for _, status := range msg.statuses {
		if !m.synchronized {
			switch status {
			case flem.StatusPacketReceived:
				m.synchronized = true
				m.addLogEntry("Synchronized", false)
			case flem.StatusChecksumError, flem.StatusPacketOverflow:
				// Partial packet from before we started listening
				status = flem.StatusHeaderNotFound
			}
		}
		m.stats.Update(status)

		switch status {
		case flem.StatusChecksumError:
			m.addLogEntry("CHECKSUM ERROR: packet dropped", true)
		case flem.StatusPacketOverflow:
			m.addLogEntry("PACKET OVERFLOW: packet dropped", true)
		}
	}

	for _, p := range msg.packets {
		m.processPacket(p, msg.at)
	}
}

func (m *controlModel) processPacket(p *flem.Packet, at time.Time) {
	m.stats.RecordResponse(p)
	m.lastResponse = p
	m.lastResponseAt = at

	line, isError := describeEvent(frameEvent{at: at, status: flem.StatusPacketReceived, packet: p})
	if sent, ok := m.pending[p.Request()]; ok {
		delete(m.pending, p.Request())
		line = fmt.Sprintf("%s (rtt %v)", line, at.Sub(sent).Round(time.Millisecond))
	}
	m.addLogEntry(line, isError)

	if p.Request() == flem.RequestID && p.Response() == flem.ResponseSuccess {
		if id, err := p.DataId(); err == nil {
			m.device = id.String()
		}
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) sendSelected() {
	if m.connectionLost {
		m.addLogEntry("Cannot send request: connection lost", true)
		return
	}

	preset, ok := m.presetList.SelectedItem().(requestPreset)
	if m.focusedField == focusRequestInput {
		preset, ok = requestPreset{name: "Custom", custom: true}, true
	}
	if !ok {
		return
	}

	packet, err := buildRequest(preset, m.requestInput.Value())
	if err != nil {
		m.addLogEntry(fmt.Sprintf("Invalid request: %v", err), true)
		return
	}

	if err := m.connMgr.send(packet); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to send request: %v", err), true)
		return
	}

	m.pending[packet.Request()] = time.Now()
	m.addLogEntry(fmt.Sprintf("Sent %s (0x%02X) len=%d",
		flem.FormatRequest(packet.Request()), packet.Request(), packet.DataLength()), false)
}

// buildRequest creates the packed packet for a preset. Custom presets take
// their request code and payload from input.
func buildRequest(preset requestPreset, input string) (*flem.Packet, error) {
	if !preset.custom {
		return flem.NewRequest(capacity, preset.request, nil)
	}
	request, payload, err := parseRequestHex(input)
	if err != nil {
		return nil, err
	}
	return flem.NewRequest(capacity, request, payload)
}

// parseRequestHex parses hex bytes separated by optional whitespace. The
// first byte is the request code, the rest is the payload.
func parseRequestHex(input string) (uint8, []byte, error) {
	data, err := parseHex(input)
	if err != nil {
		return 0, nil, err
	}
	if len(data) == 0 {
		return 0, nil, errors.New("missing request code")
	}
	return data[0], data[1:], nil
}

// parseHex decodes whitespace separated hex, with or without 0x prefixes
func parseHex(input string) ([]byte, error) {
	fields := strings.Fields(input)
	for i, f := range fields {
		f = strings.TrimPrefix(f, "0x")
		f = strings.TrimPrefix(f, "0X")
		fields[i] = f
	}

	data, err := hex.DecodeString(strings.Join(fields, ""))
	if err != nil {
		return nil, fmt.Errorf("bad hex: %w", err)
	}
	return data, nil
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 8 {
		listHeight = 8
	}
	m.presetList.SetSize(28, listHeight)
}
