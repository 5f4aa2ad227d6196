package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/foodflow/notifier/internal/notify"
)

const maxEntries = 200

// Entry is one received notification.
type Entry struct {
	Time    time.Time
	Channel notify.Channel
	Summary string
}

// Feed is a capped, scrollable list of notifications, newest last.
type Feed struct {
	Entries []Entry
	Offset  int // from the bottom
}

func (f *Feed) Add(e Entry) {
	f.Entries = append(f.Entries, e)
	if len(f.Entries) > maxEntries {
		f.Entries = f.Entries[len(f.Entries)-maxEntries:]
	}
	f.Offset = 0
}

func (f *Feed) Clear() {
	f.Entries = nil
	f.Offset = 0
}

func (f *Feed) ScrollUp(n int) {
	f.Offset = min(f.Offset+n, max(len(f.Entries)-1, 0))
}

func (f *Feed) ScrollDown(n int) {
	f.Offset = max(f.Offset-n, 0)
}

// View renders at most height lines ending Offset entries above the newest.
func (f Feed) View(width, height int) string {
	if len(f.Entries) == 0 {
		return StyleDimmed.Render("  Waiting for notifications...")
	}
	height = max(height, 1)
	end := len(f.Entries) - f.Offset
	start := max(end-height, 0)

	lines := make([]string, 0, end-start)
	for _, e := range f.Entries[start:end] {
		ts := StyleDimmed.Render(e.Time.Format("15:04:05"))
		name := lipgloss.NewStyle().Foreground(ChannelColor(string(e.Channel))).Width(24).Render(e.Channel.Name())
		line := fmt.Sprintf("  %s %s %s", ts, name, e.Summary)
		if width > 0 {
			line = lipgloss.NewStyle().MaxWidth(width).Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// summaryKeys are tried in order to find a human readable line in a
// payload.
var summaryKeys = []string{
	"content", "message", "title", "achievementName", "surplusPostTitle",
	"newStatus", "status", "reviewText",
}

// Summarize picks the most descriptive field of p, falling back to the
// compact JSON body.
func Summarize(p notify.Payload) string {
	for _, k := range summaryKeys {
		if v, ok := p.Fields[k].(string); ok && v != "" {
			return v
		}
	}
	data, err := json.Marshal(p.Fields)
	if err != nil {
		return string(p.Raw)
	}
	return string(data)
}

