package commands

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/colonyops/lxfeed/internal/core/eventbus"
	"github.com/colonyops/lxfeed/internal/core/item"
	"github.com/colonyops/lxfeed/internal/core/styles"
	"github.com/colonyops/lxfeed/pkg/iojson"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Printer writes styled status lines. Styles are only applied when the
// destination is a terminal.
type Printer struct {
	w     io.Writer
	color bool
}

func newPrinter(w io.Writer) *Printer {
	return &Printer{w: w, color: isTerminal(w)}
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) Successf(format string, args ...any) {
	p.Printf("%s %s", p.render(styles.SuccessStyle, "✔"), fmt.Sprintf(format, args...))
}

func (p *Printer) Infof(format string, args ...any) {
	p.Printf("%s %s", p.render(styles.WarningStyle, styles.IconInfo), fmt.Sprintf(format, args...))
}

func (p *Printer) Errorf(format string, args ...any) {
	p.Printf("%s %s", p.render(styles.ErrorStyle, "✘"), fmt.Sprintf(format, args...))
}

// eventLine is the JSON line written for each event in --json mode.
type eventLine struct {
	Event   eventbus.Event `json:"event"`
	Subject string         `json:"subject,omitempty"`
	Error   string         `json:"error,omitempty"`
	Payload any            `json:"payload"`
}

func writeEventJSON(w io.Writer, event eventbus.Event, payload any) error {
	line := eventLine{Event: event, Subject: eventbus.Subject(payload), Payload: payload}
	if p, ok := payload.(eventbus.PackageWatchFailedPayload); ok && p.Err != nil {
		line.Error = p.Err.Error()
	}
	return iojson.WriteLine(w, line)
}

// Event prints a human readable line for an event.
func (p *Printer) Event(event eventbus.Event, payload any) {
	switch e := payload.(type) {
	case eventbus.PackageWatchedPayload:
		p.Printf("%s %s", p.render(styles.WatchStyle, styles.IconWatch+" watch"), e.Package)
	case eventbus.PackageUnwatchedPayload:
		p.Printf("%s %s", p.render(styles.UnwatchStyle, styles.IconUnwatch+" unwatch"), e.Package)
	case eventbus.PackageWatchFailedPayload:
		p.Printf("%s %s: %v", p.render(styles.FailedStyle, styles.IconFailed+" watch failed"), e.Package, e.Err)
	case eventbus.ItemWatchedPayload:
		label := styles.IconWatch + " item"
		style := styles.WatchStyle
		if e.Item != nil && e.Item.Kind == item.KindMarker {
			label = styles.IconWatch + " marker"
			style = styles.MarkerStyle
		}
		p.Printf("%s %s %s %s", p.render(style, label), e.ID, p.render(styles.MutedStyle, e.Package.String()), formatFields(e.Data))
	case eventbus.ItemUnwatchedPayload:
		p.Printf("%s %s %s", p.render(styles.UnwatchStyle, styles.IconUnwatch+" item"), e.ID, p.render(styles.MutedStyle, e.Package.String()))
	case eventbus.ItemChangedPayload:
		p.Printf("%s %s %s", p.render(styles.ChangeStyle, styles.IconChange+" change"), e.ID, formatFields(e.Data))
	case eventbus.TopicChangedPayload:
		state := "off"
		if e.Subscribed {
			state = "on"
		}
		p.Printf("%s %s %s", p.render(styles.KeyStyle, styles.IconInfo+" topic"), e.Topic, state)
	case eventbus.FeedResetPayload:
		p.Printf("%s %s", p.render(styles.HeaderStyle, styles.IconInfo+" reset"), e.Context)
	default:
		p.Printf("%s %s", event, eventbus.Subject(payload))
	}
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, data[k])
	}
	return strings.Join(parts, " ")
}
