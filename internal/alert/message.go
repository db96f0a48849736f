package alert

import (
	"fmt"
	"strings"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// DefaultMention is prefixed to down alerts.
const DefaultMention = "@everyone"

// Message is the human-readable rendering of an event shared by the chat
// destinations.
type Message struct {
	Title   string
	Content string
	Fields  []Field
}

// Field is one labelled line of a Message.
type Field struct {
	Name  string
	Value string
}

// Format renders ev. mention is only used for down events.
func Format(ev monitor.Event, mention string) Message {
	switch ev.Kind {
	case monitor.EventDown:
		msg := Message{
			Title: fmt.Sprintf("🚨 Website Down: **%s** is unreachable!", ev.Monitor),
			Fields: []Field{
				{Name: "URL", Value: ev.URL},
				{Name: "Error", Value: ev.Error},
				{Name: "Failures", Value: fmt.Sprintf("%d/%d", ev.Failures, ev.Threshold)},
			},
		}
		msg.Content = strings.TrimSpace(mention + " **ALERT:** Website monitor detected downtime!")
		return msg
	default:
		msg := Message{
			Title: fmt.Sprintf("✅ Website Recovered: **%s** is back online!", ev.Monitor),
			Fields: []Field{
				{Name: "URL", Value: ev.URL},
				{Name: "Response Time", Value: fmt.Sprintf("%.2fms", ev.LatencyMs)},
			},
		}
		if ev.Downtime > 0 {
			msg.Fields = append(msg.Fields, Field{Name: "Downtime Duration", Value: monitor.FormatClock(ev.Downtime)})
		}
		return msg
	}
}

// Text renders the message body without the title.
func (m Message) Text() string {
	var b strings.Builder
	if m.Content != "" {
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	for i, f := range m.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", f.Name, f.Value)
	}
	return b.String()
}

// String renders title and body.
func (m Message) String() string {
	return m.Title + "\n" + m.Text()
}
