package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/dmbot/dmbot/internal/core"
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func render(t table.Writer, markdown bool) string {
	if markdown {
		return t.RenderMarkdown()
	}
	return t.Render()
}

func renderStateTables(view StateView, markdown bool) string {
	summary := newTable("State (" + view.Driver + ")")
	summary.AppendRows([]table.Row{
		{"Saved at", formatTime(view.SavedAt)},
		{"Target subreddit", orDash(prefixed("r/", view.CurrentSubreddit))},
		{"Protected users", orDash(strings.Join(view.ProtectedUsers, ", "))},
		{"Hourly", fmt.Sprintf("%d/%d", view.Usage.HourCount, view.Usage.MaxPerHour)},
		{"Daily", fmt.Sprintf("%d/%d", view.Usage.DayCount, view.Usage.MaxPerDay)},
		{"Last send", formatTime(view.Usage.LastSendTime)},
		{"Circuit breaker", breakerLabel(view.Breaker)},
		{"Messages", fmt.Sprintf("%d sent, %d failed, %d total", view.Metrics.Successful, view.Metrics.Failed, view.Metrics.Total)},
		{"Replies", fmt.Sprintf("%d ai, %d template", view.Metrics.AI, view.Metrics.Template)},
		{"Success rate", fmt.Sprintf("%.1f%%", view.Metrics.SuccessRate*100)},
		{"Health", view.Metrics.Health},
	})

	sections := []string{render(summary, markdown)}
	if len(view.Recipients) > 0 {
		recipients := newTable("Recipients")
		recipients.AppendHeader(table.Row{"Username", "Today", "Last reset", "Failures"})
		for _, r := range view.Recipients {
			recipients.AppendRow(table.Row{r.Username, r.CountToday, r.LastResetDay, r.ConsecutiveFailures})
		}
		sections = append(sections, render(recipients, markdown))
	}
	return strings.Join(sections, "\n\n")
}

// FormatSendResult renders a single pipeline result.
func FormatSendResult(format Format, result core.SendResult) (string, error) {
	if out, ok, err := encode(format, newResultView(result)); ok {
		return out, err
	}

	t := newTable("")
	t.AppendHeader(table.Row{"Recipient", "Outcome", "Detail", "Attempts"})
	t.AppendRow(table.Row{result.Recipient, string(result.Outcome), resultDetail(result), result.Attempts})
	return render(t, format == FormatMarkdown), nil
}

type resultView struct {
	Recipient string `json:"recipient" yaml:"recipient"`
	Outcome   string `json:"outcome" yaml:"outcome"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Source    string `json:"source,omitempty" yaml:"source,omitempty"`
	Attempts  int    `json:"attempts" yaml:"attempts"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

func newResultView(r core.SendResult) resultView {
	return resultView{
		Recipient: r.Recipient,
		Outcome:   string(r.Outcome),
		Reason:    string(r.Reason),
		Source:    string(r.Source),
		Attempts:  r.Attempts,
		Error:     r.Error(),
	}
}

func resultDetail(r core.SendResult) string {
	switch r.Outcome {
	case core.OutcomeDenied:
		return string(r.Reason)
	case core.OutcomeFailed:
		return r.Error()
	default:
		return string(r.Source)
	}
}

func breakerLabel(b BreakerView) string {
	if b.Open {
		return fmt.Sprintf("OPEN (%d/%d failures, %s left)", b.Failures, b.Threshold, b.Remaining.Round(time.Second))
	}
	return fmt.Sprintf("closed (%d/%d failures)", b.Failures, b.Threshold)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func prefixed(prefix, s string) string {
	if s == "" {
		return ""
	}
	return prefix + s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type decisionView struct {
	Recipient string `json:"recipient" yaml:"recipient"`
	Decision  string `json:"decision" yaml:"decision"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Wait      string `json:"wait,omitempty" yaml:"wait,omitempty"`
}

// FormatDecision renders a non-blocking admission check.
func FormatDecision(format Format, recipient string, d core.Decision) (string, error) {
	view := decisionView{Recipient: recipient, Decision: d.Kind.String(), Reason: string(d.Reason)}
	if d.Wait > 0 {
		view.Wait = d.Wait.Round(time.Second).String()
	}
	if out, ok, err := encode(format, view); ok {
		return out, err
	}

	t := newTable("")
	t.AppendHeader(table.Row{"Recipient", "Decision", "Detail"})
	detail := view.Reason
	if view.Wait != "" {
		detail = "wait " + view.Wait
	}
	t.AppendRow(table.Row{recipient, view.Decision, orDash(detail)})
	return render(t, format == FormatMarkdown), nil
}
