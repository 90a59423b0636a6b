// Package report renders the health report as operator-facing markdown and,
// for the daemon status page, HTML.
package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/takops/takops/internal/health"
	"github.com/takops/takops/internal/state"
)

// Format selects the output rendering.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

var titler = cases.Title(language.English)

// Render produces the report in the requested format.
func Render(r *health.Report, domain string, format Format) (string, error) {
	md := Markdown(r, domain)
	switch format {
	case FormatMarkdown, "":
		return md, nil
	case FormatHTML:
		return HTML(md)
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

// Markdown builds the markdown report.
func Markdown(r *health.Report, domain string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Certificate Renewal Status: %s\n\n", domain)
	fmt.Fprintf(&b, "Generated %s\n\n", r.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Overall: %s**", titler.String(string(r.Overall)))
	if r.FailedOver {
		b.WriteString(" (failed over)")
	}
	b.WriteString("\n\n")

	b.WriteString("## Schedulers\n\n")
	b.WriteString("| Backend | Role | Score | State | Last Run | Outcome |\n")
	b.WriteString("|---------|------|-------|-------|----------|--------|\n")
	for _, br := range r.Backends {
		lastRun, outcome := "never", "-"
		if br.Heartbeat != nil {
			lastRun = br.Heartbeat.FinishedAt.UTC().Format(time.RFC3339)
			outcome = string(br.Heartbeat.Outcome)
		}
		role := string(br.Role)
		if role == "" {
			role = "unassigned"
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s |\n",
			br.Backend, role, br.Score, titler.String(string(br.Band)), lastRun, outcome)
	}
	b.WriteString("\n")

	if r.Certificate != nil {
		b.WriteString("## Certificate\n\n")
		fmt.Fprintf(&b, "- Subject: %s\n", r.Certificate.Subject)
		fmt.Fprintf(&b, "- Issuer: %s\n", r.Certificate.Issuer)
		fmt.Fprintf(&b, "- Expires: %s (%d days left)\n",
			r.Certificate.NotAfter.UTC().Format(time.RFC3339), r.Certificate.DaysLeft)
		b.WriteString("\n")
	}

	if len(r.Transitions) > 0 {
		b.WriteString("## Recent Transitions\n\n")
		for _, t := range recentTransitions(r.Transitions, 5) {
			fmt.Fprintf(&b, "- %s: %s -> %s (%s)\n",
				t.At.UTC().Format(time.RFC3339), t.From, t.To, t.Reason)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// HTML renders markdown to HTML with table support.
func HTML(md string) (string, error) {
	gm := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return buf.String(), nil
}

// recentTransitions returns the newest n transitions, newest first.
func recentTransitions(ts []state.Transition, n int) []state.Transition {
	if len(ts) > n {
		ts = ts[len(ts)-n:]
	}
	out := make([]state.Transition, len(ts))
	for i, t := range ts {
		out[len(ts)-1-i] = t
	}
	return out
}
