package web

// report.go renders the HTML views of parse results. The components are
// built with templ.ComponentFunc and escape every value with
// templ.EscapeString.

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/csvbind/internal/core"
)

const pageStyle = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2937}
table{border-collapse:collapse;margin:1rem 0}th,td{border:1px solid #d1d5db;padding:.25rem .5rem;text-align:left}
th{background:#f3f4f6}.error{color:#b91c1c}.muted{color:#6b7280}code{background:#f3f4f6;padding:0 .25rem}`

// ParseReport renders a parse result as a standalone HTML page.
func ParseReport(resp *ParseResponse) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.open("Parse report: " + resp.Schema)

		p.printf("<h1>%s</h1>", esc(resp.Schema))
		p.printf(`<p class="muted">%d records, %d failed rows, %d bytes, %d ms`,
			resp.Stats.Records, resp.Stats.Failed, resp.Stats.Bytes, resp.Stats.DurationMs)
		if resp.Stats.Truncated {
			p.printf(" (truncated)")
		}
		p.printf("</p>")

		p.printf("<h2>Records</h2><table><thead><tr>")
		for _, col := range resp.Columns {
			p.printf("<th>%s</th>", esc(col))
		}
		p.printf("</tr></thead><tbody>")
		for _, rec := range resp.Records {
			p.printf("<tr>")
			for _, col := range resp.Columns {
				p.printf("<td>%s</td>", esc(rec[col]))
			}
			p.printf("</tr>")
		}
		p.printf("</tbody></table>")

		if len(resp.Errors) > 0 {
			p.printf("<h2>Failed rows</h2>")
			writeRowErrors(p, resp.Errors)
		}

		p.close()
		return p.err
	})
}

// ErrorPage renders a user-facing error with any rows that caused it.
func ErrorPage(msg core.UserMessage, rowErrs []*core.RowError) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &htmlWriter{w: w}
		p.open("Error " + msg.Code)

		p.printf(`<div class="error" role="alert"><strong>%s</strong>`, esc(msg.Message))
		if msg.Action != "" {
			p.printf("<p>%s</p>", esc(msg.Action))
		}
		p.printf(`<p class="muted">Code: <code>%s</code></p></div>`, esc(msg.Code))

		if len(rowErrs) > 0 {
			writeRowErrors(p, rowErrorsJSON(rowErrs))
		}

		p.close()
		return p.err
	})
}

func writeRowErrors(p *htmlWriter, rows []RowErrorJSON) {
	p.printf("<table><thead><tr><th>Line</th><th>Problems</th><th>Data</th></tr></thead><tbody>")
	for _, row := range rows {
		msgs := make([]string, len(row.Errors))
		for i, fe := range row.Errors {
			msgs[i] = esc(fe.Field + ": " + fe.Message)
		}
		p.printf(`<tr><td>%d</td><td class="error">%s</td><td><code>%s</code></td></tr>`,
			row.Line, strings.Join(msgs, "<br>"), esc(row.Raw))
	}
	p.printf("</tbody></table>")
}

// htmlWriter keeps the first write error so components can write freely.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (p *htmlWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *htmlWriter) open(title string) {
	p.printf(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s</title><style>%s</style></head><body>`,
		esc(title), pageStyle)
}

func (p *htmlWriter) close() {
	p.printf("</body></html>")
}

func esc(s string) string { return templ.EscapeString(s) }
