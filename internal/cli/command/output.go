package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

// printer renders command output as a table or JSON.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(c *cli.Context) *printer {
	return &printer{w: c.App.Writer, json: c.String("output") == "json"}
}

// emit writes v as JSON, or the table built by rows otherwise.
func (p *printer) emit(v any, headers []string, rows [][]string) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return p.table(headers, rows)
}

func (p *printer) table(headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	if len(headers) > 0 {
		fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
