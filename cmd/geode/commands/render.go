package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/qri-io/geode"
)

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault
	return tbl
}

// renderValues prints up to limit values of a, one row per element with the
// coordinates of every axis of v.
func renderValues(w io.Writer, v *geode.Var, a *geode.Array, limit int) {
	tbl := newTable(w)

	header := table.Row{}
	for _, ax := range v.Axes() {
		header = append(header, ax.Name())
	}
	header = append(header, v.Name())
	tbl.AppendHeader(header)

	shape := a.Shape()
	idx := make([]int, len(shape))
	n := min(a.Size(), limit)
	for i := 0; i < n; i++ {
		row := make(table.Row, 0, len(shape)+1)
		for d, ax := range v.Axes() {
			row = append(row, coordLabel(ax, idx[d]))
		}
		row = append(row, formatValue(a.Data()[i]))
		tbl.AppendRow(row)

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}

	footer := fmt.Sprintf("Total: %s values", humanize.Comma(int64(a.Size())))
	if n < a.Size() {
		footer = fmt.Sprintf("Showing %d of %s values", n, humanize.Comma(int64(a.Size())))
	}
	tbl.AppendFooter(table.Row{footer})
	tbl.Render()
}

// renderVars prints one row per variable.
func renderVars(w io.Writer, vars []*geode.Var) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"name", "axes", "shape", "elements", "size"})

	var total int64
	for _, v := range vars {
		names := make([]string, v.NDim())
		for d, ax := range v.Axes() {
			names[d] = ax.Name()
		}
		bytes := v.Size() * 8
		total += bytes
		tbl.AppendRow(table.Row{
			v.Name(),
			strings.Join(names, ","),
			fmt.Sprint(v.Shape()),
			humanize.Comma(v.Size()),
			humanize.IBytes(uint64(bytes)),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d variables", len(vars)), "", "", "", humanize.IBytes(uint64(total))})
	tbl.Render()
}

// coordLabel describes position i of ax. Calendar axes show their fields.
func coordLabel(ax *geode.Axis, i int) string {
	fields := ax.FieldNames()
	if len(fields) == 0 {
		return formatValue(ax.Value(i))
	}
	parts := make([]string, len(fields))
	for k, name := range fields {
		vals, _ := ax.Field(name)
		parts[k] = name + "=" + strconv.Itoa(vals[i])
	}
	return strings.Join(parts, " ")
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
