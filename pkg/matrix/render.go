package matrix

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Pretty indents raw JSON for display. Invalid input is returned unchanged.
func Pretty(raw string) string {
	if !gjson.Valid(raw) {
		return raw
	}
	return string(pretty.Pretty([]byte(raw)))
}

// RenderTable writes m as a category/name/description table.
func RenderTable(w io.Writer, m Matrix) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Kategori", "Navn", "Beskrivelse"})
	table.SetAutoWrapText(false)
	for _, e := range m.Entries {
		table.Append([]string{string(e.Category), e.Name, e.Description})
	}
	table.Render()
}
