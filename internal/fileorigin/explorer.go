package fileorigin

import (
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"

	"exposemgr/internal/domain"
)

// RenderExplorer renders the root listing view for a workspace's
// manifest: a plain, dependency-free HTML table of name/size/modified,
// linking each entry to its relative URL. In zip mode the manifest has
// already collapsed to the single bundle entry, so the table row for
// "download.zip" is the only download link rendered.
func RenderExplorer(title string, manifest []domain.ManifestEntry) []byte {
	var rows strings.Builder
	for _, e := range manifest {
		rows.WriteString("<tr><td><a href=\"/")
		rows.WriteString(e.RelativeURL)
		rows.WriteString("\">")
		rows.WriteString(html.EscapeString(e.Name))
		rows.WriteString("</a></td><td>")
		rows.WriteString(humanize.Bytes(uint64(e.Size)))
		rows.WriteString("</td><td>")
		if !e.ModifiedAt.IsZero() {
			rows.WriteString(e.ModifiedAt.Format("2006-01-02 15:04:05"))
		}
		rows.WriteString("</td></tr>\n")
	}

	body := fmt.Sprintf(`<h1>%s</h1>
<table>
<thead><tr><th>Name</th><th>Size</th><th>Modified</th></tr></thead>
<tbody>
%s</tbody>
</table>`, html.EscapeString(title), rows.String())

	return PageHTML(title, body)
}
