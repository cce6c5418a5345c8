package markup

import (
	"html"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// HTML renders the document as markup safe for direct injection. All text
// is escaped; the only tags produced are strong, h3/u, li and br.
func HTML(doc Document) string {
	var b strings.Builder
	writeHTML(&b, doc.Nodes)
	return b.String()
}

func writeHTML(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Kind {
		case KindText:
			b.WriteString(html.EscapeString(n.Value))
		case KindBold:
			b.WriteString("<strong>")
			b.WriteString(html.EscapeString(n.Value))
			b.WriteString("</strong>")
		case KindHeading:
			b.WriteString("<h3><u>")
			writeHTML(b, n.Children)
			b.WriteString("</u></h3>")
		case KindListItem:
			b.WriteString("<li>")
			writeHTML(b, n.Children)
			b.WriteString("</li>")
		case KindLineBreak:
			b.WriteString("<br/>")
		}
	}
}

// PlainText strips all formatting, keeping line breaks as newlines
func PlainText(doc Document) string {
	var b strings.Builder
	writePlain(&b, doc.Nodes)
	return strings.TrimSpace(b.String())
}

func writePlain(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Kind {
		case KindText, KindBold:
			b.WriteString(n.Value)
		case KindHeading, KindListItem:
			writePlain(b, n.Children)
		case KindLineBreak:
			b.WriteByte('\n')
		}
	}
}

var (
	boldStyle    = lipgloss.NewStyle().Bold(true)
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	bulletStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
)

// Terminal renders the document for a console, styling headings, bold
// spans and list bullets.
func Terminal(doc Document) string {
	var b strings.Builder
	writeTerminal(&b, doc.Nodes)
	return b.String()
}

func writeTerminal(b *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		switch n.Kind {
		case KindText:
			b.WriteString(n.Value)
		case KindBold:
			b.WriteString(boldStyle.Render(n.Value))
		case KindHeading:
			var inner strings.Builder
			writePlain(&inner, n.Children)
			b.WriteString(headingStyle.Render(inner.String()))
		case KindListItem:
			b.WriteString(bulletStyle.Render("•"))
			b.WriteByte(' ')
			writeTerminal(b, n.Children)
		case KindLineBreak:
			b.WriteByte('\n')
		}
	}
}
