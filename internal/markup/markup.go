// Package markup turns the markdown-flavoured text of a model reply into a
// small tag-free document tree. Renderers in this package are the only
// place where that tree becomes HTML or styled terminal text.
package markup

import "strings"

// NoInformation is the document text used when a reply is empty
const NoInformation = "No information found."

// Kind identifies the type of a Node
type Kind int

const (
	KindText Kind = iota
	KindBold
	KindHeading
	KindListItem
	KindLineBreak
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBold:
		return "bold"
	case KindHeading:
		return "heading"
	case KindListItem:
		return "list_item"
	case KindLineBreak:
		return "line_break"
	default:
		return "unknown"
	}
}

// Node is one element of a formatted reply. Text and Bold nodes carry
// their literal text in Value. Heading and ListItem nodes hold their
// inline content in Children.
type Node struct {
	Kind     Kind
	Value    string
	Children []Node
}

// Document is the formatted projection of a reply
type Document struct {
	Nodes []Node
}

// IsZero reports whether the document has no nodes at all
func (d Document) IsZero() bool {
	return len(d.Nodes) == 0
}

var (
	headingMarkers = []string{"### ", "## "}
	listMarker     = "- "
)

// Format converts raw reply text into a Document. Bold spans are resolved
// first, then heading and list lines, then the remaining line boundaries
// become LineBreak nodes. Everything else is kept as literal text.
func Format(raw string) Document {
	if raw == "" {
		return fallback()
	}

	lines := splitLines(raw)
	nodes := make([]Node, 0, len(lines)*2)
	for i, line := range lines {
		if i > 0 {
			nodes = append(nodes, Node{Kind: KindLineBreak})
		}
		nodes = append(nodes, formatLine(line)...)
	}
	return Document{Nodes: nodes}
}

// FormatBreaksOnly converts line boundaries to LineBreak nodes and keeps
// every other character as literal text.
func FormatBreaksOnly(raw string) Document {
	if raw == "" {
		return fallback()
	}

	lines := splitLines(raw)
	nodes := make([]Node, 0, len(lines)*2)
	for i, line := range lines {
		if i > 0 {
			nodes = append(nodes, Node{Kind: KindLineBreak})
		}
		if line != "" {
			nodes = append(nodes, Node{Kind: KindText, Value: line})
		}
	}
	return Document{Nodes: nodes}
}

// Text wraps already-plain text in a single-node document
func Text(s string) Document {
	if s == "" {
		return Document{}
	}
	return Document{Nodes: []Node{{Kind: KindText, Value: s}}}
}

func fallback() Document {
	return Text(NoInformation)
}

func splitLines(raw string) []string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func formatLine(line string) []Node {
	for _, marker := range headingMarkers {
		if rest, ok := strings.CutPrefix(line, marker); ok {
			return []Node{{Kind: KindHeading, Children: inline(rest)}}
		}
	}
	if rest, ok := strings.CutPrefix(line, listMarker); ok {
		return []Node{{Kind: KindListItem, Children: inline(rest)}}
	}
	return inline(line)
}

// inline splits a single line into Text and Bold nodes. A "**" with no
// closing partner on the same line stays literal.
func inline(s string) []Node {
	var nodes []Node
	for s != "" {
		open := strings.Index(s, "**")
		if open < 0 {
			break
		}
		end := strings.Index(s[open+2:], "**")
		if end < 0 {
			break
		}
		if open > 0 {
			nodes = append(nodes, Node{Kind: KindText, Value: s[:open]})
		}
		nodes = append(nodes, Node{Kind: KindBold, Value: s[open+2 : open+2+end]})
		s = s[open+2+end+2:]
	}
	if s != "" {
		nodes = append(nodes, Node{Kind: KindText, Value: s})
	}
	return nodes
}
