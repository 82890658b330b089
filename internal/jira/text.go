package jira

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	hyperlinkRE  = regexp.MustCompile(`https?://[^\s]+`)
	manyBlanksRE = regexp.MustCompile(`\n{3,}`)
	spaceRunRE   = regexp.MustCompile(`[ \t]+`)
)

// TextTranslator converts Rally rich text (HTML) into Jira wiki markup
// and harvests ticket references to the configured external ticketing
// domain from the translated output.
type TextTranslator struct {
	ticketDomain string
}

// NewTextTranslator creates a translator. ticketDomain is the host of
// the external ticketing system ("" disables ticket harvesting).
func NewTextTranslator(ticketDomain string) *TextTranslator {
	return &TextTranslator{ticketDomain: ticketDomain}
}

// Translate renders HTML content as Jira wiki markup and returns the
// markup plus any ticket ids found in it. Hyperlink targets and inline
// images are dropped from the markup; only anchor text survives, so
// harvesting works off bare URLs in the text. Duplicate ticket ids are
// preserved in discovery order.
func (t *TextTranslator) Translate(content string) (string, []string) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// The tolerant parser only fails on reader errors, which a
		// strings.Reader never produces; fall through with raw text.
		return strings.TrimSpace(content), t.findTickets(content)
	}

	r := &wikiRenderer{}
	r.walk(doc)

	out := r.sb.String()
	out = spaceRunRE.ReplaceAllString(out, " ")
	out = manyBlanksRE.ReplaceAllString(out, "\n\n")
	out = trimLineSpace(out)
	out = strings.TrimSpace(out)

	return out, t.findTickets(out)
}

// findTickets scans text for URLs on the ticketing domain and extracts
// the trailing path segment of each as a ticket id.
func (t *TextTranslator) findTickets(text string) []string {
	if t.ticketDomain == "" {
		return nil
	}
	var tickets []string
	for _, match := range hyperlinkRE.FindAllString(text, -1) {
		u, err := url.Parse(match)
		if err != nil || u.Host != t.ticketDomain {
			continue
		}
		seg := u.Path[strings.LastIndex(u.Path, "/")+1:]
		if seg != "" {
			tickets = append(tickets, seg)
		}
	}
	return tickets
}

func trimLineSpace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// wikiRenderer walks an HTML tree and emits Jira wiki markup.
type wikiRenderer struct {
	sb        strings.Builder
	listStack []byte // '*' for ul, '#' for ol
	inPre     bool
}

func (r *wikiRenderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		if r.inPre {
			r.sb.WriteString(n.Data)
			return
		}
		text := strings.ReplaceAll(n.Data, "\n", " ")
		r.sb.WriteString(text)
		return
	case html.ElementNode:
		r.element(n)
		return
	}
	r.walkChildren(n)
}

func (r *wikiRenderer) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func (r *wikiRenderer) element(n *html.Node) {
	switch n.Data {
	case "b", "strong":
		r.wrapInline(n, "*")
	case "i", "em":
		r.wrapInline(n, "_")
	case "u", "ins":
		r.wrapInline(n, "+")
	case "s", "del", "strike":
		r.wrapInline(n, "-")
	case "code", "tt":
		r.wrapPair(n, "{{", "}}")
	case "pre":
		r.sb.WriteString("\n{code}\n")
		r.inPre = true
		r.walkChildren(n)
		r.inPre = false
		r.sb.WriteString("\n{code}\n")
	case "blockquote":
		r.sb.WriteString("\n{quote}")
		r.walkChildren(n)
		r.sb.WriteString("{quote}\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.sb.WriteString("\n\n" + n.Data + ". ")
		r.walkChildren(n)
		r.sb.WriteString("\n\n")
	case "p":
		r.sb.WriteString("\n\n")
		r.walkChildren(n)
		r.sb.WriteString("\n\n")
	case "div":
		r.sb.WriteString("\n")
		r.walkChildren(n)
		r.sb.WriteString("\n")
	case "br":
		r.sb.WriteString("\n")
	case "hr":
		r.sb.WriteString("\n----\n")
	case "ul":
		r.list(n, '*')
	case "ol":
		r.list(n, '#')
	case "li":
		r.sb.WriteString("\n" + string(r.listStack) + " ")
		r.walkChildren(n)
	case "a":
		// Keep the anchor text, drop the target.
		r.walkChildren(n)
	case "img":
		// Dropped entirely.
	default:
		r.walkChildren(n)
	}
}

func (r *wikiRenderer) list(n *html.Node, marker byte) {
	r.listStack = append(r.listStack, marker)
	r.walkChildren(n)
	r.listStack = r.listStack[:len(r.listStack)-1]
	r.sb.WriteString("\n")
}

// wrapInline emits marker-delimited content, skipping the markers when
// the content renders empty.
func (r *wikiRenderer) wrapInline(n *html.Node, marker string) {
	r.wrapPair(n, marker, marker)
}

func (r *wikiRenderer) wrapPair(n *html.Node, open, closing string) {
	inner := &wikiRenderer{listStack: r.listStack, inPre: r.inPre}
	inner.walkChildren(n)
	content := inner.sb.String()
	if strings.TrimSpace(content) == "" {
		r.sb.WriteString(content)
		return
	}
	r.sb.WriteString(open)
	r.sb.WriteString(strings.TrimSpace(content))
	r.sb.WriteString(closing)
}
