package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"
)

const documentPart = "word/document.xml"

var errNotDOCX = errors.New("not a docx document: missing " + documentPart)

// span is a run of text sharing the same formatting.
type span struct {
	text      string
	bold      bool
	italic    bool
	underline bool
	lineBreak bool
}

// block is a top-level element of the document body: a paragraph, a table or a page break.
type block struct {
	style     string
	align     string
	spans     []span
	rows      [][]string
	table     bool
	pageBreak bool
}

// DOCXToHTML renders the body of a docx document as a standalone HTML page.
//
// Only the text flow is rendered: paragraphs, headings, bold, italic and underlined runs,
// line and page breaks, and tables as plain text cells. Images, numbering and headers are ignored.
func DOCXToHTML(r io.ReaderAt, size int64, title string) ([]byte, error) {
	archive, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening zip archive: %w", err)
	}

	var part *zip.File
	for _, f := range archive.File {
		if f.Name == documentPart {
			part = f

			break
		}
	}
	if part == nil {
		return nil, errNotDOCX
	}

	rc, err := part.Open()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", documentPart, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	blocks, err := parseBody(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", documentPart, err)
	}

	var buf bytes.Buffer
	writeHTML(&buf, title, blocks)

	return buf.Bytes(), nil
}

// bodyParser streams the tokens of word/document.xml into blocks.
//
// Paragraphs and runs are kept on stacks: a text box (w:txbxContent) nests whole paragraphs
// inside a run of the enclosing paragraph.
type bodyParser struct {
	blocks []block
	paras  []*block
	runs   []*span
	table  *block
	cell   *strings.Builder
	nested int
}

// para returns the innermost open paragraph, if any.
func (p *bodyParser) para() *block {
	if len(p.paras) == 0 {
		return nil
	}

	return p.paras[len(p.paras)-1]
}

// run returns the innermost open run, if any.
func (p *bodyParser) run() *span {
	if len(p.runs) == 0 {
		return nil
	}

	return p.runs[len(p.runs)-1]
}

func parseBody(r io.Reader) ([]block, error) {
	dec := xml.NewDecoder(r)
	p := &bodyParser{}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if err := p.start(dec, t); err != nil {
				return nil, err
			}
		case xml.EndElement:
			p.end(t)
		}
	}

	return p.blocks, nil
}

func (p *bodyParser) start(dec *xml.Decoder, t xml.StartElement) error {
	switch t.Name.Local {
	case "Fallback":
		// alternate content is rendered once, from its preferred choice
		return dec.Skip()
	case "tbl":
		if p.table != nil {
			// nested tables are flattened into the enclosing cell
			p.nested++

			return nil
		}
		p.table = &block{table: true}
	case "tr":
		if p.table != nil && p.nested == 0 {
			p.table.rows = append(p.table.rows, nil)
		}
	case "tc":
		if p.table != nil && p.nested == 0 {
			p.cell = &strings.Builder{}
		}
	case "p":
		p.paras = append(p.paras, &block{})
	case "pStyle":
		if para := p.para(); para != nil {
			para.style = attr(t, "val")
		}
	case "jc":
		if para := p.para(); para != nil {
			para.align = attr(t, "val")
		}
	case "r":
		p.runs = append(p.runs, &span{})
	case "b":
		if run := p.run(); run != nil {
			run.bold = isOn(t)
		}
	case "i":
		if run := p.run(); run != nil {
			run.italic = isOn(t)
		}
	case "u":
		if run := p.run(); run != nil {
			val := attr(t, "val")
			run.underline = val != "none" && val != ""
		}
	case "t":
		var text string
		if err := dec.DecodeElement(&text, &t); err != nil {
			return err
		}
		p.text(text)
	case "tab":
		if p.run() != nil {
			p.text("\t")
		}
	case "br":
		if p.run() == nil {
			return nil
		}
		if attr(t, "type") == "page" && p.table == nil && len(p.paras) <= 1 {
			p.breakPage()

			return nil
		}
		p.lineBreak()
	}

	return nil
}

func (p *bodyParser) end(t xml.EndElement) {
	switch t.Name.Local {
	case "tbl":
		if p.nested > 0 {
			p.nested--

			return
		}
		if p.table != nil {
			p.blocks = append(p.blocks, *p.table)
		}
		p.table = nil
	case "tc":
		if p.table != nil && p.cell != nil && p.nested == 0 {
			last := len(p.table.rows) - 1
			if last >= 0 {
				p.table.rows[last] = append(p.table.rows[last], strings.TrimSpace(p.cell.String()))
			}
			p.cell = nil
		}
	case "p":
		if len(p.paras) == 0 {
			return
		}
		para := p.paras[len(p.paras)-1]
		p.paras = p.paras[:len(p.paras)-1]

		switch {
		case p.cell != nil:
			p.cell.WriteString(" ")
		case p.table != nil:
		case len(p.paras) > 0:
			p.inline(para)
		default:
			p.blocks = append(p.blocks, *para)
		}
	case "r":
		if len(p.runs) > 0 {
			p.runs = p.runs[:len(p.runs)-1]
		}
	}
}

// inline merges a nested paragraph, e.g. from a text box, into its enclosing paragraph,
// on lines of its own.
func (p *bodyParser) inline(nested *block) {
	if len(nested.spans) == 0 {
		return
	}

	outer := p.para()
	if len(outer.spans) > 0 {
		outer.spans = append(outer.spans, span{lineBreak: true})
	}
	outer.spans = append(outer.spans, nested.spans...)
	outer.spans = append(outer.spans, span{lineBreak: true})
}

func (p *bodyParser) text(text string) {
	if p.cell != nil {
		p.cell.WriteString(text)

		return
	}

	para := p.para()
	if para == nil {
		return
	}

	s := span{text: text}
	if run := p.run(); run != nil {
		s.bold, s.italic, s.underline = run.bold, run.italic, run.underline
	}
	para.spans = append(para.spans, s)
}

func (p *bodyParser) lineBreak() {
	if p.cell != nil {
		p.cell.WriteString("\n")

		return
	}

	if para := p.para(); para != nil {
		para.spans = append(para.spans, span{lineBreak: true})
	}
}

// breakPage splits the current paragraph around an explicit page break.
func (p *bodyParser) breakPage() {
	para := p.para()
	if para == nil {
		p.blocks = append(p.blocks, block{pageBreak: true})

		return
	}

	if len(para.spans) > 0 {
		p.blocks = append(p.blocks, *para)
	}
	p.blocks = append(p.blocks, block{pageBreak: true})
	p.paras[len(p.paras)-1] = &block{style: para.style, align: para.align}
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}

	return ""
}

// isOn reads a toggle property such as <w:b/> or <w:b w:val="false"/>.
func isOn(t xml.StartElement) bool {
	switch attr(t, "val") {
	case "0", "false", "off", "none":
		return false
	default:
		return true
	}
}

// headingLevel maps a paragraph style to a heading level, or 0 for body text.
//
// Both style IDs ("Heading2") and style names ("heading 2") are recognized.
func headingLevel(style string) int {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch {
	case s == "title":
		return 1
	case strings.HasPrefix(s, "heading"):
		level, err := strconv.Atoi(strings.TrimPrefix(s, "heading"))
		if err != nil || level < 1 {
			return 0
		}

		return min(level, 6)
	default:
		return 0
	}
}

const pageStyle = `body { margin: 24px; background: #fff; color: #000; font-family: Georgia, serif; font-size: 16px; line-height: 1.45; }
p { margin: 0 0 0.8em 0; min-height: 1em; white-space: pre-wrap; }
table { border-collapse: collapse; margin: 0 0 0.8em 0; width: 100%; }
td { border: 1px solid #444; padding: 4px 6px; vertical-align: top; white-space: pre-wrap; }
.page-break { height: 48px; }`

func writeHTML(w *bytes.Buffer, title string, blocks []block) {
	w.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	w.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	fmt.Fprintf(w, "<title>%s</title>\n<style>\n%s\n</style>\n</head>\n<body>\n", html.EscapeString(title), pageStyle)

	for _, b := range blocks {
		switch {
		case b.pageBreak:
			w.WriteString("<div class=\"page-break\"></div>\n")
		case b.table:
			writeTable(w, b.rows)
		default:
			writeParagraph(w, b)
		}
	}

	w.WriteString("</body>\n</html>\n")
}

func writeTable(w *bytes.Buffer, rows [][]string) {
	w.WriteString("<table>\n")
	for _, row := range rows {
		w.WriteString("<tr>")
		for _, cell := range row {
			fmt.Fprintf(w, "<td>%s</td>", html.EscapeString(cell))
		}
		w.WriteString("</tr>\n")
	}
	w.WriteString("</table>\n")
}

func writeParagraph(w *bytes.Buffer, b block) {
	tag := "p"
	if level := headingLevel(b.style); level > 0 {
		tag = "h" + strconv.Itoa(level)
	}

	w.WriteString("<" + tag)
	switch b.align {
	case "center", "right":
		fmt.Fprintf(w, " style=\"text-align: %s\"", b.align)
	case "both":
		w.WriteString(" style=\"text-align: justify\"")
	}
	w.WriteString(">")

	for _, s := range b.spans {
		if s.lineBreak {
			w.WriteString("<br>")

			continue
		}

		text := html.EscapeString(s.text)
		if s.underline {
			text = "<u>" + text + "</u>"
		}
		if s.italic {
			text = "<em>" + text + "</em>"
		}
		if s.bold {
			text = "<strong>" + text + "</strong>"
		}
		w.WriteString(text)
	}

	w.WriteString("</" + tag + ">\n")
}
