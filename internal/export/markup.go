package export

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// markupToParagraphs flattens a rich-text fragment into paragraphs of styled
// runs. Only bold and italic survive; block-level tags and <br> start a new
// paragraph and everything else is dropped.
func markupToParagraphs(fragment string) []Paragraph {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var (
		paras        []Paragraph
		cur          Paragraph
		bold, italic int
	)
	flush := func() {
		cur.Runs = trimRuns(cur.Runs)
		if len(cur.Runs) > 0 {
			paras = append(paras, cur)
		}
		cur = Paragraph{}
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			return paras
		case html.TextToken:
			text := collapseSpace(string(z.Text()))
			if text == "" || (text == " " && len(cur.Runs) == 0) {
				continue
			}
			cur.Runs = append(cur.Runs, TextRun{Text: text, Bold: bold > 0, Italic: italic > 0})
		case html.StartTagToken:
			name, _ := z.TagName()
			switch a := atom.Lookup(name); {
			case a == atom.B || a == atom.Strong:
				bold++
			case a == atom.I || a == atom.Em:
				italic++
			case a == atom.Br || isBlockTag(a):
				flush()
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Br || isBlockTag(a) {
				flush()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch a := atom.Lookup(name); {
			case (a == atom.B || a == atom.Strong) && bold > 0:
				bold--
			case (a == atom.I || a == atom.Em) && italic > 0:
				italic--
			case isBlockTag(a):
				flush()
			}
		}
	}
}

func isBlockTag(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Blockquote:
		return true
	}
	return false
}

// collapseSpace folds whitespace runs to one space, keeping a single leading or
// trailing space so adjacent runs stay separated.
func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	return b.String()
}

func trimRuns(runs []TextRun) []TextRun {
	for len(runs) > 0 {
		runs[0].Text = strings.TrimLeft(runs[0].Text, " ")
		if runs[0].Text != "" {
			break
		}
		runs = runs[1:]
	}
	for len(runs) > 0 {
		last := len(runs) - 1
		runs[last].Text = strings.TrimRight(runs[last].Text, " ")
		if runs[last].Text != "" {
			break
		}
		runs = runs[:last]
	}
	return runs
}
