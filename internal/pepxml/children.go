package pepxml

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ChildTag is the fixed vocabulary of child fragment groups.
type ChildTag string

const (
	TagBody     ChildTag = "body"
	TagHeading  ChildTag = "heading"
	TagQuote    ChildTag = "quote"
	TagDream    ChildTag = "dream"
	TagPoem     ChildTag = "poem"
	TagNote     ChildTag = "note"
	TagDialog   ChildTag = "dialog"
	TagPanel    ChildTag = "panel"
	TagCaption  ChildTag = "caption"
	TagBiblio   ChildTag = "biblio"
	TagAppendix ChildTag = "appendix"
	TagSummary  ChildTag = "summary"
)

// Child is one typed fragment of an article body, indexed as a level-2
// document beneath its parent article.
type Child struct {
	// ID is {parent_id}.{seq}; seq is monotone across all tag groups of
	// one parent, so ids are unique within the parent's children.
	ID  string
	Seq int

	Tag  ChildTag
	Lang string
	XML  string

	// Concordance linkage for aligned source material.
	GroupID    string
	RelatedIDs []string
}

// containerElems are the elements that own their content exclusively.
// Every group's selector excludes nodes nested inside another container,
// so no fragment is ever emitted under two different tags.
var containerElems = []string{
	"quote", "dream", "poem", "note", "dialog", "panel", "caption", "be", "appxs", "summaries",
}

// childGroups lists the tag groups in emission order with their base
// selectors. Exclusion predicates are added by groupSelector.
var childGroups = []struct {
	tag   ChildTag
	elems []string
}{
	{TagBody, []string{"body//p", "body//p2"}},
	{TagHeading, []string{"h1", "h2", "h3", "h4", "h5", "h6"}},
	{TagQuote, []string{"quote"}},
	{TagDream, []string{"dream"}},
	{TagPoem, []string{"poem"}},
	{TagNote, []string{"note"}},
	{TagDialog, []string{"dialog"}},
	{TagPanel, []string{"panel"}},
	{TagCaption, []string{"caption"}},
	{TagBiblio, []string{"be"}},
	{TagAppendix, []string{"appxs"}},
	{TagSummary, []string{"summaries"}},
}

// BuildChildren decomposes the document into typed child fragments for
// separate searchability. The sequence counter is scoped to the parent
// and shared across all tag groups.
func BuildChildren(doc *xmlquery.Node, art *Article) []Child {
	defLang := "EN"
	if len(art.Langs) > 0 {
		defLang = art.Langs[0]
	}

	var children []Child
	seq := 0
	for _, group := range childGroups {
		for _, elem := range group.elems {
			sel := groupSelector(elem)
			for _, node := range xmlquery.Find(doc, sel) {
				seq++
				child := Child{
					ID:   fmt.Sprintf("%s.%d", art.ID, seq),
					Seq:  seq,
					Tag:  group.tag,
					Lang: inheritedLang(node, defLang),
					XML:  node.OutputXML(true),
				}
				if g, ok := attrValue(node, "lgrid"); ok {
					child.GroupID = g
				}
				if rx, ok := attrValue(node, "lgrx"); ok {
					child.RelatedIDs = splitRefIDs(rx)
				}
				children = append(children, child)
			}
		}
	}
	return children
}

// groupSelector builds the exclusive selector for one base element:
// matches are dropped when nested inside a different container group.
func groupSelector(elem string) string {
	base := elem[strings.LastIndex(elem, "/")+1:]
	var preds []string
	for _, c := range containerElems {
		if c == base {
			continue
		}
		preds = append(preds, fmt.Sprintf("not(ancestor::%s)", c))
	}
	return "//" + elem + "[" + strings.Join(preds, " and ") + "]"
}

// splitRefIDs splits a cross-reference id list attribute on spaces and
// commas.
func splitRefIDs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	var out []string
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
