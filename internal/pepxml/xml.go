// Package pepxml parses finalized PEP XML export builds into article
// records, child fragments, and bibliography references.
//
// All tree access goes through a small set of typed accessors that return
// an explicit value-plus-ok pair. Extraction failures never panic; callers
// apply documented default rules instead.
package pepxml

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
)

// encodingDeclPattern matches the encoding attribute of the XML
// declaration. Legacy exports declare single-byte charsets the decoder
// rejects, so the declaration is normalized before parsing.
var encodingDeclPattern = regexp.MustCompile(`(?i)(<\?xml[^>]*?)\s+encoding\s*=\s*["'][^"']*["']`)

// Parse parses one export build into a document tree.
func Parse(content string) (*xmlquery.Node, error) {
	content = encodingDeclPattern.ReplaceAllString(content, "$1")
	doc, err := xmlquery.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return doc, nil
}

// TextOf returns the inner text of the first node matching path, with
// surrounding whitespace trimmed. ok is false when nothing matches.
func TextOf(n *xmlquery.Node, path string) (string, bool) {
	node := xmlquery.FindOne(n, path)
	if node == nil {
		return "", false
	}
	return strings.TrimSpace(node.InnerText()), true
}

// TextListOf returns the trimmed inner text of every node matching path.
func TextListOf(n *xmlquery.Node, path string) []string {
	var out []string
	for _, node := range xmlquery.Find(n, path) {
		out = append(out, strings.TrimSpace(node.InnerText()))
	}
	return out
}

// AttrOf returns the named attribute of the first node matching path.
// ok is false when the node or the attribute is absent.
func AttrOf(n *xmlquery.Node, path, attr string) (string, bool) {
	node := xmlquery.FindOne(n, path)
	if node == nil {
		return "", false
	}
	return attrValue(node, attr)
}

// XMLOf returns the serialized markup (including the element itself) of
// the first node matching path.
func XMLOf(n *xmlquery.Node, path string) (string, bool) {
	node := xmlquery.FindOne(n, path)
	if node == nil {
		return "", false
	}
	return node.OutputXML(true), true
}

// XMLListOf returns the serialized markup of every node matching path.
func XMLListOf(n *xmlquery.Node, path string) []string {
	var out []string
	for _, node := range xmlquery.Find(n, path) {
		out = append(out, node.OutputXML(true))
	}
	return out
}

// attrValue looks the attribute up on the node itself, distinguishing an
// absent attribute from an empty one.
func attrValue(n *xmlquery.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

// inheritedLang walks from n toward the root looking for a lang
// attribute, falling back to def when no ancestor carries one.
func inheritedLang(n *xmlquery.Node, def string) string {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != xmlquery.ElementNode {
			continue
		}
		if v, ok := attrValue(cur, "lang"); ok && v != "" {
			return v
		}
	}
	return def
}
