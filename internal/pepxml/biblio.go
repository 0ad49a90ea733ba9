package pepxml

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
)

// Reference is one bibliography entry of an article, persisted to the
// relational bibliography table independently of the search engine.
type Reference struct {
	// ID is {parent_id}.{local_ref_id}.
	ID      string
	LocalID string
	ArtID   string

	Text        string // raw entry markup; substitute note when redacted
	Offsite     bool
	OffsiteText string

	SourceType  string // book or journal, inferred from publisher presence
	SourceTitle string
	Publisher   string

	Year    string
	YearInt int

	Volume    string
	PageRange string

	AuthorsXML string
	Authors    string
	Title      string

	RX           string
	RXCf         string
	RXSourceCode string
}

// untaggedYearPattern recovers a publication year from free reference
// text like "(Jones, 1987)" when no year element is tagged.
var untaggedYearPattern = regexp.MustCompile(`\(([A-Za-z]*\s*,?\s*)?([12][0-9]{3}[abc]?)\)`)

var rxSourcePattern = regexp.MustCompile(`^(.*?)\.`)

// ParseReferences extracts every bibliography entry of the article.
// Year normalization degrades to 0 when no 4-digit year is recoverable.
func ParseReferences(doc *xmlquery.Node, art *Article) []Reference {
	var refs []Reference
	for _, node := range xmlquery.Find(doc, "/pepkbd3//be") {
		refs = append(refs, parseReference(node, art))
	}
	return refs
}

func parseReference(node *xmlquery.Node, art *Article) Reference {
	ref := Reference{
		ArtID: art.ID,
		Text:  node.OutputXML(true),
	}
	ref.LocalID, _ = attrValue(node, "id")
	ref.ID = art.ID + "." + ref.LocalID

	ref.SourceTitle, _ = TextOf(node, "j")
	ref.Publisher, _ = TextOf(node, "bp")
	if ref.Publisher != "" {
		ref.SourceType = "book"
	} else {
		ref.SourceType = "journal"
	}

	if ref.SourceType == "book" {
		ref.Year, _ = TextOf(node, "bpd")
		if ref.Year == "" {
			ref.Year, _ = TextOf(node, "y")
		}
		if ref.SourceTitle == "" {
			// book title, sometimes with markup
			ref.SourceTitle, _ = TextOf(node, "bst")
		}
	} else {
		ref.Year, _ = TextOf(node, "y")
	}

	if ref.Year == "" {
		if m := untaggedYearPattern.FindStringSubmatch(ref.Text); m != nil {
			ref.Year = m[2]
		}
	}
	ref.YearInt = normalizeYear(ref.Year)

	var authorsXML, authors []string
	for _, a := range xmlquery.Find(node, "a") {
		authorsXML = append(authorsXML, a.OutputXML(true))
		if t := strings.TrimSpace(a.InnerText()); t != "" {
			authors = append(authors, t)
		}
	}
	ref.AuthorsXML = strings.Join(authorsXML, "; ")
	ref.Authors = strings.Join(authors, "; ")

	ref.Title, _ = TextOf(node, "t")
	ref.Volume, _ = TextOf(node, "v")
	ref.PageRange, _ = TextOf(node, "pp")

	ref.RX, _ = attrValue(node, "rx")
	ref.RXCf, _ = attrValue(node, "rxcf")
	if ref.RX != "" {
		if m := rxSourcePattern.FindStringSubmatch(ref.RX); m != nil {
			ref.RXSourceCode = m[1]
		}
	}

	return ref
}

// normalizeYear strips non-digits and converts the first four digits,
// returning 0 when nothing usable remains.
func normalizeYear(year string) int {
	digits := nonDigits.ReplaceAllString(year, "")
	if len(digits) > 4 {
		digits = digits[:4]
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}
