package pepxml

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/openpubarchive/opasload/internal/catalog"
	"github.com/openpubarchive/opasload/internal/cited"
)

// Classification is derived from the file's path, not its content, and
// drives the redaction policy.
type Classification string

const (
	ClassCurrent Classification = "current"
	ClassArchive Classification = "archive"
	ClassFuture  Classification = "future"
	ClassFree    Classification = "free"
	ClassOffsite Classification = "offsite"
	ClassUnknown Classification = ""
)

// Article is the complete record for one source document. One is emitted
// per file; art fields are derived deterministically so reprocessing the
// same logical document is idempotent.
type Article struct {
	ID string
	// TaggedID is the id declared inside the document itself, kept for
	// the mismatch warning; ID is derived from the filename and wins.
	TaggedID string

	FileClassification Classification
	FileName           string
	FileSize           int64
	FileLastModified   time.Time
	ProcessedAt        time.Time

	SrcCode         string
	SourceTitleAbbr string
	SourceTitleFull string
	SourceType      string
	SourceEmbargo   int
	SourceKnown     bool

	Vol       string
	VolInt    int
	VolSuffix string
	VolTitle  string

	Issue      string
	IssueTitle string

	Year    string
	YearInt int

	Pgrg      string
	PageRange PageRange
	PageCount int

	DOI      string
	ISSN     string
	Type     string
	OrigRX   string
	NewSecNm string

	Title string
	Langs []string
	Kwds  []string

	Authors         []string // display names, listed authors in order
	AuthorIDs       []string // listed index ids; display names when ids absent
	AuthorsBibStyle string
	AuthorMast      string
	AuthorsUnlisted string
	AllAuthors      string
	AuthorCount     int

	CiteAs string

	Cited cited.Counts

	RefCount         int
	BibAuthorFacets  []string
	BibTitleFacets   []string
	BibJournalFacets []string
	BibRxLinks       []string

	Qual          string
	IsSubDocument bool

	BodyXML string
	Excerpt string
	TextXML string

	// Offsite redaction results; see Redact.
	Offsite     bool
	OffsiteText string
}

// PageRange is the parsed form of an artpgrg value like "121-142" or
// "R5-R23". Start/End are 0 when the side does not contain digits.
type PageRange struct {
	Start       int
	End         int
	StartPrefix string
	StartSuffix string
	EndPrefix   string
	EndSuffix   string
}

var (
	yearPattern   = regexp.MustCompile(`([12][0-9]{3})([A-Za-z])?(?:\s*[-/]\s*([12][0-9]{3}))?`)
	volumePattern = regexp.MustCompile(`^([0-9]+)([A-Za-z])?`)
	pagePattern   = regexp.MustCompile(`^([A-Za-z]*)([0-9]+)([A-Za-z]*)$`)
	nonDigits     = regexp.MustCompile(`[^0-9]`)
	facetStrip    = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
)

// NewArticle extracts the article record from one parsed document tree.
// fileID is the canonical id derived from the filename; it wins over the
// in-document id on mismatch. The only hard failure is an unparsable
// volume, since every downstream key depends on it.
func NewArticle(doc *xmlquery.Node, fileID string, cat *catalog.Catalog, logger *slog.Logger) (*Article, error) {
	art := &Article{
		ID:          strings.ToUpper(fileID),
		ProcessedAt: time.Now().UTC(),
	}

	if id, ok := AttrOf(doc, "//artinfo", "id"); ok {
		art.TaggedID = strings.ToUpper(id)
		if art.TaggedID != art.ID {
			logger.Warn("article_id_mismatch",
				slog.String("file_id", art.ID),
				slog.String("tagged_id", art.TaggedID))
		}
	} else {
		logger.Warn("article_id_untagged", slog.String("file_id", art.ID))
	}

	srcCode, _ := AttrOf(doc, "//artinfo", "j")
	art.SrcCode = strings.ToUpper(srcCode)
	src, known := cat.Lookup(art.SrcCode)
	art.SourceKnown = known
	art.SourceTitleAbbr = src.TitleAbbr
	art.SourceTitleFull = src.TitleFull
	art.SourceType = src.ProductType
	art.SourceEmbargo = src.EmbargoWall
	if !known {
		logger.Warn("source_code_unknown", slog.String("src_code", art.SrcCode))
	}

	art.Year, art.YearInt = parseYear(doc, logger)

	vol, _ := TextOf(doc, "//artinfo/artvol")
	volInt, volSuffix, err := ParseVolume(vol)
	if err != nil {
		// element unparsable, try the actual-volume attribute
		actual, ok := AttrOf(doc, "//artinfo/artvol", "actual")
		if !ok {
			return nil, fmt.Errorf("article %s: %w", art.ID, err)
		}
		volInt, volSuffix, err = ParseVolume(actual)
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", art.ID, err)
		}
	}
	art.Vol = vol
	art.VolInt = volInt
	art.VolSuffix = volSuffix
	art.VolTitle, _ = TextOf(doc, "//artinfo/artvolinfo/voltitle")
	if art.VolTitle == "" {
		art.VolTitle, _ = AttrOf(doc, "//artinfo", "voltitle")
	}

	art.Issue, _ = TextOf(doc, "//artinfo/artiss")
	art.IssueTitle, _ = TextOf(doc, "//artinfo/artissinfo/isstitle")

	art.Type, _ = AttrOf(doc, "//artinfo", "arttype")
	art.DOI, _ = AttrOf(doc, "//artinfo", "doi")
	art.ISSN, _ = AttrOf(doc, "//artinfo", "ISSN")
	art.OrigRX, _ = AttrOf(doc, "//artinfo", "origrx")
	art.NewSecNm, _ = AttrOf(doc, "//artinfo", "newsecnm")

	art.Pgrg, _ = TextOf(doc, "//artinfo/artpgrg")
	art.PageRange, art.PageCount = ParsePageRange(art.Pgrg)

	art.Title = composeTitle(doc)

	art.Langs = TextListOf(doc, "/pepkbd3/@lang")
	if len(art.Langs) == 0 {
		art.Langs = []string{"EN"}
	}

	if kwds, ok := TextOf(doc, "//artinfo/artkwds"); ok && kwds != "" {
		for _, k := range strings.Split(kwds, ";") {
			if k = strings.TrimSpace(k); k != "" {
				art.Kwds = append(art.Kwds, k)
			}
		}
	}

	extractAuthors(doc, art, logger)

	art.CiteAs = fmt.Sprintf(
		`<p class="citeas"><span class="authors">%s</span> (<span class="year">%s</span>) <span class="title">%s</span>. <span class="sourcetitle">%s</span> <span class="pgrg">%s</span>:<span class="pgrg">%s</span></p>`,
		art.AuthorsBibStyle, art.Year, art.Title, art.SourceTitleFull, art.Vol, art.Pgrg)

	art.Qual, _ = AttrOf(doc, "//artinfo/artqual", "rx")
	art.IsSubDocument = art.Qual != "" && !strings.EqualFold(art.Qual, art.ID)

	harvestReferenceFacets(doc, art)

	art.BodyXML, _ = XMLOf(doc, "//body")
	art.TextXML, _ = XMLOf(doc, "/pepkbd3")
	art.Excerpt = extractExcerpt(doc)

	return art, nil
}

// MergeCitations overwrites the zero-valued citation counts with the
// precomputed entry for this document. A missing entry keeps all zeros.
func (a *Article) MergeCitations(table *cited.Table) {
	a.Cited = table.Get(a.ID)
}

// parseYear extracts the year string and its normalized integer,
// degrading to 0 rather than failing.
func parseYear(doc *xmlquery.Node, logger *slog.Logger) (string, int) {
	year, _ := TextOf(doc, "//artinfo/artyear")
	if m := yearPattern.FindStringSubmatch(year); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return year, n
		}
	}
	stripped := nonDigits.ReplaceAllString(year, "")
	if n, err := strconv.Atoi(stripped); err == nil {
		return year, n
	}
	if year != "" {
		logger.Warn("year_unparsable", slog.String("art_year", year))
	}
	return year, 0
}

// ParseVolume extracts the numeric volume and trailing letter suffix from
// a raw artvol value. "43A" yields (43, "A"); "12-13" yields (12, "")
// with the raw string preserved by the caller.
func ParseVolume(s string) (int, string, error) {
	m := volumePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, "", fmt.Errorf("volume %q has no leading digits", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", fmt.Errorf("volume %q: %w", s, err)
	}
	return n, m[2], nil
}

// ParsePageRange parses an artpgrg value into start/end pages with their
// letter prefixes and suffixes, plus a derived page count. Unparsable
// sides produce zero values, never an error.
func ParsePageRange(s string) (PageRange, int) {
	var pr PageRange
	s = strings.TrimSpace(s)
	if s == "" {
		return pr, 0
	}
	parts := strings.SplitN(s, "-", 2)
	if m := pagePattern.FindStringSubmatch(strings.TrimSpace(parts[0])); m != nil {
		pr.StartPrefix = m[1]
		pr.Start, _ = strconv.Atoi(m[2])
		pr.StartSuffix = m[3]
	}
	if len(parts) == 1 {
		pr.End = pr.Start
		pr.EndPrefix = pr.StartPrefix
		pr.EndSuffix = pr.StartSuffix
	} else if m := pagePattern.FindStringSubmatch(strings.TrimSpace(parts[1])); m != nil {
		pr.EndPrefix = m[1]
		pr.End, _ = strconv.Atoi(m[2])
		pr.EndSuffix = m[3]
	}
	count := 0
	if pr.Start > 0 && pr.End >= pr.Start {
		count = pr.End - pr.Start + 1
	}
	return pr, count
}

// composeTitle merges arttitle and artsub with a colon separator and
// normalizes the legacy single-hyphen placeholder title to empty.
func composeTitle(doc *xmlquery.Node) string {
	title, _ := TextOf(doc, "//artinfo/arttitle")
	if title == "-" {
		title = ""
	}
	sub, _ := TextOf(doc, "//artinfo/artsub")
	switch {
	case sub == "":
		return title
	case title == "":
		return sub
	default:
		return title + ": " + sub
	}
}

func extractAuthors(doc *xmlquery.Node, art *Article, logger *slog.Logger) {
	auts := xmlquery.Find(doc, "//artinfo/artauth/aut")
	art.AuthorCount = len(auts)

	var names, citedNames, ids, unlisted []string
	for _, aut := range auts {
		listed := isListed(aut)
		name := authorName(aut)
		if listed {
			if name != "" {
				names = append(names, name)
				citedNames = append(citedNames, authorCitedName(aut))
			}
			if id, ok := attrValue(aut, "authindexid"); ok && id != "" {
				ids = append(ids, id)
			}
		} else if name != "" {
			unlisted = append(unlisted, name)
		}
	}

	art.Authors = names
	art.AuthorIDs = ids
	if len(art.AuthorIDs) == 0 && len(names) > 0 {
		logger.Warn("author_index_ids_missing", slog.String("art_id", art.ID))
		art.AuthorIDs = names
	}

	art.AuthorsBibStyle = joinBibStyle(citedNames)
	art.AuthorMast = joinMast(names)
	art.AuthorsUnlisted = joinMast(unlisted)
	art.AllAuthors = art.AuthorMast
	if art.AuthorsUnlisted != "" {
		art.AllAuthors = art.AuthorMast + " (" + art.AuthorsUnlisted + ")"
	}
}

func isListed(aut *xmlquery.Node) bool {
	v, ok := attrValue(aut, "listed")
	return !ok || !strings.EqualFold(v, "false")
}

// authorName builds the display name from the name part elements.
func authorName(aut *xmlquery.Node) string {
	var parts []string
	for _, tag := range []string{"nfirst", "nmid", "nlast"} {
		if t, ok := TextOf(aut, tag); ok && t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		if id, ok := attrValue(aut, "authindexid"); ok {
			return id
		}
	}
	return strings.Join(parts, " ")
}

// authorCitedName builds the bibliographic form "Last, F. M.".
func authorCitedName(aut *xmlquery.Node) string {
	last, _ := TextOf(aut, "nlast")
	if last == "" {
		return authorName(aut)
	}
	var initials []string
	for _, tag := range []string{"nfirst", "nmid"} {
		if t, ok := TextOf(aut, tag); ok && t != "" {
			initials = append(initials, string([]rune(t)[0])+".")
		}
	}
	if len(initials) == 0 {
		return last
	}
	return last + ", " + strings.Join(initials, " ")
}

// joinBibStyle joins cited names for the citation string: the last two
// names are joined with an ampersand.
func joinBibStyle(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " &amp; " + names[len(names)-1]
	}
}

// joinMast joins display names for the author mast block.
func joinMast(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}

// harvestReferenceFacets collects the per-document reference count and
// the flattened faceting lists. Facet values are lower-cased and
// punctuation-stripped for consistent faceting; the full reference
// records are extracted separately by ParseReferences.
func harvestReferenceFacets(doc *xmlquery.Node, art *Article) {
	refs := xmlquery.Find(doc, "/pepkbd3//be")
	art.RefCount = len(refs)
	for _, ref := range refs {
		for _, a := range xmlquery.Find(ref, "a") {
			if f := facetNorm(a.InnerText()); f != "" {
				art.BibAuthorFacets = append(art.BibAuthorFacets, f)
			}
		}
		if t, ok := TextOf(ref, "t"); ok {
			if f := facetNorm(t); f != "" {
				art.BibTitleFacets = append(art.BibTitleFacets, f)
			}
		}
		if j, ok := TextOf(ref, "j"); ok {
			if f := facetNorm(j); f != "" {
				art.BibJournalFacets = append(art.BibJournalFacets, f)
			}
		}
		if rx, ok := attrValue(ref, "rx"); ok && rx != "" {
			art.BibRxLinks = append(art.BibRxLinks, rx)
		}
	}
}

func facetNorm(s string) string {
	s = facetStrip.ReplaceAllString(strings.ToLower(s), "")
	return strings.Join(strings.Fields(s), " ")
}

// extractExcerpt returns the abstract when tagged, the summaries block
// otherwise, and as a last resort the first paragraphs of the body.
func extractExcerpt(doc *xmlquery.Node) string {
	if abs, ok := XMLOf(doc, "//abs"); ok {
		return abs
	}
	if sum, ok := XMLOf(doc, "//summaries"); ok {
		return sum
	}
	paras := XMLListOf(doc, "//body//p")
	if len(paras) > 20 {
		paras = paras[:20]
	}
	return strings.Join(paras, "\n")
}
