package pepxml

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
)

// AuthorRecord is the flattened per-author-per-document record written to
// the authors index. An author of multiple articles appears once per
// article, which is what makes per-author faceting possible.
type AuthorRecord struct {
	// ID is {art_id}.{author id reduced to alphanumerics}.
	ID       string
	ArtID    string
	AuthorID string
	Listed   bool
	Pos      int // position among listed authors, 1-based
	Role     string
	BioXML   string
	AffXML   string
	XML      string
}

// BuildAuthorRecords extracts one record per author element, listed or
// not. Authors without an index id get their display name as id.
func BuildAuthorRecords(doc *xmlquery.Node, art *Article) []AuthorRecord {
	var recs []AuthorRecord
	pos := 0
	for i, aut := range xmlquery.Find(doc, "//artinfo/artauth/aut") {
		listed := isListed(aut)
		if listed {
			pos++
		}
		id, ok := attrValue(aut, "authindexid")
		if !ok || id == "" {
			id = authorCitedName(aut)
		}
		if id == "" {
			id = fmt.Sprintf("GenID%05d", i+1)
		}

		rec := AuthorRecord{
			ID:       art.ID + "." + alnumOnly(id),
			ArtID:    art.ID,
			AuthorID: id,
			Listed:   listed,
			Pos:      pos,
			XML:      aut.OutputXML(true),
		}
		rec.Role, _ = attrValue(aut, "role")
		rec.BioXML, _ = XMLOf(aut, "nbio")
		if affID, ok := attrValue(aut, "affid"); ok && affID != "" {
			rec.AffXML, _ = XMLOf(doc, fmt.Sprintf(`//artinfo/artauth/autaff[@affid="%s"]`, affID))
		}
		recs = append(recs, rec)
	}
	return recs
}

func alnumOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
