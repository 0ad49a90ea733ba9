package pepxml

import (
	"fmt"
	"net/url"
)

// offsiteSubstitute is what gets stored in the returnable text fields of
// an offsite document: a pointer to the external resolver, never the
// licensed content itself.
const offsiteSubstitute = `<html>
<p>This article or book is available online on a non-PEP website.
Click <a href="//www.doi.org/%s" target="_blank">here</a> to open that website
in another window or tab.</p>
</html>`

// offsiteRefNote replaces each bibliography entry of an offsite document.
const offsiteRefNote = `<p>This reference is in an article or book whose text is not available here. Consult the external source for the full citation.</p>`

// Redact applies the content classification policy to an article and its
// children and references, in place. For offsite documents it is total:
// no returnable field retains original text anywhere in the record, its
// fragments, or its references. The true content moves to the
// non-returnable offsite fields so it stays searchable. All other
// classifications pass through untouched.
func Redact(art *Article, children []Child, refs []Reference) []Child {
	if art.FileClassification != ClassOffsite {
		return children
	}

	substitute := fmt.Sprintf(offsiteSubstitute, url.PathEscape(art.DOI))

	art.Offsite = true
	art.OffsiteText = art.TextXML
	art.TextXML = substitute
	art.BodyXML = ""
	art.Excerpt = substitute

	// Facet lists carry harvested reference text; only the rx links
	// (document ids, no content) survive.
	art.BibAuthorFacets = nil
	art.BibTitleFacets = nil
	art.BibJournalFacets = nil

	for i := range refs {
		refs[i].Offsite = true
		refs[i].OffsiteText = refs[i].Text
		refs[i].Text = offsiteRefNote
	}

	// the fragment set collapses to a single substitute body fragment
	lang := "EN"
	if len(art.Langs) > 0 {
		lang = art.Langs[0]
	}
	return []Child{{
		ID:   fmt.Sprintf("%s.%d", art.ID, 1),
		Seq:  1,
		Tag:  TagBody,
		Lang: lang,
		XML:  substitute,
	}}
}
