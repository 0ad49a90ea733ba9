package store

import (
	"time"

	"github.com/openpubarchive/opasload/internal/pepxml"
)

// articleDoc flattens one article into the field scheme the search
// tier queries against. Level 1 marks parent records; children carry
// level 2 and point back via art_id.
func articleDoc(art *pepxml.Article) map[string]any {
	return map[string]any{
		FieldLevel:              1,
		FieldArtID:              art.ID,
		FieldFileLastModified:   art.FileLastModified.UTC().Format(time.RFC3339),
		"file_classification":   string(art.FileClassification),
		"file_name":             art.FileName,
		"file_size":             art.FileSize,
		"timestamp":             art.ProcessedAt.Format(time.RFC3339),
		"title":                 art.Title,
		"art_pepsrccode":        art.SrcCode,
		"art_pepsourcetitleabbr": art.SourceTitleAbbr,
		"art_pepsourcetitlefull": art.SourceTitleFull,
		"art_pepsourcetype":     art.SourceType,
		"art_authors":           art.Authors,
		"art_author_ids":        art.AuthorIDs,
		"art_authors_mast":      art.AuthorMast,
		"art_authors_unlisted":  art.AuthorsUnlisted,
		"authors":               art.AllAuthors,
		"art_year":              art.Year,
		"art_year_int":          art.YearInt,
		"art_vol":               art.Vol,
		"art_vol_int":           art.VolInt,
		"art_vol_suffix":        art.VolSuffix,
		"art_vol_title":         art.VolTitle,
		"art_iss":               art.Issue,
		"art_iss_title":         art.IssueTitle,
		"art_pgrg":              art.Pgrg,
		"art_pgstart":           art.PageRange.Start,
		"art_pgend":             art.PageRange.End,
		"art_pgcount":           art.PageCount,
		"art_doi":               art.DOI,
		"art_issn":              art.ISSN,
		"art_type":              art.Type,
		"art_origrx":            art.OrigRX,
		"art_newsecnm":          art.NewSecNm,
		"art_lang":              art.Langs,
		"art_kwds":              art.Kwds,
		"art_qual":              art.Qual,
		"art_subdoc":            art.IsSubDocument,
		"art_citeas_xml":        art.CiteAs,
		"art_cited_5":           art.Cited.Count5,
		"art_cited_10":          art.Cited.Count10,
		"art_cited_20":          art.Cited.Count20,
		"art_cited_all":         art.Cited.CountAll,
		"reference_count":       art.RefCount,
		"bib_authors":           art.BibAuthorFacets,
		"bib_title":             art.BibTitleFacets,
		"bib_journaltitle":      art.BibJournalFacets,
		"bib_rx":                art.BibRxLinks,
		"art_body_xml":          art.BodyXML,
		"art_excerpt":           art.Excerpt,
		"text_xml":              art.TextXML,
		"text_offsite":          art.OffsiteText,
		"art_offsite":           art.Offsite,
	}
}

// childDoc is one indexable fragment of a parent article.
func childDoc(art *pepxml.Article, child pepxml.Child) map[string]any {
	doc := map[string]any{
		FieldLevel:     2,
		FieldArtID:     art.ID,
		FieldParentTag: string(child.Tag),
		"lang":         child.Lang,
		"para":         child.XML,
	}
	if child.GroupID != "" {
		doc["group_id"] = child.GroupID
	}
	if len(child.RelatedIDs) > 0 {
		doc["related_ids"] = child.RelatedIDs
	}
	return doc
}

// authorDoc denormalizes article metadata onto each author record so the
// authors index answers name queries without a join.
func authorDoc(art *pepxml.Article, rec pepxml.AuthorRecord) map[string]any {
	return map[string]any{
		FieldArtID:            rec.ArtID,
		"authors":             rec.AuthorID,
		"art_author_id":       rec.AuthorID,
		"art_author_listed":   rec.Listed,
		"art_author_pos_int":  rec.Pos,
		"art_author_role":     rec.Role,
		"art_author_bio":      rec.BioXML,
		"art_author_affil_xml": rec.AffXML,
		"art_year_int":        art.YearInt,
		"art_pepsrccode":      art.SrcCode,
		"art_pepsourcetitlefull": art.SourceTitleFull,
		"art_citeas_xml":      art.CiteAs,
		"file_classification": string(art.FileClassification),
		"file_name":           art.FileName,
		"timestamp":           art.ProcessedAt.Format(time.RFC3339),
		"art_author_xml":      rec.XML,
	}
}
