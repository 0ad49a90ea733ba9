package store

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Field names shared between the writer and the change tracker.
const (
	FieldArtID            = "art_id"
	FieldLevel            = "level"
	FieldParentTag        = "parent_tag"
	FieldFileLastModified = "file_last_modified"
)

// docsIndexMapping builds the mapping for the full-text documents index.
// Identity and classification fields are keyword-analyzed so lookups and
// facets see exact values; everything else defaults to full-text.
func docsIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	keyword := bleve.NewKeywordFieldMapping()
	doc := bleve.NewDocumentMapping()
	for _, f := range []string{
		FieldArtID, FieldParentTag, FieldFileLastModified,
		"file_classification", "file_name", "timestamp",
		"art_pepsrccode", "art_pepsourcetype", "art_lang", "art_doi",
		"art_issn", "art_qual", "art_origrx", "lang", "group_id", "related_ids",
	} {
		doc.AddFieldMappingsAt(f, keyword)
	}

	im.DefaultMapping = doc
	return im
}

// authorsIndexMapping builds the mapping for the authors index.
func authorsIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	keyword := bleve.NewKeywordFieldMapping()
	doc := bleve.NewDocumentMapping()
	for _, f := range []string{
		FieldArtID, "art_author_id", "art_author_role",
		"file_classification", "file_name", "timestamp",
		"art_pepsourcetype",
	} {
		doc.AddFieldMappingsAt(f, keyword)
	}

	im.DefaultMapping = doc
	return im
}
