package pepxml

import (
	"io"
	"log/slog"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/require"

	"github.com/openpubarchive/opasload/internal/catalog"
)

// sampleXML is a small but structurally complete export build: mixed
// listed/unlisted authors, nested containers, and all three bibliography
// year-tagging styles.
const sampleXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<pepkbd3 lang="en">
<artinfo id="IJP.082.0721A" j="IJP" arttype="ART" doi="10.1516/demo-4821" ISSN="0020-7578">
<artyear>2001</artyear>
<artvol>82</artvol>
<artiss>4</artiss>
<artpgrg>721-738</artpgrg>
<arttitle>The Interpretation Revisited</arttitle>
<artsub>A Century Later</artsub>
<artkwds>dreams; interpretation; </artkwds>
<artauth>
<aut authindexid="Smith, John A." listed="true" role="author" affid="aff1"><nfirst>John</nfirst><nmid>A.</nmid><nlast>Smith</nlast><nbio><p>Training analyst.</p></nbio></aut>
<aut authindexid="Doe, Jane" listed="true"><nfirst>Jane</nfirst><nlast>Doe</nlast></aut>
<aut listed="false"><nfirst>Ghost</nfirst><nlast>Writer</nlast></aut>
<autaff affid="aff1"><instit>Institute of Psychoanalysis</instit></autaff>
</artauth>
</artinfo>
<abs><p>An abstract paragraph.</p></abs>
<body>
<p>First body paragraph.</p>
<p>Second body paragraph.</p>
<quote><p>A quoted paragraph.</p></quote>
<h1>Section Heading</h1>
<dream lang="de"><p>Ein Traum.</p></dream>
</body>
<bib>
<be id="B001" rx="IJP.063.0001A"><a><l>Jones</l>, E.</a> (<y>1987</y>). <t>On dreams.</t> <j>Int. J. Psychoanal.</j> <v>63</v>:<pp>1-15</pp></be>
<be id="B002"><a><l>Freud</l>, S.</a> <t>The Ego and the Id.</t> <bst>Standard Edition</bst> <bp>Hogarth Press</bp>, <bpd>1923</bpd></be>
<be id="B003"><a><l>Jones</l>, E.</a> Free associations. (Jones, 1987)</be>
</bib>
</pepkbd3>`

func parseSample(t *testing.T) *xmlquery.Node {
	t.Helper()
	doc, err := Parse(sampleXML)
	require.NoError(t, err)
	return doc
}

func sampleArticle(t *testing.T) (*xmlquery.Node, *Article) {
	t.Helper()
	doc := parseSample(t)
	art, err := NewArticle(doc, "IJP.082.0721A", catalog.Empty(), discardLogger())
	require.NoError(t, err)
	return doc, art
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
