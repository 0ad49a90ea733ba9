package pepxml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpubarchive/opasload/internal/catalog"
	"github.com/openpubarchive/opasload/internal/cited"
)

func TestNewArticle(t *testing.T) {
	_, art := sampleArticle(t)

	assert.Equal(t, "IJP.082.0721A", art.ID)
	assert.Equal(t, "IJP.082.0721A", art.TaggedID)
	assert.Equal(t, "IJP", art.SrcCode)
	assert.False(t, art.SourceKnown)

	assert.Equal(t, "2001", art.Year)
	assert.Equal(t, 2001, art.YearInt)
	assert.Equal(t, "82", art.Vol)
	assert.Equal(t, 82, art.VolInt)
	assert.Equal(t, "", art.VolSuffix)
	assert.Equal(t, "4", art.Issue)

	assert.Equal(t, "721-738", art.Pgrg)
	assert.Equal(t, 721, art.PageRange.Start)
	assert.Equal(t, 738, art.PageRange.End)
	assert.Equal(t, 18, art.PageCount)

	assert.Equal(t, "The Interpretation Revisited: A Century Later", art.Title)
	assert.Equal(t, "10.1516/demo-4821", art.DOI)
	assert.Equal(t, "0020-7578", art.ISSN)
	assert.Equal(t, "ART", art.Type)
	assert.Equal(t, []string{"en"}, art.Langs)
	assert.Equal(t, []string{"dreams", "interpretation"}, art.Kwds)
	assert.False(t, art.IsSubDocument)

	assert.NotEmpty(t, art.BodyXML)
	assert.NotEmpty(t, art.TextXML)
	assert.Contains(t, art.Excerpt, "An abstract paragraph.")
}

func TestNewArticleAuthors(t *testing.T) {
	_, art := sampleArticle(t)

	assert.Equal(t, 3, art.AuthorCount)
	assert.Equal(t, []string{"John A. Smith", "Jane Doe"}, art.Authors)
	assert.Equal(t, []string{"Smith, John A.", "Doe, Jane"}, art.AuthorIDs)
	assert.Equal(t, "John A. Smith and Jane Doe", art.AuthorMast)
	assert.Equal(t, "Ghost Writer", art.AuthorsUnlisted)
	assert.Equal(t, "John A. Smith and Jane Doe (Ghost Writer)", art.AllAuthors)
	assert.Equal(t, "Smith, J. A. &amp; Doe, J.", art.AuthorsBibStyle)
}

func TestNewArticleCiteAs(t *testing.T) {
	_, art := sampleArticle(t)

	assert.Contains(t, art.CiteAs, `<span class="authors">Smith, J. A. &amp; Doe, J.</span>`)
	assert.Contains(t, art.CiteAs, `<span class="year">2001</span>`)
	assert.True(t, strings.HasPrefix(art.CiteAs, `<p class="citeas">`))
}

func TestNewArticleReferenceFacets(t *testing.T) {
	_, art := sampleArticle(t)

	assert.Equal(t, 3, art.RefCount)
	assert.Contains(t, art.BibAuthorFacets, "jones e")
	assert.Contains(t, art.BibTitleFacets, "on dreams")
	assert.Contains(t, art.BibJournalFacets, "int j psychoanal")
	assert.Equal(t, []string{"IJP.063.0001A"}, art.BibRxLinks)
}

func TestNewArticleVolumeFallbacks(t *testing.T) {
	doc, err := Parse(`<pepkbd3><artinfo id="X.001.0001A" j="X">
		<artyear>1999</artyear>
		<artvol actual="7">VII</artvol>
		<artpgrg>1-2</artpgrg>
	</artinfo><body><p>x</p></body></pepkbd3>`)
	require.NoError(t, err)

	art, err := NewArticle(doc, "X.001.0001A", catalog.Empty(), discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 7, art.VolInt)
	assert.Equal(t, "VII", art.Vol)
}

func TestNewArticleUnparsableVolume(t *testing.T) {
	doc, err := Parse(`<pepkbd3><artinfo id="X.001.0001A" j="X">
		<artvol>VII</artvol>
	</artinfo></pepkbd3>`)
	require.NoError(t, err)

	_, err = NewArticle(doc, "X.001.0001A", catalog.Empty(), discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X.001.0001A")
}

func TestParseVolume(t *testing.T) {
	tests := []struct {
		in      string
		n       int
		suffix  string
		wantErr bool
	}{
		{"82", 82, "", false},
		{"43A", 43, "A", false},
		{"12-13", 12, "", false},
		{" 5 ", 5, "", false},
		{"VII", 0, "", true},
		{"", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, suffix, err := ParseVolume(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.n, n)
			assert.Equal(t, tt.suffix, suffix)
		})
	}
}

func TestParsePageRange(t *testing.T) {
	tests := []struct {
		in    string
		start int
		end   int
		count int
	}{
		{"721-738", 721, 738, 18},
		{"5", 5, 5, 1},
		{"R5-R23", 5, 23, 19},
		{"", 0, 0, 0},
		{"ix", 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			pr, count := ParsePageRange(tt.in)
			assert.Equal(t, tt.start, pr.Start)
			assert.Equal(t, tt.end, pr.End)
			assert.Equal(t, tt.count, count)
		})
	}
}

func TestParsePageRangePrefixes(t *testing.T) {
	pr, _ := ParsePageRange("R5-R23")
	assert.Equal(t, "R", pr.StartPrefix)
	assert.Equal(t, "R", pr.EndPrefix)
}

func TestMergeCitations(t *testing.T) {
	table := cited.FromMap(map[string]cited.Counts{
		"IJP.082.0721A": {Count5: 2, Count10: 5, Count20: 9, CountAll: 12},
	})

	_, art := sampleArticle(t)
	art.MergeCitations(table)
	assert.Equal(t, 2, art.Cited.Count5)
	assert.Equal(t, 5, art.Cited.Count10)
	assert.Equal(t, 9, art.Cited.Count20)
	assert.Equal(t, 12, art.Cited.CountAll)

	_, other := sampleArticle(t)
	other.ID = "IJP.083.0001A"
	other.MergeCitations(table)
	assert.Zero(t, other.Cited, "absent id merges to all zeros")
}
