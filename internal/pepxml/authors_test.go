package pepxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAuthorRecords(t *testing.T) {
	doc, art := sampleArticle(t)
	recs := BuildAuthorRecords(doc, art)
	require.Len(t, recs, 3)

	first := recs[0]
	assert.Equal(t, "IJP.082.0721A.SmithJohnA", first.ID)
	assert.Equal(t, "Smith, John A.", first.AuthorID)
	assert.True(t, first.Listed)
	assert.Equal(t, 1, first.Pos)
	assert.Equal(t, "author", first.Role)
	assert.Contains(t, first.BioXML, "Training analyst")
	assert.Contains(t, first.AffXML, "Institute of Psychoanalysis")

	second := recs[1]
	assert.Equal(t, "Doe, Jane", second.AuthorID)
	assert.Equal(t, 2, second.Pos)
	assert.Empty(t, second.AffXML)

	assert.False(t, recs[2].Listed)
}

func TestBuildAuthorRecordsIDFallbacks(t *testing.T) {
	doc, err := Parse(`<pepkbd3><artinfo id="X.001.0001A" j="X"><artauth>
		<aut><nfirst>Anna</nfirst><nlast>Freud</nlast></aut>
		<aut></aut>
	</artauth></artinfo></pepkbd3>`)
	require.NoError(t, err)

	art := &Article{ID: "X.001.0001A"}
	recs := BuildAuthorRecords(doc, art)
	require.Len(t, recs, 2)

	assert.Equal(t, "Freud, A.", recs[0].AuthorID, "missing index id falls back to the cited name")
	assert.Equal(t, "GenID00002", recs[1].AuthorID, "empty author gets a generated id")
	assert.Equal(t, "X.001.0001A.FreudA", recs[0].ID)
}
