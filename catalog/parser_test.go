package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordPage = `<html><body>
<table class="bibDetail">
<tr><td class="bibInfoLabel">Author</td><td class="bibInfoData"><a href="/a">Bramanti, Carla</a></td></tr>
<tr><td class="bibInfoLabel">Title</td><td class="bibInfoData"><strong>Analisi matematica 1 /
  Marco Bramanti, Carlo D. Pagani, Sandro Salsa.</strong></td></tr>
<tr><td class="bibInfoLabel">Publisher</td><td class="bibInfoData">Zanichelli, 2008</td></tr>
</table></body></html>`

const briefPage = `<html><body>
<h2 class="briefcitTitle"><a href="/record=b1">Fisica 1 / Mazzoldi, Nigro, Voci</a></h2>
<h2 class="briefcitTitle"><a href="/record=b2">Fisica 2 / Altri</a></h2>
</body></html>`

func TestParseRecordDetailPage(t *testing.T) {
	title, authors, err := ParseRecord([]byte(recordPage))
	require.NoError(t, err)
	assert.Equal(t, "Analisi matematica 1", title)
	assert.Equal(t, "Marco Bramanti, Carlo D. Pagani, Sandro Salsa", authors)
}

func TestParseRecordBriefList(t *testing.T) {
	title, authors, err := ParseRecord([]byte(briefPage))
	require.NoError(t, err)
	assert.Equal(t, "Fisica 1", title)
	assert.Equal(t, "Mazzoldi, Nigro, Voci", authors)
}

func TestParseRecordFallsBackToAuthorRow(t *testing.T) {
	page := `<table>
<tr><td class="bibInfoLabel">Author</td><td class="bibInfoData">Oda, Eiichiro.</td></tr>
<tr><td class="bibInfoLabel">Title</td><td class="bibInfoData">One Piece 1</td></tr>
</table>`
	title, authors, err := ParseRecord([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, "One Piece 1", title)
	assert.Equal(t, "Oda, Eiichiro", authors)
}

func TestParseRecordWithoutRecord(t *testing.T) {
	_, _, err := ParseRecord([]byte(`<html><body><p>Catalogo di Ateneo</p></body></html>`))
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestSplitTitleAuthors(t *testing.T) {
	title, authors := SplitTitleAuthors("  Title only.  ")
	assert.Equal(t, "Title only", title)
	assert.Empty(t, authors)

	title, authors = SplitTitleAuthors("A / B / C")
	assert.Equal(t, "A", title)
	assert.Equal(t, "B / C", authors)
}
