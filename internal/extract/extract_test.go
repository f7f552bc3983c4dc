package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-chart-scraper/internal/scraper"
)

const selector = ".ipc-title__text"

func TestExtractPreservesDocumentOrder(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 25, 250} {
		n := n
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			t.Parallel()
			var b strings.Builder
			b.WriteString("<html><body><ul>")
			want := make([]string, 0, n)
			for i := 0; i < n; i++ {
				title := fmt.Sprintf("%d. Movie %d", i+1, i)
				want = append(want, title)
				fmt.Fprintf(&b, `<li><h3 class="ipc-title__text">%s</h3><span class="other">x</span></li>`, title)
			}
			b.WriteString("</ul></body></html>")

			records, err := New().Extract([]byte(b.String()), selector)
			require.NoError(t, err)
			require.Len(t, records, n)
			require.Equal(t, want, records.Titles())
		})
	}
}

func TestExtractZeroMatchesIsNotError(t *testing.T) {
	t.Parallel()

	records, err := New().Extract([]byte(`<html><body><p>redesigned page</p></body></html>`), selector)
	require.NoError(t, err)
	require.NotNil(t, records)
	require.Empty(t, records)
}

func TestExtractNestedAndUnicodeText(t *testing.T) {
	t.Parallel()

	html := `<div><h3 class="ipc-title__text">Cidade de <b>Deus</b></h3>` +
		`<h1 class="ipc-title__text">IMDb Charts</h1></div>`
	records, err := New().Extract([]byte(html), selector)
	require.NoError(t, err)
	require.Equal(t, scraper.RecordSet{{Title: "Cidade de Deus"}, {Title: "IMDb Charts"}}, records)
}

func TestExtractRejectsEmptySelector(t *testing.T) {
	t.Parallel()

	_, err := New().Extract([]byte("<p></p>"), "  ")
	require.ErrorIs(t, err, ErrEmptySelector)
}
