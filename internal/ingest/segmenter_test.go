package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "abc def", want: "abc def"},
		{name: "newlines and tabs", in: "abc\n\tdef\r\n ghi", want: "abc def ghi"},
		{name: "leading and trailing", in: "  abc  ", want: "abc"},
		{name: "empty", in: "\n \t ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSegmentTwoPageScenario(t *testing.T) {
	pages := []string{
		"Livre II Dispositions générales",
		"Article L. 123-4 interdit le stationnement",
	}
	chunks := Segment(pages, 1000, 200, 1)
	require.Len(t, chunks, 2)

	require.Equal(t, 1, chunks[0].Page)
	require.Equal(t, "Livre: Livre II", chunks[0].Context)
	require.Equal(t, "Livre II Dispositions générales", chunks[0].Text)

	require.Equal(t, 2, chunks[1].Page)
	require.Equal(t, "Livre: Livre II | Article: L. 123-4", chunks[1].Context)
}

func TestSegmentContextIsMonotonic(t *testing.T) {
	pages := []string{
		"Livre Ier Titre II Dispositions préliminaires",
		"Chapitre III Du permis de conduire",
	}
	chunks := Segment(pages, 1000, 200, 1)
	require.Len(t, chunks, 2)
	require.Equal(t, "Livre: Livre Ier | Titre: Titre II", chunks[0].Context)
	// A new chapter supersedes nothing above it: book and title carry over.
	require.Equal(t, "Livre: Livre Ier | Titre: Titre II | Chapitre: Chapitre III", chunks[1].Context)
}

func TestSegmentContextBeforeAnyMarker(t *testing.T) {
	chunks := Segment([]string{"du texte sans aucun marqueur"}, 1000, 200, 1)
	require.Len(t, chunks, 1)
	require.Equal(t, "", chunks[0].Context)
}

func TestSegmentEmptyPageYieldsNoChunks(t *testing.T) {
	chunks := Segment([]string{"", "  \n ", "Article R. 417-10 du code"}, 1000, 200, 1)
	require.Len(t, chunks, 1)
	// Empty pages still consume a page number.
	require.Equal(t, 3, chunks[0].Page)
}

func TestSegmentAdvance(t *testing.T) {
	// 2000 runes, chunkSize 1000, overlap 200: starts at 0, 800, 1600.
	text := strings.Repeat("a", 2000)
	chunks := Segment([]string{text}, 1000, 200, 1)
	require.Len(t, chunks, 3)
	require.Len(t, []rune(chunks[0].Text), 1000)
	require.Len(t, []rune(chunks[1].Text), 1000)
	require.Len(t, []rune(chunks[2].Text), 400)
}

func TestSegmentTerminatesWhenOverlapSwallowsChunk(t *testing.T) {
	// overlap >= chunkSize would stall the window; the advance falls back
	// to a full chunkSize and the chunks become disjoint.
	text := strings.Repeat("x", 35)
	for _, overlap := range []int{10, 25} {
		chunks := Segment([]string{text}, 10, overlap, 1)
		require.Len(t, chunks, 4)
		var rebuilt strings.Builder
		for _, c := range chunks {
			rebuilt.WriteString(c.Text)
		}
		require.Equal(t, text, rebuilt.String())
	}
}

func TestSegmentCoverageReconstruction(t *testing.T) {
	pages := []string{
		"Le  conducteur doit\nrespecter les limitations de vitesse en toutes circonstances.",
		strings.Repeat("plusieurs mots répétés ", 40),
	}
	const chunkSize, overlap = 25, 7
	step := chunkSize - overlap

	for pageIdx, page := range pages {
		want := Normalize(page)
		chunks := Segment([]string{page}, chunkSize, overlap, 1)
		_ = pageIdx

		// Stitch chunks back together, dropping whatever each chunk
		// re-covers of the text already rebuilt.
		var rebuilt strings.Builder
		covered := 0
		for i, c := range chunks {
			start := i * step
			runes := []rune(c.Text)
			if start+len(runes) <= covered {
				continue
			}
			rebuilt.WriteString(string(runes[covered-start:]))
			covered = start + len(runes)
		}
		require.Equal(t, want, rebuilt.String())
	}
}

func TestChunkIDDeterministic(t *testing.T) {
	a := Segment([]string{"Article L. 121-1 le conducteur est responsable"}, 1000, 200, 1)
	b := Segment([]string{"Article L. 121-1 le conducteur est responsable"}, 1000, 200, 1)
	require.Equal(t, a[0].ID, b[0].ID)

	// Same text on a different page fingerprints differently.
	c := Segment([]string{"Article L. 121-1 le conducteur est responsable"}, 1000, 200, 2)
	require.NotEqual(t, a[0].ID, c[0].ID)
}

func TestMarkerDetectionIsCaseInsensitive(t *testing.T) {
	chunks := Segment([]string{"LIVRE III titre ier du code"}, 1000, 200, 1)
	require.Len(t, chunks, 1)
	require.Equal(t, "Livre: LIVRE III | Titre: titre ier", chunks[0].Context)
}

func TestSegmentRejectsNonPositiveChunkSize(t *testing.T) {
	require.Nil(t, Segment([]string{"texte"}, 0, 0, 1))
}
