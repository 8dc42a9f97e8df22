package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/tbillet/routier/internal/model"
)

// MarkerKind enumerates the structural headers of a French legal code. The
// set is closed: context accumulation only tracks these four kinds.
type MarkerKind int

const (
	MarkerLivre MarkerKind = iota
	MarkerTitre
	MarkerChapitre
	MarkerArticle
	numMarkerKinds
)

func (k MarkerKind) Label() string {
	switch k {
	case MarkerLivre:
		return "Livre"
	case MarkerTitre:
		return "Titre"
	case MarkerChapitre:
		return "Chapitre"
	case MarkerArticle:
		return "Article"
	}
	return ""
}

// Header patterns for the Code de la route. Livre/Titre/Chapitre keep the
// keyword in the captured value ("Livre II"); Article captures only the
// reference ("L. 123-4"), which is how the code itself cites articles.
var markerPatterns = [numMarkerKinds]*regexp.Regexp{
	MarkerLivre:    regexp.MustCompile(`(?i)\b(livre\s+(?:[IVXLC]+(?:er)?|\d+er?))\b`),
	MarkerTitre:    regexp.MustCompile(`(?i)\b(titre\s+(?:[IVXLC]+(?:er)?|\d+er?))\b`),
	MarkerChapitre: regexp.MustCompile(`(?i)\b(chapitre\s+(?:[IVXLC]+(?:er)?|\d+er?))\b`),
	MarkerArticle:  regexp.MustCompile(`(?i)\barticle\s+((?:[LRD]\.?\s*)?\d+(?:-\d+)*)`),
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize collapses every whitespace run (newlines included) to a single
// space and trims the ends. All chunk offsets are relative to this form.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
}

// HierarchicalContext carries the most recently seen value of each marker
// kind while scanning pages in order. It is a value type: Apply returns an
// updated copy, so an ingestion pass is a plain left-fold over pages. A kind,
// once set, is never cleared; a new match of the same kind supersedes it.
type HierarchicalContext struct {
	values [numMarkerKinds]string
}

// Apply scans normalized page text for header markers and returns the
// context with every matched kind overwritten. Kinds are matched
// independently: one page can update zero, one, or all four.
func (h HierarchicalContext) Apply(normText string) HierarchicalContext {
	for kind, pattern := range markerPatterns {
		if m := pattern.FindStringSubmatch(normText); m != nil {
			h.values[kind] = strings.TrimSpace(m[1])
		}
	}
	return h
}

// Render formats the context as "Livre: ... | Titre: ... | Chapitre: ... |
// Article: ..." in fixed kind order, omitting kinds not yet seen. An empty
// context renders as "".
func (h HierarchicalContext) Render() string {
	parts := make([]string, 0, numMarkerKinds)
	for kind := MarkerKind(0); kind < numMarkerKinds; kind++ {
		if v := h.values[kind]; v != "" {
			parts = append(parts, kind.Label()+": "+v)
		}
	}
	return strings.Join(parts, " | ")
}

// idPrefixRunes is the fingerprint prefix length. Two chunks sharing a page
// number and their first 50 runes collide; nothing detects that.
const idPrefixRunes = 50

func chunkID(page int, text string) string {
	prefix := text
	if runes := []rune(text); len(runes) > idPrefixRunes {
		prefix = string(runes[:idPrefixRunes])
	}
	sum := sha1.Sum([]byte(strconv.Itoa(page) + prefix))
	return hex.EncodeToString(sum[:])
}

// Segment splits pages into overlapping chunks, annotating each with the
// hierarchical context accumulated up to and including its page. Page
// numbers are assigned starting at startPage. chunkSize must be positive;
// when overlap leaves no forward progress the window advances by a full
// chunkSize so the scan always terminates.
func Segment(pages []string, chunkSize, overlap, startPage int) []model.Chunk {
	if chunkSize <= 0 {
		return nil
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	var chunks []model.Chunk
	var ctx HierarchicalContext
	for i, page := range pages {
		pageNum := startPage + i
		text := Normalize(page)
		ctx = ctx.Apply(text)
		rendered := ctx.Render()

		runes := []rune(text)
		for start := 0; start < len(runes); start += step {
			end := start + chunkSize
			if end > len(runes) {
				end = len(runes)
			}
			body := string(runes[start:end])
			chunks = append(chunks, model.Chunk{
				ID:      chunkID(pageNum, body),
				Page:    pageNum,
				Context: rendered,
				Text:    body,
			})
		}
	}
	return chunks
}
