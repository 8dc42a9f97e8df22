package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tbillet/routier/internal/model"
)

// A table-of-contents line: a title made of letters, digits, spaces and a
// small punctuation set, a run of at least five leader characters, then the
// page number. Anything else on the page is skipped silently.
var planLine = regexp.MustCompile(`^([\p{L}\d][\p{L}\d\s'’(),:.-]*?)\s*[.·_-]{5,}\s*(\d+)$`)

// ExtractPlan parses the table-of-contents pages into ordered plan entries.
// Pages are scanned in input order, lines in page order, so the output
// follows the document's own ordering.
func ExtractPlan(pages []string) []model.PlanEntry {
	var entries []model.PlanEntry
	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			line = Normalize(line)
			m := planLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			pageNum, err := strconv.Atoi(m[2])
			if err != nil {
				continue
			}
			entries = append(entries, model.PlanEntry{
				Title: strings.TrimSpace(m[1]),
				Page:  pageNum,
			})
		}
	}
	return entries
}
