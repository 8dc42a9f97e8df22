package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tbillet/routier/internal/model"
)

func TestExtractPlan(t *testing.T) {
	tests := []struct {
		name  string
		pages []string
		want  []model.PlanEntry
	}{
		{
			name: "dot leaders",
			pages: []string{
				"Livre Ier Dispositions générales .......... 5\n" +
					"Titre II Le conducteur ........ 12",
			},
			want: []model.PlanEntry{
				{Title: "Livre Ier Dispositions générales", Page: 5},
				{Title: "Titre II Le conducteur", Page: 12},
			},
		},
		{
			name:  "underscore and middle dot leaders",
			pages: []string{"Chapitre III _______ 8\nSignalisation ····· 31"},
			want: []model.PlanEntry{
				{Title: "Chapitre III", Page: 8},
				{Title: "Signalisation", Page: 31},
			},
		},
		{
			name:  "short leader run is not a plan line",
			pages: []string{"Titre II ... 12"},
			want:  nil,
		},
		{
			name:  "prose lines are skipped",
			pages: []string{"Table des matières\n\nLe présent code régit la circulation routière."},
			want:  nil,
		},
		{
			name:  "order follows pages then lines",
			pages: []string{"B ..... 2\nA ..... 9", "C ..... 1"},
			want: []model.PlanEntry{
				{Title: "B", Page: 2},
				{Title: "A", Page: 9},
				{Title: "C", Page: 1},
			},
		},
		{
			name:  "whitespace around title and page is trimmed",
			pages: []string{"  Titre  IV   La route  .......   44  "},
			want:  []model.PlanEntry{{Title: "Titre IV La route", Page: 44}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPlan(tt.pages)
			require.Equal(t, tt.want, got)
		})
	}
}
