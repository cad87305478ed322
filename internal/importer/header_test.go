package importer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{raw: "Département", want: "departement", wantOK: true},
		{raw: "Localité", want: "localite", wantOK: true},
		{raw: "Latitude du candidat", want: "latitude_du_candidat", wantOK: true},
		{raw: "Avis de l'ARCEP Bénin", want: "avis_de_larcep_benin", wantOK: true},
		{raw: "N° dossier", want: "n_dossier", wantOK: true},
		{raw: "Propriétaire site", want: "proprietaire_site", wantOK: true},
		{raw: "ID du site", want: "id_du_site", wantOK: true},
		{raw: "Date mise en service", want: "date_mise_en_service", wantOK: true},
		{raw: "Hauteur (m)", want: "hauteur_m", wantOK: true},
		{raw: "???", want: "", wantOK: false},
		{raw: "", want: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := NormalizeHeader(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("NormalizeHeader(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNormalizeHeader_Idempotent(t *testing.T) {
	inputs := []string{
		"Département", "Communes", "Type Pylône", "Avis de l'ARCEP Bénin",
		"  Observations  ", "ÉMPLACEMENT", "n°_dossier", "Ref. courrier", "Çà et là",
	}

	for _, in := range inputs {
		once, _ := NormalizeHeader(in)
		twice, _ := NormalizeHeader(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeHeaders(t *testing.T) {
	columns, issues := NormalizeHeaders([]string{"Nom", "Commune", "***", "ID du site", "Opérateur"})

	assert.Equal(t, []string{ColSiteName, ColCommune, "", "", ColOperator}, columns)
	if assert.Len(t, issues, 2) {
		assert.Equal(t, 2, issues[0].Position)
		assert.Equal(t, "empty after normalization", issues[0].Reason)
		assert.Equal(t, 3, issues[1].Position)
		assert.Contains(t, issues[1].Reason, "Nom")
	}
}

func TestCanonicalColumn(t *testing.T) {
	assert.Equal(t, ColLatitude, CanonicalColumn("latitude"))
	assert.Equal(t, ColOwner, CanonicalColumn("proprietaire"))
	assert.Equal(t, ColPylonType, CanonicalColumn(ColPylonType))
	assert.Equal(t, "unknown_column", CanonicalColumn("unknown_column"))
}
