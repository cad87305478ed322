// Package importer turns raw spreadsheet rows into validated site input:
// header normalization, cell cleaning, coercion and per-row checks.
package importer

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical column names, as produced by NormalizeHeader
const (
	ColDepartment        = "departement"
	ColCommune           = "communes"
	ColLocality          = "localite"
	ColOperator          = "operateur"
	ColLatitude          = "latitude_du_candidat"
	ColLongitude         = "longitude_du_candidat"
	ColARCEPOpinion      = "avis_de_larcep_benin"
	ColObservation       = "observations"
	ColLocationType      = "emplacement"
	ColPylonType         = "type_pylone"
	ColAntennaHeight     = "hauteur_antenne"
	ColCamouflage        = "camouflage"
	ColDescription       = "description"
	ColOwner             = "proprietaire_site"
	ColDossierNumber     = "n_dossier"
	ColLetterReference   = "ref_courrier"
	ColAuthorizationDate = "date_autorisation"
	ColCommissioningDate = "date_mise_en_service"
	ColSiteName          = "id_du_site"
	ColTechnologies      = "technologies"
)

var columnAliases = map[string]string{
	"commune":      ColCommune,
	"latitude":     ColLatitude,
	"longitude":    ColLongitude,
	"avis_arcep":   ColARCEPOpinion,
	"proprietaire": ColOwner,
	"nom":          ColSiteName,
	"technologie":  ColTechnologies,
}

var invalidHeaderChars = regexp.MustCompile(`[^a-z0-9_]`)

// NormalizeHeader lower-cases a column title, strips accents, turns spaces
// into underscores and drops everything outside [a-z0-9_]. ok is false when
// nothing is left. Applying it to its own output is a no-op.
func NormalizeHeader(raw string) (string, bool) {
	s := strings.ToLower(raw)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	if stripped, _, err := transform.String(stripMarks, s); err == nil {
		s = stripped
	}

	s = strings.ReplaceAll(s, " ", "_")
	s = invalidHeaderChars.ReplaceAllString(s, "")

	return s, s != ""
}

// CanonicalColumn maps an accepted alias to its canonical column name
func CanonicalColumn(normalized string) string {
	if canonical, ok := columnAliases[normalized]; ok {
		return canonical
	}
	return normalized
}

// HeaderIssue describes a column that cannot be used
type HeaderIssue struct {
	Position int
	Raw      string
	Reason   string
}

// NormalizeHeaders maps raw headers to canonical column names, keeping file
// order. Unusable columns get "" in the result; when two headers land on the
// same name the first one wins.
func NormalizeHeaders(raw []string) ([]string, []HeaderIssue) {
	columns := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	var issues []HeaderIssue

	for i, header := range raw {
		normalized, ok := NormalizeHeader(header)
		if !ok {
			issues = append(issues, HeaderIssue{Position: i, Raw: header, Reason: "empty after normalization"})
			continue
		}

		column := CanonicalColumn(normalized)
		if first, dup := seen[column]; dup {
			issues = append(issues, HeaderIssue{
				Position: i,
				Raw:      header,
				Reason:   "duplicate of column " + raw[first],
			})
			continue
		}

		seen[column] = i
		columns[i] = column
	}

	return columns, issues
}
