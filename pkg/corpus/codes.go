package corpus

import "strings"

// codeSlugs maps the canonical French code names the pipeline encounters
// to filesystem-safe directory names under the corpus root. Grounded on
// the original's code_name_mapping in original_text_retriever.py, which
// maps the same code names to pylegifrance's CodeNom constants; this
// pipeline reads from a local corpus snapshot instead of calling
// Légifrance directly (spec.md Non-goals exclude live API integration),
// so the table maps to directory slugs rather than API enum values.
var codeSlugs = map[string]string{
	"code rural et de la pêche maritime":            "code_rural_peche_maritime",
	"code de l'environnement":                       "code_environnement",
	"code civil":                                    "code_civil",
	"code pénal":                                     "code_penal",
	"code de la santé publique":                      "code_sante_publique",
	"code du travail":                                "code_travail",
	"code de commerce":                               "code_commerce",
	"code de la consommation":                        "code_consommation",
	"code de la construction et de l'habitation":     "code_construction_habitation",
	"code forestier":                                 "code_forestier",
	"code général des collectivités territoriales":    "code_collectivites_territoriales",
	"code général des impôts":                         "code_impots",
	"code de la propriété intellectuelle":             "code_propriete_intellectuelle",
	"code de la route":                               "code_route",
	"code de la sécurité sociale":                      "code_securite_sociale",
	"code des assurances":                            "code_assurances",
	"code monétaire et financier":                      "code_monetaire_financier",
	"code de procédure civile":                         "code_procedure_civile",
	"code de procédure pénale":                         "code_procedure_penale",
}

// slugForCode returns the directory slug for a code name, or "" if the
// code is not recognized.
func slugForCode(code string) string {
	return codeSlugs[strings.ToLower(strings.TrimSpace(code))]
}

// slugForArticle turns an article identifier into a filename-safe token,
// mirroring the original's stripping of spaces and dots before using the
// identifier as a search key.
func slugForArticle(article string) string {
	s := strings.ReplaceAll(article, " ", "")
	s = strings.ReplaceAll(s, ".", "")
	return s
}
