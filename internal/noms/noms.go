// Package noms maps NOM reference codes to the label artwork the chat UI
// renders next to bot replies. The mapping is static; codes the backend
// mentions but the map does not know are skipped silently.
package noms

import "github.com/naurat/naurbotmx/internal/domain"

var assets = map[domain.Language]map[string]string{
	domain.LanguageEnglish: {
		"NOM-051-SCFI-2010": "/noms/english/Etiqueta11.png",
		"NOM-020-SCFI-1997": "/noms/english/Etiqueta14.png",
		"NOM-141-SCFI-2012": "/noms/english/Etiqueta12.png",
		"NOM-004-SCFI-2006": "/noms/english/Etiqueta13.png",
		"NOM-050-SCFI-2004": "/noms/english/Etiqueta10.png",
		"NOM-116-SCFI-1997": "/noms/english/Etiqueta16.png",
		"NOM-186-SCFI-2013": "/noms/english/Etiqueta17.png",
		"NOM-003-SCFI-2014": "/noms/english/Etiqueta15.png",
	},
	domain.LanguageSpanish: {
		"NOM-051-SCFI-2010": "/noms/spanish/Etiqueta02.png",
		"NOM-020-SCFI-1997": "/noms/spanish/Etiqueta05.png",
		"NOM-141-SCFI-2012": "/noms/spanish/Etiqueta03.png",
		"NOM-004-SCFI-2006": "/noms/spanish/Etiqueta04.png",
		"NOM-050-SCFI-2004": "/noms/spanish/Etiqueta01.png",
		"NOM-116-SCFI-1997": "/noms/spanish/Etiqueta07.png",
		"NOM-186-SCFI-2013": "/noms/spanish/Etiqueta08.png",
		"NOM-003-SCFI-2014": "/noms/spanish/Etiqueta06.png",
	},
}

// Lookup returns the asset path for a reference code in the given language.
// Unknown codes and languages return ok=false; callers render nothing.
func Lookup(code string, lang domain.Language) (string, bool) {
	byCode, ok := assets[lang]
	if !ok {
		return "", false
	}
	path, ok := byCode[code]
	return path, ok
}
