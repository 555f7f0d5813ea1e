package chain

import "github.com/vk/chainrun/internal/value"

// Canonical step keys.
const (
	keyID           = "id"
	keyBranch       = "branch"
	keyLoop         = "loop"
	keyIns          = "ins"
	keyOut          = "out"
	keyCommand      = "command"
	keyMode         = "mode"
	keyChains       = "chains"
	keySeries       = "series"
	keyParallel     = "parallel"
	keyElse         = "else"
	keyError        = "error"
	keyErrorMessage = "errorMessage"
	keyVars         = "vars"
	keyVerbose      = "verbose"
	keyMap          = "map"
	keyFilter       = "filter"
	keyInto         = "into"
	keyParams       = "params"
	keyResult       = "result"
)

// Synonyms maps every recognized alias to its canonical key. Adding a locale
// is adding rows.
var Synonyms = map[string]string{
	// English
	"if":              keyBranch,
	"while":           keyLoop,
	"process":         keyCommand,
	"do":              keyCommand,
	"input":           keyIns,
	"inputs":          keyIns,
	"output":          keyOut,
	"outs":            keyOut,
	"outputs":         keyOut,
	"otherwise":       keyElse,
	"child":           keyChains,
	"children":        keyChains,
	"serial":          keySeries,
	"error_condition": keyError,
	"errorCondition":  keyError,
	"error_message":   keyErrorMessage,
	"variables":       keyVars,

	// Indonesian
	"proses":            keyCommand,
	"perintah":          keyCommand,
	"masukan":           keyIns,
	"keluaran":          keyOut,
	"kondisi":           keyBranch,
	"jika":              keyBranch,
	"selama":            keyLoop,
	"silap":             keyError,
	"kesalahan":         keyError,
	"kondisiError":      keyError,
	"kondisiSilap":      keyError,
	"kondisiKesalahan":  keyError,
	"kondisi_error":     keyError,
	"kondisi_silap":     keyError,
	"kondisi_kesalahan": keyError,
	"pesanError":        keyErrorMessage,
	"pesanSilap":        keyErrorMessage,
	"pesanKesalahan":    keyErrorMessage,
	"pesan_error":       keyErrorMessage,
	"pesan_silap":       keyErrorMessage,
	"pesan_kesalahan":   keyErrorMessage,
	"selainItu":         keyElse,
	"selain_itu":        keyElse,
	"jikaTidak":         keyElse,
	"jika_tidak":        keyElse,
	"seri":              keySeries,
	"paralel":           keyParallel,
	"bersamaan":         keyParallel,

	// Javanese
	"dhawuhe":    keyCommand,
	"yen":        keyBranch,
	"nalika":     keyLoop,
	"liyane":     keyElse,
	"yenOra":     keyElse,
	"yen_ora":    keyElse,
	"podoKaro":   keyParallel,
	"podo_karo":  keyParallel,
	"bebarengan": keyParallel,
	"sijiSiji":   keySeries,
	"siji_siji":  keySeries,
}

// resolveSynonyms returns a copy of step where every alias whose canonical
// key is absent has been moved under the canonical key. Aliases are visited
// in lexical order so the outcome does not depend on map iteration.
func resolveSynonyms(step map[string]any) map[string]any {
	out := make(map[string]any, len(step))
	for k, v := range step {
		out[k] = v
	}
	for _, alias := range value.SortedKeys(step) {
		canonical, ok := Synonyms[alias]
		if !ok {
			continue
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = step[alias]
		}
		delete(out, alias)
	}
	return out
}
