// Package programs maps the free-text activity labels exported by the gym access system to the
// short program codes used by the timetable.
package programs

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Code is a canonical program code.
type Code string

const (
	BodyPump    Code = "BP"
	BodyCombat  Code = "BC"
	BodyBalance Code = "BB"
	BodyAttack  Code = "BA"
	BodyStep    Code = "BS"
	BodyJam     Code = "BJ"
	RPM         Code = "RPM"
	CXWorx      Code = "CX"
	Grit        Code = "GR"
	Shbam       Code = "SB"
	Sprint      Code = "SP"
	Stretching  Code = "ES"
	Pilates     Code = "PI"
	Yoga        Code = "YO"
	Zumba       Code = "ZU"
	Cycling     Code = "CY"
	Functional  Code = "FU"
	Abs         Code = "AB"
)

// Unknown is the sentinel for activities that carry no usable label.
const Unknown = "UNKNOWN"

// synonyms is keyed by the cleaned label (see Clean).
var synonyms = map[string]Code{
	"BODYPUMP":       BodyPump,
	"PUMP":           BodyPump,
	"BODYCOMBAT":     BodyCombat,
	"COMBAT":         BodyCombat,
	"BODYBALANCE":    BodyBalance,
	"BALANCE":        BodyBalance,
	"BODYATTACK":     BodyAttack,
	"ATTACK":         BodyAttack,
	"BODYSTEP":       BodyStep,
	"STEP":           BodyStep,
	"BODYJAM":        BodyJam,
	"LESMILLSRPM":    RPM,
	"CXWORX":         CXWorx,
	"CORE":           CXWorx,
	"LESMILLSCORE":   CXWorx,
	"GRIT":           Grit,
	"LESMILLSGRIT":   Grit,
	"SHBAM":          Shbam,
	"DANCE":          Shbam,
	"SPRINT":         Sprint,
	"LESMILLSSPRINT": Sprint,
	"ESTIRAMENTS":    Stretching,
	"ESTIRAMIENTOS":  Stretching,
	"STRETCH":        Stretching,
	"STRETCHING":     Stretching,
	"PILATES":        Pilates,
	"IOGA":           Yoga,
	"YOGA":           Yoga,
	"ZUMBA":          Zumba,
	"CICLISMEINDOOR": Cycling,
	"CICLOINDOOR":    Cycling,
	"SPINNING":       Cycling,
	"CYCLING":        Cycling,
	"FUNCIONAL":      Functional,
	"FUNCTIONAL":     Functional,
	"ABDOMINALS":     Abs,
	"ABDOMINALES":    Abs,
	"ABS":            Abs,
}

var known = func() map[Code]struct{} {
	out := make(map[Code]struct{}, len(synonyms))
	for _, code := range synonyms {
		out[code] = struct{}{}
	}
	return out
}()

// foldRounds bounds the loop in Clean.
const foldRounds = 8

// apostrophes are dropped from labels along with whitespace.
var apostrophes = map[rune]bool{
	'\'':     true,
	'`':      true,
	'\u00B4': true, // ´
	'\u02BC': true, // ʼ
	'\u2018': true, // ‘
	'\u2019': true, // ’
}

// Clean folds diacritics, uppercases, drops whitespace and apostrophes and removes every
// "OUTDOOR" marker. The steps repeat until the label stops changing, so Clean(Clean(x)) ==
// Clean(x).
func Clean(raw string) string {
	cleaned := raw
	for i := 0; i < foldRounds; i++ {
		next := cleanOnce(cleaned)
		if next == cleaned {
			break
		}
		cleaned = next
	}
	return cleaned
}

func cleanOnce(raw string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), raw)
	if err != nil {
		folded = raw
	}
	upper := strings.ToUpper(folded)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if unicode.IsSpace(r) || apostrophes[r] {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := b.String()
	for strings.Contains(cleaned, "OUTDOOR") {
		cleaned = strings.ReplaceAll(cleaned, "OUTDOOR", "")
	}
	return cleaned
}

// Classify resolves raw to a canonical code. known is false when the cleaned label is not a
// recognised synonym or code; the cleaned label is then returned as its own code.
func Classify(raw string) (code Code, isKnown bool) {
	cleaned := Clean(raw)
	if c, ok := synonyms[cleaned]; ok {
		return c, true
	}
	if _, ok := known[Code(cleaned)]; ok {
		return Code(cleaned), true
	}
	return Code(cleaned), false
}

// Normalize returns the canonical code for raw, or the cleaned label when no synonym matches.
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	code, _ := Classify(raw)
	return string(code)
}

// Label returns Normalize(raw), or Unknown when that is empty.
func Label(raw string) string {
	if code := Normalize(raw); code != "" {
		return code
	}
	return Unknown
}

// Codes lists every canonical code in the enumeration.
func Codes() []Code {
	return []Code{BodyPump, BodyCombat, BodyBalance, BodyAttack, BodyStep, BodyJam, RPM, CXWorx, Grit,
		Shbam, Sprint, Stretching, Pilates, Yoga, Zumba, Cycling, Functional, Abs}
}
