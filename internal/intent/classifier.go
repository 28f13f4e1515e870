// Package intent implements the deterministic keyword classifier used by
// the conversation engine.
package intent

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/citaflow/citaflow/internal/engine"
)

// rule is one intent with its ordered match patterns. Patterns are matched
// against folded text (lowercase, diacritics stripped), so they are written
// accent-free.
type rule struct {
	intent   engine.Intent
	patterns []*regexp.Regexp
}

// rules are evaluated top to bottom; the first intent with any matching
// pattern wins. human outranks everything so escalation requests are never
// swallowed by booking keywords ("necesito hablar con un humano").
var rules = []rule{
	{engine.IntentHuman, compile(
		`\b(humano|persona|agente|operador|hablar con alguien)\b`,
		`\b(no entiendes|no me entiendes|ayuda real)\b`,
	)},
	{engine.IntentCancel, compile(
		`\b(cancelar|cancel|eliminar|borrar|quitar)\b`,
		`\b(no puedo|no voy|ya no)\b`,
	)},
	{engine.IntentReschedule, compile(
		`\b(reagendar|cambiar|mover|reschedule|modificar)\b`,
		`\b(otra fecha|otro horario|diferente)\b`,
	)},
	{engine.IntentInfo, compile(
		`\b(informacion|info|precio|costo|cuanto|donde|direccion|horario de atencion)\b`,
		`\b(que servicios|que ofrecen|politicas)\b`,
	)},
	{engine.IntentBook, compile(
		`\b(agendar|reservar|cita|appointment|book|quiero|necesito)\b`,
		`\b(horario|disponible|disponibilidad)\b`,
	)},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Classifier is a deterministic, stateless keyword classifier.
type Classifier struct{}

var _ engine.Classifier = (*Classifier)(nil)

// NewClassifier returns the keyword classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps text plus the current state to an intent. Matching is case-
// and diacritic-insensitive. When nothing matches, text inside an active
// booking sub-flow is treated as flow continuation (book); everything else
// is unknown.
func (c *Classifier) Classify(text string, state engine.State) engine.Intent {
	folded := Fold(text)

	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(folded) {
				return r.intent
			}
		}
	}

	if state.InBookingFlow() {
		return engine.IntentBook
	}
	return engine.IntentUnknown
}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases text and strips combining diacritical marks so "Más
// Información" matches "mas informacion".
func Fold(text string) string {
	out, _, err := transform.String(foldTransformer, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}
