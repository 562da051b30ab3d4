// Package format renders human-readable invoice numbers.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTemplate yields numbers like INV-2026-3HK2W9QJ4B.
const DefaultTemplate = "INV-{YYYY}-{B36}"

var (
	ErrInvalidTemplate = errors.New("invalid_invoice_number_template")
	ErrInvalidSequence = errors.New("invalid_invoice_sequence")

	tokenRe = regexp.MustCompile(`\{([A-Z0-9]+)\}`)
	padRe   = regexp.MustCompile(`^SEQ(\d+)$`)
)

// Template renders invoice numbers from an issue date and a unique sequence.
//
// Tokens: {YYYY} {YY} {MM} {DD}, {SEQ} (decimal), {SEQn} (zero padded to n
// digits) and {B36} (upper-case base 36). The sequence must be unique on its
// own; dates are cosmetic.
type Template struct {
	raw string
}

// Parse checks that every token in raw is known and that raw references the
// sequence, since a template without it cannot produce unique numbers.
func Parse(raw string) (Template, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Template{}, fmt.Errorf("%w: empty", ErrInvalidTemplate)
	}
	hasSeq := false
	for _, m := range tokenRe.FindAllStringSubmatch(raw, -1) {
		name := m[1]
		switch {
		case name == "SEQ" || name == "B36":
			hasSeq = true
		case padRe.MatchString(name):
			hasSeq = true
		case name == "YYYY" || name == "YY" || name == "MM" || name == "DD":
		default:
			return Template{}, fmt.Errorf("%w: unknown token {%s}", ErrInvalidTemplate, name)
		}
	}
	if !hasSeq {
		return Template{}, fmt.Errorf("%w: no sequence token", ErrInvalidTemplate)
	}
	if rest := tokenRe.ReplaceAllString(raw, ""); strings.ContainsAny(rest, "{}") {
		return Template{}, fmt.Errorf("%w: unbalanced braces", ErrInvalidTemplate)
	}
	return Template{raw: raw}, nil
}

// Default returns the built-in template.
func Default() Template {
	return Template{raw: DefaultTemplate}
}

func (t Template) String() string {
	if t.raw == "" {
		return DefaultTemplate
	}
	return t.raw
}

// Render is pure. A zero Template renders with DefaultTemplate.
func (t Template) Render(issuedAt time.Time, seq int64) (string, error) {
	if seq <= 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidSequence, seq)
	}
	return tokenRe.ReplaceAllStringFunc(t.String(), func(token string) string {
		name := token[1 : len(token)-1]
		switch name {
		case "YYYY":
			return issuedAt.Format("2006")
		case "YY":
			return issuedAt.Format("06")
		case "MM":
			return issuedAt.Format("01")
		case "DD":
			return issuedAt.Format("02")
		case "SEQ":
			return strconv.FormatInt(seq, 10)
		case "B36":
			return strings.ToUpper(strconv.FormatInt(seq, 36))
		}
		if m := padRe.FindStringSubmatch(name); m != nil {
			width, _ := strconv.Atoi(m[1])
			return fmt.Sprintf("%0*d", width, seq)
		}
		return token
	}), nil
}
