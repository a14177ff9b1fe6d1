// Package params fills request parameters with random but well-formed values,
// keyed by the parameter's declared type.
package params

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/VTimofeenko/connect-autoapprove/internal/connect"
)

// Parameter types the platform declares.
const (
	TypeText      = "text"
	TypeAddress   = "address"
	TypeCheckbox  = "checkbox"
	TypeChoice    = "choice"
	TypePhone     = "phone"
	TypeSubdomain = "subdomain"
	TypeDomain    = "domain"
	TypeEmail     = "email"
	TypeURL       = "url"
	TypeObject    = "object"
)

var (
	// ErrUnsupportedType is returned for a type with no generator.
	ErrUnsupportedType = errors.New("unsupported parameter type")
	// ErrNoChoices is returned for choice/checkbox params without declared choices.
	ErrNoChoices = errors.New("parameter declares no choices")
)

type generator func(f *gofakeit.Faker, p connect.Param) (connect.Param, error)

var generators = map[string]generator{
	TypeText:      genText,
	TypeAddress:   genAddress,
	TypeCheckbox:  genCheckbox,
	TypeChoice:    genChoice,
	TypePhone:     genPhone,
	TypeSubdomain: genSubdomain,
	TypeDomain:    genDomain,
	TypeEmail:     genEmail,
	TypeURL:       genURL,
	TypeObject:    genObject,
}

// Synthesizer generates parameter values. Safe for concurrent use.
type Synthesizer struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// New returns a Synthesizer. A zero seed seeds from the clock.
func New(seed int64) *Synthesizer {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthesizer{faker: gofakeit.New(seed)}
}

// Supported lists the parameter types with a generator, sorted.
func Supported() []string {
	types := make([]string, 0, len(generators))
	for t := range generators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// IsSupported reports whether a type has a generator.
func IsSupported(paramType string) bool {
	_, ok := generators[paramType]
	return ok
}

// Synthesize returns a copy of p with a generated value in the field its type uses.
func (s *Synthesizer) Synthesize(p connect.Param) (connect.Param, error) {
	gen, ok := generators[p.Type]
	if !ok {
		return p, fmt.Errorf("%w: %q (param %s)", ErrUnsupportedType, p.Type, p.ID)
	}

	out := p
	out.Value = ""
	out.StructuredValue = nil
	out.ValueError = ""

	s.mu.Lock()
	defer s.mu.Unlock()
	return gen(s.faker, out)
}

func genText(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.Value = f.Sentence(4)
	return p, nil
}

func genAddress(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.StructuredValue = map[string]any{
		"address_line1": f.Street(),
		"address_line2": fmt.Sprintf("Suite %d", f.Number(100, 999)),
		"city":          f.City(),
		"state":         f.State(),
		"postal_code":   f.Zip(),
		"country":       f.CountryAbr(),
	}
	return p, nil
}

func genCheckbox(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	choices := choicesOf(p)
	if len(choices) == 0 {
		return p, fmt.Errorf("%w: %s", ErrNoChoices, p.ID)
	}
	sv := make(map[string]any, len(choices))
	for _, c := range choices {
		sv[c.Value] = f.Bool()
	}
	p.StructuredValue = sv
	return p, nil
}

func genChoice(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	choices := choicesOf(p)
	if len(choices) == 0 {
		return p, fmt.Errorf("%w: %s", ErrNoChoices, p.ID)
	}
	p.Value = choices[f.Number(0, len(choices)-1)].Value
	return p, nil
}

func genPhone(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	digits := f.Phone() // 10 digits
	p.StructuredValue = map[string]any{
		"country_code": "+1",
		"area_code":    digits[:3],
		"phone_number": digits[3:],
		"extension":    "",
	}
	return p, nil
}

func genSubdomain(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.Value = fmt.Sprintf("%s%d", strings.ToLower(f.LetterN(8)), f.Number(10, 99))
	return p, nil
}

func genDomain(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.Value = domainName(f)
	return p, nil
}

func genEmail(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.Value = strings.ToLower(f.Email())
	return p, nil
}

func genURL(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.Value = fmt.Sprintf("https://%s/%s", domainName(f), strings.ToLower(f.LetterN(6)))
	return p, nil
}

func genObject(f *gofakeit.Faker, p connect.Param) (connect.Param, error) {
	p.StructuredValue = map[string]any{
		"id":          f.UUID(),
		"name":        f.Noun(),
		"description": f.Sentence(6),
	}
	return p, nil
}

func domainName(f *gofakeit.Faker) string {
	return strings.ReplaceAll(strings.ToLower(f.DomainName()), " ", "")
}

func choicesOf(p connect.Param) []connect.Choice {
	if p.Constraints == nil {
		return nil
	}
	return p.Constraints.Choices
}
