package convert

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lantzproject/lantz-core/internal/pipeline"
)

// placeholder is one named field in a template pattern.
type placeholder struct {
	name string
	verb byte // 'd', 'f' or 's'
}

// templatePattern matches "{name}" or "{name:verb}" in a pattern string.
var templatePattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)(?::([dfs]))?\}`)

// Template returns a step that parses a formatted device response back into
// typed components, the inverse of formatting the pattern.
//
// Placeholders are named and optionally typed: {level:d} parses an integer,
// {volts:f} a float, {mode:s} (or just {mode}) a string. A single
// placeholder yields its value directly; multiple placeholders yield a
// map[string]any keyed by placeholder name. Input that does not match the
// pattern fails with ErrParse.
//
//	step, _ := convert.Template("VOLT {volts:f} RANGE {rng:d}")
//	v, _ := step.Apply("VOLT 1.25 RANGE 3") // map[rng:3 volts:1.25]
func Template(pattern string) (pipeline.Step, error) {
	fields, re, err := compileTemplate(pattern)
	if err != nil {
		return pipeline.Step{}, err
	}

	return pipeline.Step{
		Name: "template parser",
		Apply: func(value any) (any, error) {
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: template expects a string, got %T", ErrInvalidValue, value)
			}
			match := re.FindStringSubmatch(s)
			if match == nil {
				return nil, fmt.Errorf("%w: %q does not match pattern %q", ErrParse, s, pattern)
			}

			out := make(map[string]any, len(fields))
			for i, field := range fields {
				parsed, err := parseField(field, match[i+1])
				if err != nil {
					return nil, err
				}
				out[field.name] = parsed
			}
			if len(fields) == 1 {
				return out[fields[0].name], nil
			}
			return out, nil
		},
	}, nil
}

// compileTemplate translates a placeholder pattern into a regular expression
// with one capture group per field.
func compileTemplate(pattern string) ([]placeholder, *regexp.Regexp, error) {
	locs := templatePattern.FindAllStringSubmatchIndex(pattern, -1)
	if len(locs) == 0 {
		return nil, nil, fmt.Errorf("%w: pattern %q has no placeholders", ErrBadSpec, pattern)
	}

	var fields []placeholder
	var b strings.Builder
	b.WriteString("^")
	last := 0
	for _, loc := range locs {
		b.WriteString(regexp.QuoteMeta(pattern[last:loc[0]]))

		name := pattern[loc[2]:loc[3]]
		verb := byte('s')
		if loc[4] >= 0 {
			verb = pattern[loc[4]]
		}
		fields = append(fields, placeholder{name: name, verb: verb})

		switch verb {
		case 'd':
			b.WriteString(`([+-]?\d+)`)
		case 'f':
			b.WriteString(`([+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?)`)
		default:
			b.WriteString(`(.+?)`)
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: pattern %q: %v", ErrBadSpec, pattern, err)
	}
	return fields, re, nil
}

// parseField converts one captured substring to its placeholder type.
func parseField(field placeholder, raw string) (any, error) {
	switch field.verb {
	case 'd':
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrParse, field.name, err)
		}
		return n, nil
	case 'f':
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrParse, field.name, err)
		}
		return f, nil
	default:
		return raw, nil
	}
}

// TemplateParser builds a template parsing step from a spec: a pattern
// string or a per-component list of patterns.
func TemplateParser(spec any) (pipeline.Step, error) {
	if step, ok := asStep(spec); ok {
		return step, nil
	}
	switch s := spec.(type) {
	case string:
		return Template(s)
	case []any:
		return perComponent("template", s, TemplateParser)
	}
	return pipeline.Step{}, fmt.Errorf("%w: template spec must be a string or per-component list, not %T",
		ErrBadSpec, spec)
}
