package schema

import (
	"regexp"
	"strings"

	dErrors "veritas/pkg/domain-errors"
)

// identifierPattern constrains field names: a letter or underscore followed
// by letters, digits, or underscores.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseFields parses the field-schema grammar: `type name, type name, ...`.
// Every field is required unless a later version of the grammar marks it
// otherwise; the registry has no notion of partially-populated rows.
func ParseFields(raw string) ([]Field, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, dErrors.New(dErrors.CodeSchema, "schema string is empty")
	}

	seen := make(map[string]struct{})
	var fields []Field
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, dErrors.New(dErrors.CodeSchema, "schema string has an empty field declaration")
		}
		tokens := strings.Fields(part)
		if len(tokens) != 2 {
			return nil, dErrors.Newf(dErrors.CodeSchema, "field declaration %q is not `type name`", part)
		}
		fieldType, name := FieldType(tokens[0]), tokens[1]
		if !fieldType.Valid() {
			return nil, dErrors.Newf(dErrors.CodeSchema, "field %q has unsupported type %q", name, tokens[0])
		}
		if !identifierPattern.MatchString(name) {
			return nil, dErrors.Newf(dErrors.CodeSchema, "field name %q is not a valid identifier", name)
		}
		if _, dup := seen[name]; dup {
			return nil, dErrors.Newf(dErrors.CodeSchema, "field name %q appears more than once", name)
		}
		seen[name] = struct{}{}
		fields = append(fields, Field{Name: name, Type: fieldType, Required: true})
	}
	return fields, nil
}
