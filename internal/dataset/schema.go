package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Schema is the uploaded field dictionary: a flat JSON object mapping
// dataset column names to analyst-facing descriptions. It scopes which
// columns planning may draw on and annotates them for the client.
type Schema map[string]string

// ParseSchema decodes a schema file. Anything other than a non-empty
// JSON object of string descriptions is rejected.
func ParseSchema(data []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dataset: parse schema: %w", err)
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("dataset: schema declares no fields")
	}
	return s, nil
}

// Fields returns the declared field names in sorted order.
func (s Schema) Fields() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the schema declares the field.
func (s Schema) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Describe returns the field's description, or "" when undeclared.
func (s Schema) Describe(field string) string {
	return s[field]
}

// DescribeFields copies schema descriptions onto the dataset's column
// metadata. Columns the schema does not declare keep an empty
// description.
func (d *Dataset) DescribeFields(s Schema) {
	for i := range d.fields {
		d.fields[i].Description = s.Describe(d.fields[i].Name)
	}
}
