package ir

import "strings"

// Resource represents a single declared resource.
type Resource struct {
	ID         string         `yaml:"id" validate:"required"`
	Type       string         `yaml:"type" validate:"required"` // e.g. "aws:EC2.Vpc"
	DependsOn  []string       `yaml:"dependsOn" validate:"dive,required"`
	Attributes map[string]any `yaml:"attributes"`
}

// ProviderName returns the provider portion of the resource type.
// "aws:EC2.Vpc" -> "aws".
func (r *Resource) ProviderName() string {
	if i := strings.Index(r.Type, ":"); i > 0 {
		return r.Type[:i]
	}
	return r.Type
}

// Reference is a typed pointer from one resource's attribute to another
// resource's output attribute.
type Reference struct {
	TargetID  string
	Attribute string
}

const refPrefix = "ref://"

// ParseRef parses a "ref://<id>/<attribute>" placeholder.
// Returns false for any other string.
func ParseRef(s string) (Reference, bool) {
	if !strings.HasPrefix(s, refPrefix) {
		return Reference{}, false
	}
	path := s[len(refPrefix):]
	id, attr, ok := strings.Cut(path, "/")
	if !ok || id == "" || attr == "" {
		return Reference{}, false
	}
	return Reference{TargetID: id, Attribute: attr}, true
}

// ExtractRefs collects every reference placeholder in an attribute value,
// descending into maps and lists. The scan must be exhaustive: a missed
// reference silently breaks dependency ordering.
func ExtractRefs(v any) []Reference {
	var refs []Reference
	switch val := v.(type) {
	case string:
		if ref, ok := ParseRef(val); ok {
			refs = append(refs, ref)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case map[any]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	}
	return refs
}
