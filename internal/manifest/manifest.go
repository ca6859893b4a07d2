// Package manifest loads and validates the declarative resource set.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/stackform-io/stackform/internal/ir"
)

// Manifest is the top-level desired-state document.
type Manifest struct {
	Version   int            `yaml:"version" validate:"gte=0,lte=1"`
	Resources []*ir.Resource `yaml:"resources" validate:"dive,required"`
}

var validate = validator.New()

// Load reads and validates a manifest file. Any malformed declaration is a
// ValidationError that fails the run before planning begins.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates manifest content.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, &ir.ValidationError{Issues: []string{fmt.Sprintf("malformed manifest: %v", err)}}
	}

	var issues []string
	if err := validate.Struct(&m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, fmt.Sprintf("%s: failed %q constraint", fe.Namespace(), fe.Tag()))
			}
		} else {
			issues = append(issues, err.Error())
		}
	}

	seen := make(map[string]bool, len(m.Resources))
	for _, res := range m.Resources {
		if res == nil {
			issues = append(issues, "null resource entry")
			continue
		}
		if seen[res.ID] {
			issues = append(issues, fmt.Sprintf("duplicate resource id %s", res.ID))
		}
		seen[res.ID] = true
	}

	if len(issues) > 0 {
		return nil, &ir.ValidationError{Issues: issues}
	}
	return &m, nil
}
