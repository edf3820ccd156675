// Package cmdtree defines the command tree artifact: resources grouping
// operations, each carrying flag-ready parameter metadata. The compiler
// produces it once; CLIs load it read-only.
package cmdtree

import "fmt"

type CommandTree struct {
	Version   uint32     `json:"version" yaml:"version"`
	Endpoint  string     `json:"endpoint" yaml:"endpoint"`
	Resources []Resource `json:"resources" yaml:"resources"`
}

// Resource groups the operations sharing one tag.
type Resource struct {
	Name        string      `json:"name" yaml:"name"`
	DisplayName string      `json:"display_name" yaml:"display_name"`
	Ops         []Operation `json:"ops" yaml:"ops"`
}

// Operation is one (method, path, tag) combination.
type Operation struct {
	Name        string     `json:"name" yaml:"name"`
	DisplayName string     `json:"display_name" yaml:"display_name"`
	Method      string     `json:"method" yaml:"method"`
	Path        string     `json:"path" yaml:"path"`
	Summary     *string    `json:"summary" yaml:"summary"`
	Description *string    `json:"description" yaml:"description"`
	Parameters  []ParamDef `json:"parameters" yaml:"parameters"`
	HasBody     bool       `json:"has_body" yaml:"has_body"`
}

// Parameter locations consumers act on. Anything else (cookie, formData) is
// carried through but ignored when building requests.
const (
	LocationPath   = "path"
	LocationQuery  = "query"
	LocationHeader = "header"
)

type ParamDef struct {
	Name     string `json:"name" yaml:"name"`
	Flag     string `json:"flag" yaml:"flag"`
	Location string `json:"location" yaml:"location"`
	Required bool   `json:"required" yaml:"required"`
	// List marks parameters accepting several values; SchemaType then names
	// the element type.
	List        bool    `json:"list" yaml:"list"`
	SchemaType  *string `json:"schema_type" yaml:"schema_type"`
	Description *string `json:"description" yaml:"description"`
}

// Find returns the operation registered under resource/op.
func (t *CommandTree) Find(resource, op string) (*Operation, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Resources {
		res := &t.Resources[i]
		if res.Name != resource {
			continue
		}
		for j := range res.Ops {
			if res.Ops[j].Name == op {
				return &res.Ops[j], true
			}
		}
		return nil, false
	}
	return nil, false
}

// Stats summarizes the size of a tree.
type Stats struct {
	Resources  int
	Operations int
	Parameters int
}

func (t *CommandTree) Stats() Stats {
	var s Stats
	if t == nil {
		return s
	}
	s.Resources = len(t.Resources)
	for _, res := range t.Resources {
		s.Operations += len(res.Ops)
		for _, op := range res.Ops {
			s.Parameters += len(op.Parameters)
		}
	}
	return s
}

// DuplicateNameError reports a name used twice in one scope. Resource is
// empty when the duplicate is a resource name.
type DuplicateNameError struct {
	Resource string
	Name     string
}

func (e *DuplicateNameError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("cmdtree: duplicate resource name %q", e.Name)
	}
	return fmt.Sprintf("cmdtree: duplicate operation name %q in resource %q", e.Name, e.Resource)
}

// Validate checks that resource names are unique and that operation names
// are unique within each resource.
func (t *CommandTree) Validate() error {
	if t == nil {
		return fmt.Errorf("cmdtree: nil tree")
	}
	resources := make(map[string]struct{}, len(t.Resources))
	for _, res := range t.Resources {
		if _, dup := resources[res.Name]; dup {
			return &DuplicateNameError{Name: res.Name}
		}
		resources[res.Name] = struct{}{}

		ops := make(map[string]struct{}, len(res.Ops))
		for _, op := range res.Ops {
			if _, dup := ops[op.Name]; dup {
				return &DuplicateNameError{Resource: res.Name, Name: op.Name}
			}
			ops[op.Name] = struct{}{}
		}
	}
	return nil
}
