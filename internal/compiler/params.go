package compiler

import (
	"sort"

	"github.com/mark3labs/cmdtree/internal/cmdtree"
	"github.com/mark3labs/cmdtree/internal/openapi"
)

// arraySchemaType is reported for array parameters whose items carry no type.
const arraySchemaType = "array"

type paramKey struct{ name, location string }

// collectParameters reads a parameters array. Entries that are not mappings
// or lack a string name or in are skipped; for duplicate (name, in) pairs the
// last entry wins.
func collectParameters(list openapi.Value) []cmdtree.ParamDef {
	items := list.Items()
	out := make([]cmdtree.ParamDef, 0, len(items))
	seen := make(map[paramKey]int, len(items))
	for _, item := range items {
		name, okName := item.Get("name").AsString()
		location, okIn := item.Get("in").AsString()
		if !okName || !okIn {
			continue
		}
		schemaType, list := inferSchema(item.Get("schema"))
		p := cmdtree.ParamDef{
			Name:        name,
			Flag:        FlagName(name),
			Location:    location,
			Required:    item.Get("required").BoolOr(false),
			List:        list,
			SchemaType:  schemaType,
			Description: optionalString(item.Get("description")),
		}
		key := paramKey{name, location}
		if pos, dup := seen[key]; dup {
			out[pos] = p
			continue
		}
		seen[key] = len(out)
		out = append(out, p)
	}
	return out
}

// inferSchema returns the reported type and whether the parameter is a list.
// For arrays the type is the item type, falling back to "array".
func inferSchema(schema openapi.Value) (*string, bool) {
	if schema.Kind() != openapi.KindMapping {
		return nil, false
	}
	typ := optionalString(schema.Get("type"))
	if typ == nil || *typ != arraySchemaType {
		return typ, false
	}
	if itemType := optionalString(schema.Get("items").Get("type")); itemType != nil {
		return itemType, true
	}
	fallback := arraySchemaType
	return &fallback, true
}

// mergeParameters overlays operation-level parameters on the path-level ones.
// An override replaces the whole entry with the same (name, location). The
// result is sorted by name, then location.
func mergeParameters(base, override []cmdtree.ParamDef) []cmdtree.ParamDef {
	merged := make(map[paramKey]cmdtree.ParamDef, len(base)+len(override))
	for _, p := range base {
		merged[paramKey{p.Name, p.Location}] = p
	}
	for _, p := range override {
		merged[paramKey{p.Name, p.Location}] = p
	}
	out := make([]cmdtree.ParamDef, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].Location < out[j].Location
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func optionalString(v openapi.Value) *string {
	s, ok := v.AsString()
	if !ok {
		return nil
	}
	return &s
}
