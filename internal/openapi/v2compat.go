package openapi

import "strings"

var v2Methods = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "delete": {}, "patch": {}, "options": {}, "head": {},
}

// preprocessV2ForCompatibility rewrites non-compliant Swagger 2.0 operations
// so openapi2conv accepts them:
//   - several body parameters on one operation are merged into a single body
//     parameter whose schema is an object with one property per original;
//   - body parameters mixed with formData parameters become formData and the
//     operation consumes multipart/form-data.
//
// The input is never mutated. The boolean reports whether anything changed.
func preprocessV2ForCompatibility(root Value) (Value, bool) {
	paths := root.Get("paths")
	if paths.Kind() != KindMapping || paths.Len() == 0 {
		return root, false
	}

	modified := false
	newPaths := make([]Pair, 0, paths.Len())
	for _, p := range paths.Keys() {
		item := paths.Get(p)
		if item.Kind() != KindMapping {
			newPaths = append(newPaths, Pair{Key: p, Value: item})
			continue
		}
		newItem := make([]Pair, 0, item.Len())
		for _, method := range item.Keys() {
			op := item.Get(method)
			if _, ok := v2Methods[strings.ToLower(method)]; ok && op.Kind() == KindMapping {
				if fixed, changed := fixV2Operation(op); changed {
					op = fixed
					modified = true
				}
			}
			newItem = append(newItem, Pair{Key: method, Value: op})
		}
		newPaths = append(newPaths, Pair{Key: p, Value: Mapping(newItem...)})
	}
	if !modified {
		return root, false
	}
	return replaceKey(root, "paths", Mapping(newPaths...)), true
}

func fixV2Operation(op Value) (Value, bool) {
	params := op.Get("parameters").Items()
	if len(params) == 0 {
		return op, false
	}

	bodyCount := 0
	hasFormData := false
	for _, p := range params {
		switch strings.ToLower(p.Get("in").StringOr("")) {
		case "body":
			bodyCount++
		case "formdata":
			hasFormData = true
		}
	}
	if bodyCount == 0 || (bodyCount == 1 && !hasFormData) {
		return op, false
	}

	if hasFormData {
		newParams := make([]Value, 0, len(params))
		for _, p := range params {
			if isBodyParam(p) {
				newParams = append(newParams, formDataFromBodyParam(p))
				continue
			}
			newParams = append(newParams, p)
		}
		op = replaceKey(op, "parameters", Sequence(newParams...))
		consumes := op.Get("consumes").Items()
		for _, c := range consumes {
			if c.StringOr("") == "multipart/form-data" {
				return op, true
			}
		}
		consumes = append(append([]Value(nil), consumes...), String("multipart/form-data"))
		return replaceKey(op, "consumes", Sequence(consumes...)), true
	}

	props := make([]Pair, 0, bodyCount)
	var required []Value
	rest := make([]Value, 0, len(params))
	for _, p := range params {
		if !isBodyParam(p) {
			rest = append(rest, p)
			continue
		}
		name := p.Get("name").StringOr("")
		if name == "" {
			name = "field"
		}
		schema := schemaFromParam(p)
		if schema.IsNull() {
			schema = Mapping(Pair{Key: "type", Value: String("string")})
		}
		props = append(props, Pair{Key: name, Value: schema})
		if p.Get("required").BoolOr(false) {
			required = append(required, String(name))
		}
	}
	bodySchema := []Pair{
		{Key: "type", Value: String("object")},
		{Key: "properties", Value: Mapping(props...)},
	}
	if len(required) > 0 {
		bodySchema = append(bodySchema, Pair{Key: "required", Value: Sequence(required...)})
	}
	merged := Mapping(
		Pair{Key: "in", Value: String("body")},
		Pair{Key: "name", Value: String("body")},
		Pair{Key: "schema", Value: Mapping(bodySchema...)},
	)
	return replaceKey(op, "parameters", Sequence(append([]Value{merged}, rest...)...)), true
}

func isBodyParam(p Value) bool {
	return strings.EqualFold(p.Get("in").StringOr(""), "body")
}

// schemaFromParam returns the parameter's schema, or one synthesized from its
// v2 type/items/format fields, or null.
func schemaFromParam(p Value) Value {
	if s := p.Get("schema"); s.Kind() == KindMapping {
		return s
	}
	typ := p.Get("type").StringOr("")
	if typ == "" {
		return Null()
	}
	pairs := []Pair{{Key: "type", Value: String(typ)}}
	if items := p.Get("items"); items.Kind() == KindMapping {
		pairs = append(pairs, Pair{Key: "items", Value: items})
	}
	if f := p.Get("format").StringOr(""); f != "" {
		pairs = append(pairs, Pair{Key: "format", Value: String(f)})
	}
	return Mapping(pairs...)
}

func formDataFromBodyParam(p Value) Value {
	name := p.Get("name").StringOr("")
	if name == "" {
		name = "field"
	}
	pairs := []Pair{
		{Key: "in", Value: String("formData")},
		{Key: "name", Value: String(name)},
	}
	if desc := p.Get("description").StringOr(""); desc != "" {
		pairs = append(pairs, Pair{Key: "description", Value: String(desc)})
	}
	if req, ok := p.Get("required").AsBool(); ok {
		pairs = append(pairs, Pair{Key: "required", Value: Bool(req)})
	}

	// formData cannot carry a referenced object; degrade to string.
	schema := schemaFromParam(p)
	typ := schema.Get("type").StringOr("")
	if typ == "" || typ == "object" {
		typ = "string"
	}
	pairs = append(pairs, Pair{Key: "type", Value: String(typ)})
	if items := schema.Get("items"); items.Kind() == KindMapping {
		pairs = append(pairs, Pair{Key: "items", Value: items})
	}
	if f := schema.Get("format").StringOr(""); f != "" {
		pairs = append(pairs, Pair{Key: "format", Value: String(f)})
	}
	return Mapping(pairs...)
}

// replaceKey returns a copy of mapping m with key set to val, appending the
// key when absent.
func replaceKey(m Value, key string, val Value) Value {
	pairs := make([]Pair, 0, m.Len()+1)
	for _, k := range m.Keys() {
		pairs = append(pairs, Pair{Key: k, Value: m.Get(k)})
	}
	pairs = append(pairs, Pair{Key: key, Value: val})
	return Mapping(pairs...)
}
