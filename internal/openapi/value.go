package openapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an untyped document node. The zero Value is null.
//
// Every accessor is total: asking a Value for something it does not hold
// returns the zero result instead of failing, so callers decide locally how a
// missing or mistyped field degrades.
type Value struct {
	kind  Kind
	text  string // scalar source text for bool, number and string
	b     bool
	items []Value
	keys  []string
	index map[string]int // key -> position in items, last occurrence wins
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, text: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b, text: strconv.FormatBool(b)} }

// Number returns a numeric value carrying its source text.
func Number(text string) Value { return Value{kind: KindNumber, text: text} }

// Sequence returns a sequence of the given items.
func Sequence(items ...Value) Value {
	return Value{kind: KindSequence, items: append([]Value(nil), items...)}
}

// Pair is one mapping entry used by Mapping.
type Pair struct {
	Key   string
	Value Value
}

// Mapping builds a mapping preserving the order of pairs.
func Mapping(pairs ...Pair) Value {
	v := Value{kind: KindMapping, index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		v.set(p.Key, p.Value)
	}
	return v
}

func (v *Value) set(key string, val Value) {
	if pos, ok := v.index[key]; ok {
		v.items[pos] = val
		return
	}
	v.index[key] = len(v.items)
	v.keys = append(v.keys, key)
	v.items = append(v.items, val)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// Lookup returns the mapping entry for key. The boolean reports presence,
// which is true even when the stored value is null.
func (v Value) Lookup(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	pos, ok := v.index[key]
	if !ok {
		return Value{}, false
	}
	return v.items[pos], true
}

// Get returns the mapping entry for key or null.
func (v Value) Get(key string) Value {
	out, _ := v.Lookup(key)
	return out
}

// Has reports whether a mapping defines key.
func (v Value) Has(key string) bool {
	_, ok := v.Lookup(key)
	return ok
}

// AsString returns the string payload; numbers and booleans are not coerced.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.text, true
}

func (v Value) StringOr(def string) string {
	if s, ok := v.AsString(); ok {
		return s
	}
	return def
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) BoolOr(def bool) bool {
	if b, ok := v.AsBool(); ok {
		return b
	}
	return def
}

// Text returns the scalar source text (empty for null and collections).
func (v Value) Text() string { return v.text }

// Items returns the elements of a sequence, or nil.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.items
}

// Keys returns mapping keys in document order, or nil.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	return v.keys
}

// Index returns the i-th sequence element or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindSequence || i < 0 || i >= len(v.items) {
		return Value{}
	}
	return v.items[i]
}

// Len returns the number of sequence elements or mapping entries.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence, KindMapping:
		return len(v.items)
	default:
		return 0
	}
}

// Parse decodes YAML or JSON into a Value. Empty input yields null.
func Parse(data []byte) (Value, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return Value{}, err
	}
	return FromNode(&root)
}

// ErrAliasExpansion is returned when following aliases would produce a value
// far larger than the source document.
var ErrAliasExpansion = errors.New("document expands too much through aliases")

const (
	// maxAliasDepth bounds alias chains so self-referencing anchors terminate.
	maxAliasDepth = 64
	// maxExpansionRatio and minExpansionBudget bound the number of values
	// built relative to the number of nodes in the source tree.
	maxExpansionRatio  = 100
	minExpansionBudget = 1 << 20
)

// FromNode converts a yaml.v3 node tree. Aliases are followed and mapping
// order is preserved.
func FromNode(n *yaml.Node) (Value, error) {
	budget := countNodes(n) * maxExpansionRatio
	if budget < minExpansionBudget {
		budget = minExpansionBudget
	}
	c := &converter{budget: budget}
	v := c.convert(n, 0)
	if c.err != nil {
		return Value{}, c.err
	}
	return v, nil
}

// countNodes counts the nodes of the source tree without following aliases.
func countNodes(n *yaml.Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Content {
		total += countNodes(c)
	}
	return total
}

type converter struct {
	budget int
	built  int
	err    error
}

func (c *converter) convert(n *yaml.Node, depth int) Value {
	if n == nil || depth > maxAliasDepth || c.err != nil {
		return Value{}
	}
	c.built++
	if c.built > c.budget {
		c.err = fmt.Errorf("%w (more than %d values)", ErrAliasExpansion, c.budget)
		return Value{}
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Value{}
		}
		return c.convert(n.Content[0], depth)
	case yaml.AliasNode:
		return c.convert(n.Alias, depth+1)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, item := range n.Content {
			items = append(items, c.convert(item, depth))
		}
		return Value{kind: KindSequence, items: items}
	case yaml.MappingNode:
		v := Value{kind: KindMapping, index: make(map[string]int, len(n.Content)/2)}
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			for k.Kind == yaml.AliasNode && k.Alias != nil {
				k = k.Alias
			}
			v.set(k.Value, c.convert(n.Content[i+1], depth))
		}
		return v
	case yaml.ScalarNode:
		return scalar(n)
	default:
		return Value{}
	}
}

func scalar(n *yaml.Node) Value {
	switch n.ShortTag() {
	case "!!null":
		return Value{}
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return String(n.Value)
		}
		return Value{kind: KindBool, b: b, text: n.Value}
	case "!!int", "!!float":
		return Number(n.Value)
	default:
		return String(n.Value)
	}
}

// MarshalJSON renders the value as JSON with mapping order preserved.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		buf.WriteString(jsonNumber(v.text))
	case KindString:
		b, err := json.Marshal(v.text)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, key := range v.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.items[i].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("openapi: cannot marshal %s", v.kind)
	}
	return nil
}

// jsonNumber normalizes YAML numeric spellings (0x1f, 1_000, .inf) into JSON.
func jsonNumber(text string) string {
	if i, err := strconv.ParseInt(text, 0, 64); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "null"
}
