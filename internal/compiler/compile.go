// Package compiler turns a loosely structured OpenAPI document into a command
// tree. Compilation is pure: no I/O, no shared state, and the same document
// always yields the same tree.
package compiler

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mark3labs/cmdtree/internal/cmdtree"
	"github.com/mark3labs/cmdtree/internal/openapi"
)

// ErrMissingPaths is returned when the document has no paths mapping.
var ErrMissingPaths = errors.New("openapi document missing paths")

// Compile builds the command tree for doc.
//
// Paths are visited in lexical order and methods in the order of Methods, so
// resources appear in the order their tag is first met during that walk.
// Operations without tags are dropped: the tag is the grouping key.
func Compile(doc openapi.Value, opts ...Option) (*cmdtree.CommandTree, error) {
	cfg := newConfig(opts)

	paths := doc.Get("paths")
	if paths.Kind() != openapi.KindMapping {
		if doc.Has("paths") {
			return nil, fmt.Errorf("compile: %w (got %s)", ErrMissingPaths, paths.Kind())
		}
		return nil, fmt.Errorf("compile: %w", ErrMissingPaths)
	}

	b := newTreeBuilder()
	keys := append([]string(nil), paths.Keys()...)
	sort.Strings(keys)

	for _, path := range keys {
		item := paths.Get(path)
		if item.Kind() != openapi.KindMapping || !cfg.allowPath(path) {
			continue
		}
		pathParams := collectParameters(item.Get("parameters"))

		for _, method := range Methods {
			op, ok := item.Lookup(method)
			if !ok || op.Kind() != openapi.KindMapping || !cfg.allowMethod(method) {
				continue
			}
			entry := buildOperation(path, method, op, pathParams)

			for _, tag := range op.Get("tags").Items() {
				text, ok := tag.AsString()
				if !ok {
					continue
				}
				slug := Slug(text)
				if !cfg.allowResource(slug) {
					continue
				}
				b.add(slug, text, entry, method)
			}
		}
	}

	return &cmdtree.CommandTree{
		Version:   extractVersion(doc, cfg.defaultVersion),
		Endpoint:  extractEndpoint(doc, cfg.defaultEndpoint),
		Resources: b.resources(),
	}, nil
}

// buildOperation fills every field except Name, which depends on the
// resource the entry lands in.
func buildOperation(path, method string, op openapi.Value, pathParams []cmdtree.ParamDef) cmdtree.Operation {
	id := op.Get("operationId").StringOr("")
	if strings.TrimSpace(id) == "" {
		id = method + "_" + path
	}
	return cmdtree.Operation{
		DisplayName: id,
		Method:      strings.ToUpper(method),
		Path:        path,
		Summary:     optionalString(op.Get("summary")),
		Description: optionalString(op.Get("description")),
		Parameters:  mergeParameters(pathParams, collectParameters(op.Get("parameters"))),
		HasBody:     op.Has("requestBody"),
	}
}

// extractEndpoint reads servers[0].url; later servers are ignored.
func extractEndpoint(doc openapi.Value, fallback string) string {
	url, ok := doc.Get("servers").Index(0).Get("url").AsString()
	if !ok || strings.TrimSpace(url) == "" {
		return fallback
	}
	return url
}

// extractVersion parses the major part of info.version ("4.0.1" -> 4).
func extractVersion(doc openapi.Value, fallback uint32) uint32 {
	raw, ok := doc.Get("info").Get("version").AsString()
	if !ok {
		return fallback
	}
	major, _, _ := strings.Cut(raw, ".")
	v, err := strconv.ParseUint(major, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(v)
}

// treeBuilder accumulates resources in first-seen order. Each resource keeps
// its own set of taken operation names for the duration of the build.
type treeBuilder struct {
	order []string
	byKey map[string]*resourceBuilder
}

type resourceBuilder struct {
	res  cmdtree.Resource
	used nameSet
}

func newTreeBuilder() *treeBuilder {
	return &treeBuilder{byKey: make(map[string]*resourceBuilder)}
}

func (b *treeBuilder) add(slug, tag string, entry cmdtree.Operation, method string) {
	rb, ok := b.byKey[slug]
	if !ok {
		rb = &resourceBuilder{
			res:  cmdtree.Resource{Name: slug, DisplayName: tag, Ops: []cmdtree.Operation{}},
			used: nameSet{},
		}
		b.byKey[slug] = rb
		b.order = append(b.order, slug)
	}
	entry.Name = rb.used.claim(Slug(entry.DisplayName), method)
	entry.Parameters = append([]cmdtree.ParamDef{}, entry.Parameters...)
	rb.res.Ops = append(rb.res.Ops, entry)
}

func (b *treeBuilder) resources() []cmdtree.Resource {
	out := make([]cmdtree.Resource, 0, len(b.order))
	for _, slug := range b.order {
		out = append(out, b.byKey[slug].res)
	}
	return out
}
