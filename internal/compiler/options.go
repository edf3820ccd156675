package compiler

import (
	"regexp"
	"strings"
)

const (
	// DefaultEndpoint is used when the document declares no usable server.
	DefaultEndpoint = "https://api.cloudflare.com/client/v4"
	// DefaultVersion is used when info.version has no numeric major part.
	DefaultVersion uint32 = 4
)

// Methods lists the HTTP methods the compiler looks for, in traversal order.
var Methods = []string{"get", "post", "put", "patch", "delete", "options", "head"}

// Option configures a compilation.
type Option func(*config)

type config struct {
	defaultEndpoint string
	defaultVersion  uint32
	includeTags     map[string]struct{}
	excludeTags     map[string]struct{}
	methods         map[string]struct{}
	pathRes         []*regexp.Regexp
}

func newConfig(opts []Option) *config {
	cfg := &config{
		defaultEndpoint: DefaultEndpoint,
		defaultVersion:  DefaultVersion,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithDefaultEndpoint overrides the fallback base URL.
func WithDefaultEndpoint(endpoint string) Option {
	return func(c *config) {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			c.defaultEndpoint = endpoint
		}
	}
}

// WithDefaultVersion overrides the fallback major version.
func WithDefaultVersion(v uint32) Option {
	return func(c *config) { c.defaultVersion = v }
}

// WithIncludeTags keeps only resources whose tag is listed. Tags are compared
// by slug, so "DNS Records" and "dns-records" match.
func WithIncludeTags(tags []string) Option {
	return func(c *config) { c.includeTags = addSlugs(c.includeTags, tags) }
}

// WithExcludeTags drops resources whose tag is listed.
func WithExcludeTags(tags []string) Option {
	return func(c *config) { c.excludeTags = addSlugs(c.excludeTags, tags) }
}

// WithMethods keeps only operations using one of the given methods.
func WithMethods(methods []string) Option {
	return func(c *config) {
		for _, m := range methods {
			m = strings.ToLower(strings.TrimSpace(m))
			if m == "" {
				continue
			}
			if c.methods == nil {
				c.methods = make(map[string]struct{}, len(methods))
			}
			c.methods[m] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only paths matching at least one pattern.
func WithPathPatterns(patterns ...*regexp.Regexp) Option {
	return func(c *config) {
		for _, re := range patterns {
			if re != nil {
				c.pathRes = append(c.pathRes, re)
			}
		}
	}
}

func addSlugs(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		s := Slug(t)
		if s == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[s] = struct{}{}
	}
	return set
}

func (c *config) allowMethod(m string) bool {
	if len(c.methods) == 0 {
		return true
	}
	_, ok := c.methods[m]
	return ok
}

func (c *config) allowPath(p string) bool {
	if len(c.pathRes) == 0 {
		return true
	}
	for _, re := range c.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func (c *config) allowResource(slug string) bool {
	if len(c.includeTags) > 0 {
		if _, ok := c.includeTags[slug]; !ok {
			return false
		}
	}
	_, blocked := c.excludeTags[slug]
	return !blocked
}
