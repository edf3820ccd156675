package apicli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/cmdtree/internal/client"
	"github.com/mark3labs/cmdtree/internal/cmdtree"
)

// buildRequest turns parsed flags into a request for op. Path parameters are
// substituted into the template, query and header parameters are routed by
// location, and any other location is ignored.
func buildRequest(cmd *cobra.Command, op cmdtree.Operation, bindings []paramBinding, cfg Config) (client.Request, error) {
	req := client.Request{Method: op.Method, Path: op.Path}

	for _, b := range bindings {
		p := b.param
		switch p.Location {
		case cmdtree.LocationPath:
			value, ok, err := singleValue(cmd, b, cfg)
			if err != nil {
				return client.Request{}, err
			}
			if !ok {
				return client.Request{}, fmt.Errorf("missing path param %s (--%s)", p.Name, flagHint(b))
			}
			req.Path = strings.ReplaceAll(req.Path, "{"+p.Name+"}", url.PathEscape(value))
		case cmdtree.LocationQuery, cmdtree.LocationHeader:
			values, err := paramValues(cmd, b, cfg)
			if err != nil {
				return client.Request{}, err
			}
			if p.Required && len(values) == 0 {
				return client.Request{}, fmt.Errorf("missing %s param %s (--%s)", p.Location, p.Name, flagHint(b))
			}
			for _, v := range values {
				kv := client.KV{Name: p.Name, Value: v}
				if p.Location == cmdtree.LocationQuery {
					req.Query = append(req.Query, kv)
				} else {
					req.Headers = append(req.Headers, kv)
				}
			}
		}
	}

	if op.HasBody {
		body, err := readBody(cmd)
		if err != nil {
			return client.Request{}, err
		}
		req.Body = body
	}
	return req, nil
}

func flagHint(b paramBinding) string {
	if b.flag == "" {
		return b.param.Flag
	}
	return b.flag
}

// singleValue returns the flag value, else the configured default.
func singleValue(cmd *cobra.Command, b paramBinding, cfg Config) (string, bool, error) {
	values, err := paramValues(cmd, b, cfg)
	if err != nil || len(values) == 0 {
		return "", false, err
	}
	return values[0], true, nil
}

// paramValues collects the values given for a parameter. List parameters
// accept repeated flags and comma-separated values. When the flag is unset
// the configured default for well-known identifiers applies.
func paramValues(cmd *cobra.Command, b paramBinding, cfg Config) ([]string, error) {
	if b.flag != "" && cmd.Flags().Changed(b.flag) {
		if b.param.List {
			raw, err := cmd.Flags().GetStringArray(b.flag)
			if err != nil {
				return nil, err
			}
			var out []string
			for _, item := range raw {
				out = append(out, splitList(item)...)
			}
			return out, nil
		}
		v, err := cmd.Flags().GetString(b.flag)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	}
	if v, ok := cfg.defaultForParam(b.param.Name); ok {
		return []string{v}, nil
	}
	return nil, nil
}

func splitList(value string) []string {
	if !strings.Contains(value, ",") {
		return []string{value}
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func addBodyFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagBody, "", "JSON request body")
	cmd.Flags().String(flagBodyFile, "", "Read the JSON request body from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive(flagBody, flagBodyFile)
}

// readBody returns the validated JSON body from --body or --body-file, or nil
// when neither is set.
func readBody(cmd *cobra.Command) (any, error) {
	var (
		raw    []byte
		source string
	)
	switch {
	case cmd.Flags().Changed(flagBody):
		v, _ := cmd.Flags().GetString(flagBody)
		raw, source = []byte(v), "--body"
	case cmd.Flags().Changed(flagBodyFile):
		path, _ := cmd.Flags().GetString(flagBodyFile)
		var err error
		if path == "-" {
			raw, err = io.ReadAll(cmd.InOrStdin())
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("read body file %s: %w", path, err)
		}
		source = path
	default:
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON body in %s", source)
	}
	return json.RawMessage(raw), nil
}

// headerFlags parses the global --header values.
func headerFlags(cmd *cobra.Command) ([]client.KV, error) {
	values, err := cmd.Flags().GetStringArray(flagHeader)
	if err != nil {
		return nil, err
	}
	return parsePairs("header", values)
}

// parsePairs splits NAME=VALUE or NAME:VALUE entries at the first separator.
func parsePairs(kind string, values []string) ([]client.KV, error) {
	out := make([]client.KV, 0, len(values))
	for _, v := range values {
		i := strings.IndexAny(v, "=:")
		if i <= 0 || strings.TrimSpace(v[:i]) == "" {
			return nil, fmt.Errorf("invalid %s %q (want NAME=VALUE or NAME:VALUE)", kind, v)
		}
		out = append(out, client.KV{Name: strings.TrimSpace(v[:i]), Value: strings.TrimSpace(v[i+1:])})
	}
	return out, nil
}
