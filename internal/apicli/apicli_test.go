package apicli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mark3labs/cmdtree/internal/client"
	"github.com/mark3labs/cmdtree/internal/cmdtree"
)

func strPtr(s string) *string { return &s }

func testTree() *cmdtree.CommandTree {
	return &cmdtree.CommandTree{
		Version:  4,
		Endpoint: "http://unused.invalid",
		Resources: []cmdtree.Resource{
			{
				Name:        "dns",
				DisplayName: "DNS",
				Ops: []cmdtree.Operation{
					{
						Name:        "dns-records-list",
						DisplayName: "dns-records-list",
						Method:      "GET",
						Path:        "/zones/{zone_id}/dns_records",
						Summary:     strPtr("List DNS records"),
						Parameters: []cmdtree.ParamDef{
							{Name: "X-Trace", Flag: "x-trace", Location: cmdtree.LocationHeader},
							{Name: "pretty", Flag: "pretty", Location: cmdtree.LocationQuery},
							{Name: "type", Flag: "type", Location: cmdtree.LocationQuery, List: true},
							{Name: "zone_id", Flag: "zone-id", Location: cmdtree.LocationPath, Required: true},
							{Name: "session", Flag: "session", Location: "cookie"},
						},
					},
					{
						Name:        "dns-records-create",
						DisplayName: "dns-records-create",
						Method:      "POST",
						Path:        "/zones/{zone_id}/dns_records",
						Parameters: []cmdtree.ParamDef{
							{Name: "zone_id", Flag: "zone-id", Location: cmdtree.LocationPath, Required: true},
						},
						HasBody: true,
					},
					{
						Name:        "dns-records-export",
						DisplayName: "dns-records-export",
						Method:      "GET",
						Path:        "/zones/export",
						Parameters: []cmdtree.ParamDef{
							{Name: "format", Flag: "format", Location: cmdtree.LocationQuery, Required: true},
						},
					},
				},
			},
			{Name: "list", DisplayName: "Clashes with a built-in", Ops: []cmdtree.Operation{{Name: "x", Method: "GET", Path: "/x"}}},
			{Name: "", DisplayName: "Unnameable", Ops: []cmdtree.Operation{}},
		},
	}
}

type captured struct {
	method string
	path   string
	query  map[string][]string
	header http.Header
	body   []byte
}

func newServer(t *testing.T, status int, reply string) (*httptest.Server, <-chan captured) {
	t.Helper()
	seen := make(chan captured, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- captured{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			query:  r.URL.Query(),
			header: r.Header.Clone(),
			body:   body,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func run(t *testing.T, cfg Config, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), testTree(), cfg, args, &stdout, &stderr)
	return stdout.String(), err
}

func configFor(srv *httptest.Server) Config {
	return Config{APIToken: "secret", APIURL: srv.URL, UserAgent: "apicli-test", Timeout: 5 * time.Second}
}

func TestOperation_BuildsRequestFromFlags(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{"success":true,"result":[{"id":"r1"}]}`)

	out, err := run(t, configFor(srv), "dns", "dns-records-list",
		"--zone-id", "z/1",
		"--type", "A, AAAA",
		"--type", "MX",
		"--pretty-query", "yes",
		"--x-trace", "t-1",
		"--header", "X-Extra: one",
	)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"r1"}]`+"\n", out)

	got := <-seen
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/zones/z%2F1/dns_records", got.path)
	assert.Equal(t, []string{"A", "AAAA", "MX"}, got.query["type"])
	assert.Equal(t, []string{"yes"}, got.query["pretty"])
	assert.NotContains(t, got.query, "session")
	assert.Equal(t, "t-1", got.header.Get("X-Trace"))
	assert.Equal(t, "one", got.header.Get("X-Extra"))
	assert.Equal(t, "Bearer secret", got.header.Get("Authorization"))
	assert.Equal(t, "apicli-test", got.header.Get("User-Agent"))
}

func TestOperation_GlobalAndParamHeadersAreBothSent(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)

	_, err := run(t, configFor(srv), "dns", "dns-records-list",
		"--zone-id", "z1",
		"--x-trace", "param",
		"--header", "X-Trace: global",
	)
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, []string{"global", "param"}, got.header.Values("X-Trace"))
}

func TestSend_TimeoutSurvivesCustomHTTPClient(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	cfg := configFor(srv)
	cfg.Timeout = 100 * time.Millisecond
	var stdout bytes.Buffer
	start := time.Now()
	err := Execute(context.Background(), testTree(), cfg, []string{"api", "GET", "/slow"}, &stdout, io.Discard,
		WithClientOptions(client.WithHTTPClient(&http.Client{})))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOperation_PathParamFromConfiguredDefault(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{"result":null}`)
	cfg := configFor(srv)
	cfg.ZoneID = "zone-from-env"

	out, err := run(t, cfg, "dns", "dns-records-list")
	require.NoError(t, err)
	assert.Equal(t, "null\n", out)
	assert.Equal(t, "/zones/zone-from-env/dns_records", (<-seen).path)
}

func TestOperation_FlagBeatsConfiguredDefault(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)
	cfg := configFor(srv)
	cfg.ZoneID = "zone-from-env"

	_, err := run(t, cfg, "dns", "dns-records-list", "--zone-id", "explicit")
	require.NoError(t, err)
	assert.Equal(t, "/zones/explicit/dns_records", (<-seen).path)
}

func TestOperation_MissingParams(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)

	_, err := run(t, configFor(srv), "dns", "dns-records-list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing path param zone_id")

	_, err = run(t, configFor(srv), "dns", "dns-records-export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing query param format")

	assert.Empty(t, seen, "no request is sent")
}

func TestOperation_Body(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{"result":{"id":"new"}}`)

	out, err := run(t, configFor(srv), "dns", "dns-records-create", "--zone-id", "z1", "--body", `{"type":"A","name":"www"}`, "--pretty")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"id\": \"new\"\n}\n", out)

	got := <-seen
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "application/json", got.header.Get("Content-Type"))
	assert.JSONEq(t, `{"type":"A","name":"www"}`, string(got.body))
}

func TestOperation_BodyFile(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)
	path := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ttl": 300}`), 0o600))

	_, err := run(t, configFor(srv), "dns", "dns-records-create", "--zone-id", "z1", "--body-file", path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ttl":300}`, string((<-seen).body))
}

func TestOperation_BodyErrors(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)
	cfg := configFor(srv)

	_, err := run(t, cfg, "dns", "dns-records-create", "--zone-id", "z1", "--body", "{}", "--body-file", "x.json")
	assert.Error(t, err, "body flags are mutually exclusive")

	_, err = run(t, cfg, "dns", "dns-records-create", "--zone-id", "z1", "--body", "{not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON body")

	_, err = run(t, cfg, "dns", "dns-records-list", "--zone-id", "z1", "--body", "{}")
	assert.Error(t, err, "operations without a body have no --body flag")

	assert.Empty(t, seen)
}

func TestOperation_HTTPErrorPrintsBodyThenFails(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusNotFound, `{"success":false,"errors":[{"code":7003}]}`)

	out, err := run(t, configFor(srv), "dns", "dns-records-list", "--zone-id", "missing")
	require.Error(t, err)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, "http 404", err.Error())
	assert.JSONEq(t, `{"success":false,"errors":[{"code":7003}]}`, out, "no result field, so the whole body is printed")
}

func TestOperation_RawKeepsEnvelope(t *testing.T) {
	t.Parallel()
	srv, _ := newServer(t, http.StatusOK, `{"success":true,"result":{"id":"r1"}}`)

	out, err := run(t, configFor(srv), "--raw", "dns", "dns-records-list", "--zone-id", "z")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"result":{"id":"r1"}}`, out)
}

func TestOperation_MissingTokenFailsBeforeRequest(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)
	cfg := configFor(srv)
	cfg.APIToken = ""

	_, err := run(t, cfg, "dns", "dns-records-list", "--zone-id", "z")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Empty(t, seen)
}

func TestOperation_FallsBackToTreeEndpoint(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{}`)
	tree := testTree()
	tree.Endpoint = srv.URL + "/client/v4"

	var stdout bytes.Buffer
	err := Execute(context.Background(), tree, Config{APIToken: "t"}, []string{"dns", "dns-records-list", "--zone-id", "z"}, &stdout, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "/client/v4/zones/z/dns_records", (<-seen).path)
}

func TestAPICommand(t *testing.T) {
	t.Parallel()
	srv, seen := newServer(t, http.StatusOK, `{"result":"ok"}`)

	out, err := run(t, configFor(srv), "api", "patch", "/zones/z1", "--query", "a=1", "--query", "b:2", "--body", `{"paused":true}`)
	require.NoError(t, err)
	assert.Equal(t, "\"ok\"\n", out)

	got := <-seen
	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, "/zones/z1", got.path)
	assert.Equal(t, []string{"1"}, got.query["a"])
	assert.Equal(t, []string{"2"}, got.query["b"])
	assert.JSONEq(t, `{"paused":true}`, string(got.body))

	_, err = run(t, configFor(srv), "api", "GET", "/x", "--query", "novalue")
	assert.Error(t, err)
	_, err = run(t, configFor(srv), "api", "GET")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, Config{}, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "dns-records-list")
	assert.Contains(t, out, "/zones/{zone_id}/dns_records")
	assert.Contains(t, strings.ToUpper(out), "RESOURCE")

	out, err = run(t, Config{}, "list", "--json")
	require.NoError(t, err)
	var entries []listEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 3)
	assert.Equal(t, "dns", entries[0].Resource)
	assert.Equal(t, "DNS", entries[0].Display)
	assert.Equal(t, []string{"dns-records-list", "dns-records-create", "dns-records-export"}, entries[0].Ops)
}

func TestDescribeCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, Config{}, "describe", "dns", "dns-records-list")
	require.NoError(t, err)
	assert.Contains(t, out, "GET /zones/{zone_id}/dns_records\n")
	assert.Contains(t, out, "summary: List DNS records\n")
	assert.Contains(t, out, "  --pretty-query (query, required: false)\n")
	assert.Contains(t, out, "  --zone-id (path, required: true)\n")

	out, err = run(t, Config{}, "describe", "dns", "dns-records-create", "--json")
	require.NoError(t, err)
	var op cmdtree.Operation
	require.NoError(t, json.Unmarshal([]byte(out), &op))
	assert.True(t, op.HasBody)
	assert.Nil(t, op.Summary)

	_, err = run(t, Config{}, "describe", "dns", "nope")
	assert.Error(t, err)
}

func TestTreeCommand(t *testing.T) {
	t.Parallel()
	out, err := run(t, Config{}, "tree")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dns (DNS)\n  dns-records-list (dns-records-list)\n"))

	out, err = run(t, Config{}, "tree", "--json")
	require.NoError(t, err)
	var tree cmdtree.CommandTree
	require.NoError(t, json.Unmarshal([]byte(out), &tree))
	assert.Len(t, tree.Resources, 3)
}

func TestResourceCommands_SkipUnusableNames(t *testing.T) {
	t.Parallel()
	root := NewRootCmd(testTree(), Config{})
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "dns")
	assert.NotContains(t, names, "")

	listCmd, _, err := root.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "List resources and operations", listCmd.Short, "built-ins win over clashing resources")
}

func TestBindParams(t *testing.T) {
	t.Parallel()
	bindings := bindParams([]cmdtree.ParamDef{
		{Name: "id", Flag: "id", Location: "path"},
		{Name: "id", Flag: "id", Location: "query"},
		{Name: "id", Flag: "id", Location: "header"},
		{Name: "Id", Flag: "id", Location: "header"},
		{Name: "raw", Flag: "raw", Location: "query"},
		{Name: "$", Flag: "", Location: "query"},
	})
	var flags []string
	for _, b := range bindings {
		flags = append(flags, b.flag)
	}
	assert.Equal(t, []string{"id", "id-query", "id-header", "", "raw-query", ""}, flags)
}

func TestLoadConfigFrom(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfigFrom(map[string]string{
		"APICLI_API_TOKEN":  "tok",
		"APICLI_ACCOUNT_ID": "acc",
		"APICLI_TIMEOUT":    "2s",
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.APIToken)
	assert.Equal(t, "command_tree.json", cfg.CommandTree)
	assert.Equal(t, "apicli", cfg.UserAgent)
	assert.Equal(t, 2*time.Second, cfg.Timeout)

	v, ok := cfg.defaultForParam("accountId")
	assert.True(t, ok)
	assert.Equal(t, "acc", v)
	_, ok = cfg.defaultForParam("zone_id")
	assert.False(t, ok, "unset defaults do not apply")

	_, err = LoadConfigFrom(map[string]string{"APICLI_TIMEOUT": "soon"})
	assert.Error(t, err)
}

func TestFormatOutput(t *testing.T) {
	t.Parallel()
	body := map[string]any{"success": true, "result": []any{"a"}}
	assert.Equal(t, []any{"a"}, formatOutput(body, false))
	assert.Equal(t, body, formatOutput(body, true))
	assert.Equal(t, "plain text", formatOutput("plain text", false))
}

func TestParsePairs(t *testing.T) {
	t.Parallel()
	pairs, err := parsePairs("header", []string{"X-A: 1", "X-B=2", "Auth: Bearer a=b"})
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, "X-A", pairs[0].Name)
	assert.Equal(t, "1", pairs[0].Value)
	assert.Equal(t, "2", pairs[1].Value)
	assert.Equal(t, "Bearer a=b", pairs[2].Value)

	_, err = parsePairs("header", []string{"=x"})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b,"))
	assert.Equal(t, []string{""}, splitList(""))
}
