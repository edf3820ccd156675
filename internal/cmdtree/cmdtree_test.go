package cmdtree

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleTree() *CommandTree {
	return &CommandTree{
		Version:  4,
		Endpoint: "https://api.example.com/v4",
		Resources: []Resource{
			{
				Name:        "dns",
				DisplayName: "DNS",
				Ops: []Operation{
					{
						Name:        "dns-records-list",
						DisplayName: "dns-records-list",
						Method:      "GET",
						Path:        "/zones/{zone_id}/dns_records",
						Summary:     strPtr("List DNS records"),
						Parameters: []ParamDef{
							{Name: "zone_id", Flag: "zone-id", Location: LocationPath, Required: true, SchemaType: strPtr("string")},
							{Name: "type", Flag: "type", Location: LocationQuery, List: true},
						},
					},
					{
						Name:        "dns-records-create",
						DisplayName: "dns-records-create",
						Method:      "POST",
						Path:        "/zones/{zone_id}/dns_records",
						Parameters:  []ParamDef{},
						HasBody:     true,
					},
				},
			},
		},
	}
}

func TestEncode_JSONFieldNamesAndNulls(t *testing.T) {
	t.Parallel()
	data, err := Marshal(sampleTree(), FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(4), raw["version"])

	res := raw["resources"].([]any)[0].(map[string]any)
	assert.Equal(t, "DNS", res["display_name"])
	create := res["ops"].([]any)[1].(map[string]any)
	assert.Contains(t, create, "summary")
	assert.Nil(t, create["summary"], "absent summary is serialized as null")
	assert.Equal(t, true, create["has_body"])
	assert.Equal(t, []any{}, create["parameters"])

	list := res["ops"].([]any)[0].(map[string]any)
	param := list["parameters"].([]any)[1].(map[string]any)
	for _, key := range []string{"name", "flag", "location", "required", "list", "schema_type", "description"} {
		assert.Contains(t, param, key)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"tree.json", "tree.yaml", "tree.yml"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "nested", name)
			tree := sampleTree()
			require.NoError(t, Save(path, tree, FormatFromPath(path), false))

			loaded, err := Load(path)
			require.NoError(t, err)

			want, err := Marshal(tree, FormatJSON)
			require.NoError(t, err)
			got, err := Marshal(loaded, FormatJSON)
			require.NoError(t, err)
			assert.JSONEq(t, string(want), string(got))
		})
	}
}

func TestSave_RefusesOverwriteWithoutForce(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, os.WriteFile(path, []byte("keep"), 0o600))

	err := Save(path, sampleTree(), FormatJSON, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExists))
	data, _ := os.ReadFile(path)
	assert.Equal(t, "keep", string(data))

	require.NoError(t, Save(path, sampleTree(), FormatJSON, true))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dns", loaded.Resources[0].Name)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Format{"json": FormatJSON, "YAML": FormatYAML, " yml ": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("toml")
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestFind(t *testing.T) {
	t.Parallel()
	tree := sampleTree()
	op, ok := tree.Find("dns", "dns-records-create")
	require.True(t, ok)
	assert.Equal(t, "POST", op.Method)

	_, ok = tree.Find("dns", "nope")
	assert.False(t, ok)
	_, ok = tree.Find("zones", "dns-records-create")
	assert.False(t, ok)

	var nilTree *CommandTree
	_, ok = nilTree.Find("dns", "dns-records-list")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Stats{Resources: 1, Operations: 2, Parameters: 2}, sampleTree().Stats())
}

func TestValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, sampleTree().Validate())

	dupOp := sampleTree()
	dupOp.Resources[0].Ops[1].Name = "dns-records-list"
	var dn *DuplicateNameError
	require.True(t, errors.As(dupOp.Validate(), &dn))
	assert.Equal(t, "dns", dn.Resource)
	assert.Equal(t, "dns-records-list", dn.Name)

	dupRes := sampleTree()
	dupRes.Resources = append(dupRes.Resources, Resource{Name: "dns"})
	require.True(t, errors.As(dupRes.Validate(), &dn))
	assert.Empty(t, dn.Resource)

	// The same operation name in two resources is fine.
	twoRes := sampleTree()
	other := twoRes.Resources[0]
	other.Name = "records"
	twoRes.Resources = append(twoRes.Resources, other)
	assert.NoError(t, twoRes.Validate())
}
