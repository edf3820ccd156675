package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/cmdtree/internal/cmdtree"
	"github.com/mark3labs/cmdtree/internal/compiler"
	"github.com/mark3labs/cmdtree/internal/logging"
	"github.com/mark3labs/cmdtree/internal/openapi"
)

const defaultOut = "command_tree.json"

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input           string
	Out             string
	Format          string
	IncludeTags     []string
	ExcludeTags     []string
	Methods         []string
	Paths           []string
	DefaultEndpoint string
	DefaultVersion  *uint32
	ConfigPath      string
	DryRun          bool
	Force           bool
	Verbose         bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	format       cmdtree.Format
	pathPatterns []*regexp.Regexp
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{Out: defaultOut}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile an OpenAPI/Swagger document into a command tree",
		Long: "Compile an OpenAPI/Swagger document into a command tree artifact. " +
			"Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  cmdtree generate --input openapi.yaml --out command_tree.json
  cmdtree generate --input https://example.com/openapi.json --include-tags zones,dns --dry-run
  cmdtree --config cmdtree.yaml generate --force`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the Swagger/OpenAPI document (- for stdin)")
	flags.String("out", "", "Output file for the command tree (- for stdout); defaults to "+defaultOut)
	flags.String("format", "", "Output format (json|yaml); inferred from --out when omitted")
	flags.StringSlice("include-tags", nil, "Only include resources with these tags")
	flags.StringSlice("exclude-tags", nil, "Exclude resources with these tags")
	flags.StringSlice("methods", nil, "Only include these HTTP methods")
	flags.StringSlice("paths", nil, "Only include paths matching any of these regular expressions")
	flags.String("default-endpoint", "", "Endpoint used when the document declares no server")
	flags.Uint32("default-version", 0, "Version used when info.version has no numeric major part")
	flags.Bool("dry-run", false, "Print a summary without writing the command tree")
	flags.Bool("force", false, "Overwrite an existing output file")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()
	cfg.Stdin = cmd.InOrStdin()
	cfg.Stdout = cmd.OutOrStdout()
	cfg.Stderr = cmd.ErrOrStderr()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	for name, dst := range map[string]*string{
		"input":            &cfg.Input,
		"out":              &cfg.Out,
		"format":           &cfg.Format,
		"default-endpoint": &cfg.DefaultEndpoint,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(value)
	}
	for name, dst := range map[string]*[]string{
		"include-tags": &cfg.IncludeTags,
		"exclude-tags": &cfg.ExcludeTags,
		"methods":      &cfg.Methods,
		"paths":        &cfg.Paths,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetStringSlice(name)
		if err != nil {
			return err
		}
		*dst = sanitizeList(value)
	}
	for name, dst := range map[string]*bool{
		"dry-run": &cfg.DryRun,
		"force":   &cfg.Force,
		"verbose": &cfg.Verbose,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetBool(name)
		if err != nil {
			return err
		}
		*dst = value
	}
	if flags.Changed("default-version") {
		value, err := flags.GetUint32("default-version")
		if err != nil {
			return err
		}
		cfg.DefaultVersion = &value
	}
	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	if c.Out == "" {
		c.Out = defaultOut
	}
	c.Format = strings.TrimSpace(c.Format)
	c.DefaultEndpoint = strings.TrimSpace(c.DefaultEndpoint)
	c.IncludeTags = sanitizeList(c.IncludeTags)
	c.ExcludeTags = sanitizeList(c.ExcludeTags)
	c.Paths = sanitizeList(c.Paths)
	methods := sanitizeList(c.Methods)
	for i, m := range methods {
		methods[i] = strings.ToLower(m)
	}
	c.Methods = methods
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return usageErrorf("generate: --input is required (set via flag or config file)")
	}

	if c.Format == "" {
		if c.Out == "-" {
			c.format = cmdtree.FormatJSON
		} else {
			c.format = cmdtree.FormatFromPath(c.Out)
		}
	} else {
		f, err := cmdtree.ParseFormat(c.Format)
		if err != nil {
			return usageErrorf("generate: unsupported --format %q (allowed: json, yaml)", c.Format)
		}
		c.format = f
	}

	for _, m := range c.Methods {
		if !isKnownMethod(m) {
			return usageErrorf("generate: unsupported method %q (allowed: %s)", m, strings.Join(compiler.Methods, ", "))
		}
	}

	c.pathPatterns = c.pathPatterns[:0]
	for _, p := range c.Paths {
		re, err := regexp.Compile(p)
		if err != nil {
			return wrapUsage(err, "", "generate: invalid --paths pattern %q: %v", p, err)
		}
		c.pathPatterns = append(c.pathPatterns, re)
	}

	overlap := intersectSlugs(c.IncludeTags, c.ExcludeTags)
	if len(overlap) > 0 {
		return usageErrorf("generate: include/exclude tags overlap: %s", strings.Join(overlap, ", "))
	}

	return nil
}

func (c *GenerateConfig) compileOptions() []compiler.Option {
	opts := []compiler.Option{
		compiler.WithIncludeTags(c.IncludeTags),
		compiler.WithExcludeTags(c.ExcludeTags),
		compiler.WithMethods(c.Methods),
		compiler.WithPathPatterns(c.pathPatterns...),
		compiler.WithDefaultEndpoint(c.DefaultEndpoint),
	}
	if c.DefaultVersion != nil {
		opts = append(opts, compiler.WithDefaultVersion(*c.DefaultVersion))
	}
	return opts
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	stdout, stderr := cfg.Stdout, cfg.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := logging.New(stderr, cfg.Verbose, "cmdtree")

	// 1) Load the document (file, http/https URL, or stdin); Swagger 2.0 is converted.
	loadOpts := []openapi.Option{openapi.WithLogger(logger)}
	if cfg.Stdin != nil {
		loadOpts = append(loadOpts, openapi.WithStdin(cfg.Stdin))
	}
	doc, err := openapi.Load(ctx, cfg.Input, loadOpts...)
	if err != nil {
		var le *openapi.LoadError
		if errors.As(err, &le) {
			if le.Location == "" {
				return wrapUsage(err, "", "openapi: %s", le.Message)
			}
			return wrapUsage(err, "", "openapi: %s\nLocation: %s", le.Message, le.Location)
		}
		return err
	}
	if doc.Converted {
		logger.Info("converted Swagger 2.0 document to OpenAPI 3", "location", doc.Location)
	}

	// 2) Compile with filters and metadata defaults.
	tree, err := compiler.Compile(doc.Root, cfg.compileOptions()...)
	if err != nil {
		if errors.Is(err, compiler.ErrMissingPaths) {
			return wrapUsage(err, "", "%v\nLocation: %s", err, doc.Location)
		}
		return fmt.Errorf("compile: %w", err)
	}
	if err := tree.Validate(); err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	stats := tree.Stats()
	logger.Info("compiled command tree",
		"resources", stats.Resources, "operations", stats.Operations, "parameters", stats.Parameters)

	// 3) Emit.
	if cfg.DryRun {
		target := "stdout"
		if cfg.Out != "-" {
			target = absPath(cfg.Out)
		}
		fmt.Fprintf(stdout, "Planned write to %s (%s):\n", target, cfg.format)
		printSummary(stdout, tree)
		return nil
	}
	if cfg.Out == "-" {
		return cmdtree.Encode(stdout, tree, cfg.format)
	}
	if err := cmdtree.Save(cfg.Out, tree, cfg.format, cfg.Force); err != nil {
		return wrapOutputError(err, absPath(cfg.Out))
	}
	logger.Info("wrote command tree", "path", absPath(cfg.Out), "format", string(cfg.format))
	return nil
}

// printSummary renders one row per resource.
func printSummary(w io.Writer, tree *cmdtree.CommandTree) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Resource", "Display Name", "Operations", "Parameters"})
	table.SetAutoWrapText(false)
	for _, res := range tree.Resources {
		params := 0
		for _, op := range res.Ops {
			params += len(op.Parameters)
		}
		table.Append([]string{res.Name, res.DisplayName, strconv.Itoa(len(res.Ops)), strconv.Itoa(params)})
	}
	stats := tree.Stats()
	table.SetFooter([]string{"Total", "", strconv.Itoa(stats.Operations), strconv.Itoa(stats.Parameters)})
	table.Render()
}

func absPath(p string) string {
	if ap, err := filepath.Abs(p); err == nil {
		return ap
	}
	return p
}

func wrapOutputError(err error, out string) error {
	if errors.Is(err, cmdtree.ErrExists) {
		return wrapUsage(err, "", "generate: %q already exists (use --force to overwrite)", out)
	}
	// Provide clearer guidance for common FS failures.
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") {
		return wrapUsage(err, "choose a different --out or check directory permissions", "generate: output error for %s: %v", out, err)
	}
	return err
}

func isKnownMethod(m string) bool {
	for _, known := range compiler.Methods {
		if m == known {
			return true
		}
	}
	return false
}

func sanitizeList(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// intersectSlugs compares tags the way the compiler matches them.
func intersectSlugs(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(a))
	for _, item := range a {
		set[compiler.Slug(item)] = struct{}{}
	}
	var result []string
	for _, item := range b {
		if _, ok := set[compiler.Slug(item)]; ok {
			result = append(result, item)
		}
	}
	return result
}

func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return wrapUsage(err, "", "read config file %q: %v", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return wrapUsage(err, "", "parse config file %q: %v", path, err)
	}

	for key, value := range raw {
		fieldErr := func(err error) error {
			return wrapUsage(err, "", "config field %q: %v", key, err)
		}
		nk := normalizeKey(key)
		switch nk {
		case "input", "out", "format", "defaultendpoint":
			str, err := valueAsString(value)
			if err != nil {
				return fieldErr(err)
			}
			switch nk {
			case "input":
				cfg.Input = str
			case "out":
				cfg.Out = str
			case "format":
				cfg.Format = str
			default:
				cfg.DefaultEndpoint = str
			}
		case "includetags", "excludetags", "methods", "paths":
			list, err := valueAsStringSlice(value)
			if err != nil {
				return fieldErr(err)
			}
			switch nk {
			case "includetags":
				cfg.IncludeTags = sanitizeList(list)
			case "excludetags":
				cfg.ExcludeTags = sanitizeList(list)
			case "methods":
				cfg.Methods = sanitizeList(list)
			default:
				cfg.Paths = sanitizeList(list)
			}
		case "defaultversion":
			v, err := valueAsUint32(value)
			if err != nil {
				return fieldErr(err)
			}
			cfg.DefaultVersion = v
		case "dryrun", "force", "verbose":
			val, err := valueAsBool(value)
			if err != nil {
				return fieldErr(err)
			}
			switch nk {
			case "dryrun":
				cfg.DryRun = val
			case "force":
				cfg.Force = val
			default:
				cfg.Verbose = val
			}
		default:
			return usageErrorf("config file %q: unknown field %q", path, key)
		}
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsUint32(v any) (*uint32, error) {
	var n uint64
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int:
		if val < 0 {
			return nil, fmt.Errorf("expected non-negative integer, got %d", val)
		}
		n = uint64(val)
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(val), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", val)
		}
		n = parsed
	default:
		return nil, fmt.Errorf("expected integer, got %T", v)
	}
	if n > 1<<32-1 {
		return nil, fmt.Errorf("value %d out of range", n)
	}
	out := uint32(n)
	return &out, nil
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
