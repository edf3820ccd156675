package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ConversionError ErrorCode = "ConversionError"
)

// LoadError is a structured loader error carrying where the document came from.
type LoadError struct {
	Code     ErrorCode
	Message  string
	Location string // file path or URL
	Cause    error
}

func (e *LoadError) Error() string { return e.Message }
func (e *LoadError) Unwrap() error { return e.Cause }

// Document is a parsed API description ready for compilation.
type Document struct {
	Root     Value
	Location string
	// Converted is set when the source was Swagger 2.0 and went through
	// openapi2conv before parsing.
	Converted bool
}

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// Stdin is read when the input is "-".
	Stdin  io.Reader
	Logger *log.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 10 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
		Stdin:       os.Stdin,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(s *Settings) { s.BackoffBase = d } }
func WithStdin(r io.Reader) Option { return func(s *Settings) { s.Stdin = r } }
func WithLogger(l *log.Logger) Option { return func(s *Settings) { s.Logger = l } }

// Load reads an API description from a file path, an http/https URL, or
// stdin ("-") and parses it. Swagger 2.0 input is converted to OpenAPI 3.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, &LoadError{Code: InputError, Message: "openapi: input is empty"}
	}

	settings := settingsFrom(opts)

	if input == "-" {
		if settings.Stdin == nil {
			return nil, &LoadError{Code: InputError, Message: "openapi: no stdin available", Location: input}
		}
		raw, err := io.ReadAll(settings.Stdin)
		if err != nil {
			return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("read stdin: %v", err), Location: "<stdin>", Cause: err}
		}
		return loadBytes(raw, "<stdin>", settings)
	}

	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""
	if isURL || (uerr == nil && strings.EqualFold(u.Scheme, "file")) {
		scheme := strings.ToLower(u.Scheme)
		if scheme == "file" {
			return nil, &LoadError{Code: InputError, Message: "openapi: file:// URLs are not supported, pass a path instead", Location: input}
		}
		if scheme != "http" && scheme != "https" {
			return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("openapi: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		raw, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, &LoadError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		return loadBytes(raw, input, settings)
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, &LoadError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}
	return loadBytes(raw, abs, settings)
}

// LoadBytes parses an in-memory API description. location is only used in
// error messages.
func LoadBytes(ctx context.Context, data []byte, location string, opts ...Option) (*Document, error) {
	_ = ctx
	return loadBytes(data, location, settingsFrom(opts))
}

func settingsFrom(opts []Option) Settings {
	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = log.New(io.Discard)
	}
	return settings
}

func loadBytes(raw []byte, location string, settings Settings) (*Document, error) {
	root, err := Parse(raw)
	if err != nil {
		return nil, &LoadError{Code: ParseError, Message: fmt.Sprintf("parse %s: %v", location, err), Location: location, Cause: err}
	}

	if !isSwagger2(root) {
		settings.Logger.Debug("parsed document", "location", location, "paths", root.Get("paths").Len())
		return &Document{Root: root, Location: location}, nil
	}

	settings.Logger.Debug("converting swagger 2.0 document", "location", location)
	if fixed, changed := preprocessV2ForCompatibility(root); changed {
		settings.Logger.Debug("rewrote swagger 2.0 body parameters for conversion", "location", location)
		root = fixed
	}
	converted, err := convertV2ToV3(root)
	if err != nil {
		return nil, &LoadError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: location, Cause: err}
	}
	return &Document{Root: converted, Location: location, Converted: true}, nil
}

func isSwagger2(root Value) bool {
	s, ok := root.Get("swagger").AsString()
	return ok && strings.HasPrefix(strings.TrimSpace(s), "2.")
}

func convertV2ToV3(root Value) (Value, error) {
	data, err := json.Marshal(root)
	if err != nil {
		return Value{}, err
	}
	var v2 openapi2.T
	if err := json.Unmarshal(data, &v2); err != nil {
		return Value{}, err
	}
	v3, err := openapi2conv.ToV3(&v2)
	if err != nil {
		return Value{}, err
	}
	out, err := json.Marshal(v3)
	if err != nil {
		return Value{}, err
	}
	return Parse(out)
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		settings.Logger.Warn("retrying document fetch", "url", rawURL, "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// fetchOnce performs a single GET. The boolean reports whether the failure is
// transient.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, false, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
