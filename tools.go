package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
)

// Caller is the slice of the UTCP client an adapted tool needs to execute.
// Both go-utcp's own client and *MultiProviderClient satisfy it.
type Caller interface {
	CallTool(ctx context.Context, toolName string, args map[string]any) (any, error)
}

// Client extends Caller with catalog discovery. An empty query enumerates the
// current catalog, which is how go-utcp exposes it.
type Client interface {
	Caller
	SearchTools(query string, limit int) ([]utcptools.Tool, error)
}

// CatalogLister is implemented by clients that can enumerate their catalog
// without going through search. LoadTools prefers it when available and
// SearchTools falls back to it when the client's own search fails.
type CatalogLister interface {
	ListTools(ctx context.Context) ([]utcptools.Tool, error)
}

// Logger receives diagnostic messages. It matches the logger shape go-utcp's
// transport constructors take so both libraries can share one sink.
type Logger func(format string, args ...any)

func discardLogger(string, ...any) {}

// catalogLimit bounds catalog enumeration; go-utcp's search requires a limit.
const catalogLimit = 1000

// UTCPTool adapts one UTCP tool descriptor to the langchaingo tools.Tool
// contract. Instances are snapshots: name, description, and parameters
// reflect the descriptor at conversion time, and every Call forwards a single
// invocation to the bound client.
type UTCPTool struct {
	CallbacksHandler callbacks.Handler

	caller       Caller
	name         string
	description  string
	parameters   map[string]any
	provider     string
	providerType string
	tags         []string
}

var _ tools.Tool = (*UTCPTool)(nil)

// ToolOption customizes a converted tool.
type ToolOption func(*UTCPTool)

// WithCallbacksHandler attaches a langchaingo callbacks handler that is
// notified on every call.
func WithCallbacksHandler(h callbacks.Handler) ToolOption {
	return func(t *UTCPTool) { t.CallbacksHandler = h }
}

// ConvertTool maps one UTCP tool descriptor onto a langchaingo tool bound to
// caller. It fails only when the descriptor's input schema cannot be
// expressed as function-call parameters.
func ConvertTool(caller Caller, tool utcptools.Tool, opts ...ToolOption) (*UTCPTool, error) {
	params, err := functionParameters(tool.Inputs)
	if err != nil {
		return nil, fmt.Errorf("convert tool %s: %w", tool.Name, err)
	}

	description := tool.Description
	if description == "" {
		description = "UTCP tool: " + tool.Name
	}

	t := &UTCPTool{
		caller:      caller,
		name:        tool.Name,
		description: description,
		parameters:  params,
		provider:    providerNamespace(tool),
		tags:        append([]string(nil), tool.Tags...),
	}
	if tool.Provider != nil {
		t.providerType = string(tool.Provider.Type())
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// providerNamespace derives the provider name from the catalog name; go-utcp
// prefixes every registered tool with "<provider>.".
func providerNamespace(tool utcptools.Tool) string {
	if i := strings.Index(tool.Name, "."); i > 0 {
		return tool.Name[:i]
	}
	return ""
}

// Name returns the namespaced catalog name of the tool.
func (t *UTCPTool) Name() string { return t.name }

// Description returns the descriptor's description.
func (t *UTCPTool) Description() string { return t.description }

// Provider returns the provider namespace the tool belongs to.
func (t *UTCPTool) Provider() string { return t.provider }

// ProviderType returns the transport type of the tool's provider, when known.
func (t *UTCPTool) ProviderType() string { return t.providerType }

// Tags returns a copy of the descriptor's tags.
func (t *UTCPTool) Tags() []string { return append([]string(nil), t.tags...) }

// FunctionDefinition exposes the tool in the shape function-calling models
// consume.
func (t *UTCPTool) FunctionDefinition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

// LLMTools renders adapted tools as llms.Tool values for binding to a
// function-calling model.
func LLMTools(adapted []*UTCPTool) []llms.Tool {
	out := make([]llms.Tool, 0, len(adapted))
	for _, t := range adapted {
		def := t.FunctionDefinition()
		out = append(out, llms.Tool{Type: "function", Function: &def})
	}
	return out
}

// Call parses input, forwards one call to the UTCP client, and returns the
// rendered result. Client failures come back wrapped in a *ToolError with the
// cause untouched; there is no retry and no timeout beyond what ctx carries.
func (t *UTCPTool) Call(ctx context.Context, input string) (string, error) {
	if t.CallbacksHandler != nil {
		t.CallbacksHandler.HandleToolStart(ctx, input)
	}

	out, err := t.run(ctx, input)
	if err != nil {
		if t.CallbacksHandler != nil {
			t.CallbacksHandler.HandleToolError(ctx, err)
		}
		return "", err
	}
	if t.CallbacksHandler != nil {
		t.CallbacksHandler.HandleToolEnd(ctx, out)
	}
	return out, nil
}

func (t *UTCPTool) run(ctx context.Context, input string) (string, error) {
	args, err := t.parseInput(input)
	if err != nil {
		return "", err
	}
	result, err := t.caller.CallTool(ctx, t.name, args)
	if err != nil {
		return "", &ToolError{Tool: t.name, Err: err}
	}
	return renderResult(t.name, result)
}

// parseInput decodes the framework-supplied input string. Function-calling
// agents hand over a JSON object; react-style agents hand over bare text,
// which binds to the schema's single property when there is exactly one.
func (t *UTCPTool) parseInput(input string) (map[string]any, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
		return coerceArguments(t.parameters, args), nil
	}

	if name, ok := t.soleProperty(); ok {
		return coerceArguments(t.parameters, map[string]any{name: trimmed}), nil
	}
	return nil, &ToolError{Tool: t.name, Err: fmt.Errorf("input is not a JSON object: %q", input)}
}

func (t *UTCPTool) soleProperty() (string, bool) {
	props, _ := t.parameters["properties"].(map[string]any)
	if len(props) != 1 {
		return "", false
	}
	for name := range props {
		return name, true
	}
	return "", false
}

// LoadOption adjusts catalog loading and search.
type LoadOption func(*loadOptions)

type loadOptions struct {
	provider   string
	maxResults int
	lenient    bool
	logger     Logger
	toolOpts   []ToolOption
}

func newLoadOptions(opts []LoadOption) loadOptions {
	lo := loadOptions{logger: discardLogger}
	for _, opt := range opts {
		opt(&lo)
	}
	return lo
}

// WithProvider keeps only tools belonging to the named provider.
func WithProvider(name string) LoadOption {
	return func(lo *loadOptions) { lo.provider = name }
}

// WithMaxResults caps the number of returned tools. Zero means no cap.
func WithMaxResults(n int) LoadOption {
	return func(lo *loadOptions) { lo.maxResults = n }
}

// WithLogger routes conversion warnings to the given logger.
func WithLogger(l Logger) LoadOption {
	return func(lo *loadOptions) {
		if l != nil {
			lo.logger = l
		}
	}
}

// WithToolOptions applies tool options to every converted tool.
func WithToolOptions(opts ...ToolOption) LoadOption {
	return func(lo *loadOptions) { lo.toolOpts = append(lo.toolOpts, opts...) }
}

// WithLenientConversion logs and skips descriptors whose schema cannot be
// translated instead of failing the whole load, so one bad provider does not
// hide the rest of the catalog.
func WithLenientConversion() LoadOption {
	return func(lo *loadOptions) { lo.lenient = true }
}

// LoadTools re-reads the client's current catalog and converts every
// descriptor. Nothing is cached between calls. By default a descriptor whose
// schema cannot be translated fails the load; see WithLenientConversion.
func LoadTools(ctx context.Context, client Client, opts ...LoadOption) ([]tools.Tool, error) {
	lo := newLoadOptions(opts)
	catalog, err := listCatalog(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("load utcp tools: %w", err)
	}
	return convertAll(client, catalog, lo)
}

// SearchTools ranks the catalog against query and converts the matches. When
// the client's own search fails, discovery degrades to a substring scan over
// the catalog instead of failing outright.
func SearchTools(ctx context.Context, client Client, query string, opts ...LoadOption) ([]tools.Tool, error) {
	lo := newLoadOptions(opts)
	matches, err := client.SearchTools(query, catalogLimit)
	if err != nil {
		lo.logger("utcp search failed, scanning catalog instead: %v", err)
		catalog, listErr := listCatalog(ctx, client)
		if listErr != nil {
			return nil, fmt.Errorf("search utcp tools: %w", err)
		}
		matches = scanCatalog(catalog, query)
	}
	return convertAll(client, matches, lo)
}

func listCatalog(ctx context.Context, client Client) ([]utcptools.Tool, error) {
	if lister, ok := client.(CatalogLister); ok {
		return lister.ListTools(ctx)
	}
	return client.SearchTools("", catalogLimit)
}

// scanCatalog is the degraded search path: case-insensitive substring match
// over name, description, and tags.
func scanCatalog(catalog []utcptools.Tool, query string) []utcptools.Tool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return catalog
	}
	var matches []utcptools.Tool
	for _, desc := range catalog {
		if strings.Contains(strings.ToLower(desc.Name), q) ||
			strings.Contains(strings.ToLower(desc.Description), q) {
			matches = append(matches, desc)
			continue
		}
		for _, tag := range desc.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				matches = append(matches, desc)
				break
			}
		}
	}
	return matches
}

func convertAll(caller Caller, catalog []utcptools.Tool, lo loadOptions) ([]tools.Tool, error) {
	converted := make([]tools.Tool, 0, len(catalog))
	for _, desc := range catalog {
		if lo.provider != "" && providerNamespace(desc) != lo.provider {
			continue
		}
		t, err := ConvertTool(caller, desc, lo.toolOpts...)
		if err != nil {
			if lo.lenient {
				lo.logger("skipping tool %s: %v", desc.Name, err)
				continue
			}
			return nil, err
		}
		converted = append(converted, t)
		if lo.maxResults > 0 && len(converted) == lo.maxResults {
			break
		}
	}
	return converted, nil
}
