package adapters

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/tmc/langchaingo/tools"
	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/base"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/helpers"
	"github.com/universal-tool-calling-protocol/go-utcp/src/repository"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
	"gopkg.in/yaml.v3"
)

// utcpClient is the part of go-utcp's client the wrapper drives.
type utcpClient interface {
	Client
	RegisterToolProvider(ctx context.Context, prov base.Provider) ([]utcptools.Tool, error)
	DeregisterToolProvider(ctx context.Context, providerName string) error
}

// newUTCPClient builds the underlying client; tests swap it for a fake.
var newUTCPClient = func(ctx context.Context, cfg *utcp.UtcpClientConfig, repo repository.ToolRepository) (utcpClient, error) {
	return utcp.NewUTCPClient(ctx, cfg, repo, nil)
}

// ProviderInfo describes one registered provider in its manifest form.
type ProviderInfo struct {
	Name         string         `json:"name"`
	ProviderType string         `json:"provider_type"`
	Config       map[string]any `json:"config"`
}

// ProviderHealth is one entry of a HealthCheck report.
type ProviderHealth struct {
	Status    string `json:"status"`
	ToolCount int    `json:"tool_count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MultiProviderClient wraps a go-utcp client behind the catalog and call
// surface this package adapts. The underlying client is created lazily on
// first use and keeps its tool repository inspectable so providers and tools
// can be listed without going through search. Every operation is a single
// forwarded call; there is no caching, retry, or added timeout.
type MultiProviderClient struct {
	cfg      *utcp.UtcpClientConfig
	logger   Logger
	tempFile string

	mu     sync.Mutex
	client utcpClient
	repo   repository.ToolRepository
}

var (
	_ Client        = (*MultiProviderClient)(nil)
	_ CatalogLister = (*MultiProviderClient)(nil)
)

// ClientOption configures a MultiProviderClient.
type ClientOption func(*MultiProviderClient)

// WithClientLogger routes the wrapper's diagnostics to the given logger.
func WithClientLogger(l Logger) ClientOption {
	return func(c *MultiProviderClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDotEnv loads variables from a dotenv file (".env" when path is empty)
// into the process environment and registers the file as a go-utcp variable
// source, so ${VAR} references in provider manifests resolve. A missing file
// is not an error.
func WithDotEnv(path string) ClientOption {
	return func(c *MultiProviderClient) {
		if path == "" {
			path = ".env"
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		if err := godotenv.Load(path); err != nil {
			c.logger("dotenv %s: %v", path, err)
			return
		}
		c.cfg.LoadVariablesFrom = append(c.cfg.LoadVariablesFrom, utcp.NewDotEnv(path))
	}
}

// NewMultiProviderClient builds a client from an explicit go-utcp config,
// which is passed through untouched. The config must name a providers
// manifest; variables alone give the client nothing to register.
func NewMultiProviderClient(cfg *utcp.UtcpClientConfig, opts ...ClientOption) (*MultiProviderClient, error) {
	if cfg == nil || cfg.ProvidersFilePath == "" {
		return nil, ErrNoProviderSource
	}
	return newClient(cfg, "", opts...), nil
}

// NewClientFromFile builds a client from a providers manifest. JSON manifests
// are handed to go-utcp as-is; YAML manifests are converted through a
// temporary JSON file that Close removes.
func NewClientFromFile(path string, opts ...ClientOption) (*MultiProviderClient, error) {
	if path == "" {
		return nil, ErrNoProviderSource
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read providers manifest %s: %w", path, err)
		}
		var manifest any
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("parse providers manifest %s: %w", path, err)
		}
		tempFile, err := writeTempManifest(manifest)
		if err != nil {
			return nil, err
		}
		return newClient(&utcp.UtcpClientConfig{ProvidersFilePath: tempFile}, tempFile, opts...), nil
	default:
		return newClient(&utcp.UtcpClientConfig{ProvidersFilePath: path}, "", opts...), nil
	}
}

// NewClientFromProviders builds a client from inline provider maps, written
// to a temporary manifest that Close removes. An empty list is allowed; it
// yields a client with an empty catalog.
func NewClientFromProviders(providers []map[string]any, opts ...ClientOption) (*MultiProviderClient, error) {
	if providers == nil {
		return nil, ErrNoProviderSource
	}
	tempFile, err := writeTempManifest(providers)
	if err != nil {
		return nil, err
	}
	return newClient(&utcp.UtcpClientConfig{ProvidersFilePath: tempFile}, tempFile, opts...), nil
}

func newClient(cfg *utcp.UtcpClientConfig, tempFile string, opts ...ClientOption) *MultiProviderClient {
	c := &MultiProviderClient{cfg: cfg, logger: discardLogger, tempFile: tempFile}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// writeTempManifest serializes a providers manifest to a uniquely named JSON
// file in the system temp directory.
func writeTempManifest(manifest any) (string, error) {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode providers manifest: %w", err)
	}
	path := filepath.Join(os.TempDir(), "utcp-providers-"+uuid.NewString()+".json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write providers manifest: %w", err)
	}
	return path, nil
}

// ensure creates the underlying go-utcp client on first use. Callers use the
// returned client and repository snapshots; the struct fields are only read
// under c.mu so a racing Close cannot pull them away mid-operation.
func (c *MultiProviderClient) ensure(ctx context.Context) (utcpClient, repository.ToolRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, c.repo, nil
	}
	repo := repository.NewInMemoryToolRepository()
	client, err := newUTCPClient(ctx, c.cfg, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("create utcp client: %w", err)
	}
	c.client = client
	c.repo = repo
	return client, repo, nil
}

// CallTool forwards one tool invocation to the underlying client.
func (c *MultiProviderClient) CallTool(ctx context.Context, toolName string, args map[string]any) (any, error) {
	client, _, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return client.CallTool(ctx, toolName, args)
}

// SearchTools forwards a ranked catalog search to the underlying client.
func (c *MultiProviderClient) SearchTools(query string, limit int) ([]utcptools.Tool, error) {
	client, _, err := c.ensure(context.Background())
	if err != nil {
		return nil, err
	}
	return client.SearchTools(query, limit)
}

// ListTools enumerates the current catalog straight from the tool repository,
// in catalog order.
func (c *MultiProviderClient) ListTools(ctx context.Context) ([]utcptools.Tool, error) {
	_, repo, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return repo.GetTools(ctx)
}

// Tools loads the current catalog as langchaingo tools.
func (c *MultiProviderClient) Tools(ctx context.Context, opts ...LoadOption) ([]tools.Tool, error) {
	if _, _, err := c.ensure(ctx); err != nil {
		return nil, err
	}
	return LoadTools(ctx, c, append([]LoadOption{WithLogger(c.logger)}, opts...)...)
}

// Search returns the langchaingo tools most relevant to query.
func (c *MultiProviderClient) Search(ctx context.Context, query string, opts ...LoadOption) ([]tools.Tool, error) {
	if _, _, err := c.ensure(ctx); err != nil {
		return nil, err
	}
	return SearchTools(ctx, c, query, append([]LoadOption{WithLogger(c.logger)}, opts...)...)
}

// Providers returns the names of all registered providers.
func (c *MultiProviderClient) Providers(ctx context.Context) ([]string, error) {
	_, repo, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	provs, err := repo.GetProviders(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(provs))
	for _, p := range provs {
		cfg, err := providerConfig(p)
		if err != nil {
			c.logger("skipping unreadable provider: %v", err)
			continue
		}
		names = append(names, cast.ToString(cfg["name"]))
	}
	return names, nil
}

// ProviderInfo returns the manifest form of one registered provider.
func (c *MultiProviderClient) ProviderInfo(ctx context.Context, name string) (ProviderInfo, error) {
	_, repo, err := c.ensure(ctx)
	if err != nil {
		return ProviderInfo{}, err
	}
	provs, err := repo.GetProviders(ctx)
	if err != nil {
		return ProviderInfo{}, err
	}
	for _, p := range provs {
		cfg, err := providerConfig(p)
		if err != nil {
			continue
		}
		if cast.ToString(cfg["name"]) != name {
			continue
		}
		return ProviderInfo{
			Name:         name,
			ProviderType: cast.ToString(cfg["provider_type"]),
			Config:       cfg,
		}, nil
	}
	return ProviderInfo{}, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
}

// RegisterProvider registers a provider from its manifest form and returns
// the adapted tools it contributed. go-utcp supports dynamic registration
// directly, so this is a plain pass-through.
func (c *MultiProviderClient) RegisterProvider(ctx context.Context, config map[string]any) ([]tools.Tool, error) {
	client, _, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	blob, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("encode provider config: %w", err)
	}
	prov, err := helpers.UnmarshalProvider(blob)
	if err != nil {
		return nil, fmt.Errorf("decode provider config: %w", err)
	}
	registered, err := client.RegisterToolProvider(ctx, prov)
	if err != nil {
		return nil, err
	}
	// registration already succeeded on the client side, so a descriptor
	// that cannot be translated is reported, not fatal
	return convertAll(c, registered, loadOptions{logger: c.logger, lenient: true})
}

// DeregisterProvider removes a provider and its tools from the catalog.
func (c *MultiProviderClient) DeregisterProvider(ctx context.Context, name string) error {
	client, _, err := c.ensure(ctx)
	if err != nil {
		return err
	}
	return client.DeregisterToolProvider(ctx, name)
}

// HealthCheck reports, per registered provider, whether its tools are still
// reachable in the catalog and how many there are.
func (c *MultiProviderClient) HealthCheck(ctx context.Context) (map[string]ProviderHealth, error) {
	_, repo, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	names, err := c.Providers(ctx)
	if err != nil {
		return nil, err
	}
	report := make(map[string]ProviderHealth, len(names))
	for _, name := range names {
		toolList, err := repo.GetToolsByProvider(ctx, name)
		if err != nil {
			report[name] = ProviderHealth{Status: "unhealthy", Error: err.Error()}
			continue
		}
		report[name] = ProviderHealth{Status: "healthy", ToolCount: len(toolList)}
	}
	return report, nil
}

// Close drops the underlying client and removes any temporary manifest this
// wrapper wrote. The wrapper can be reused; the next operation recreates the
// client, minus any temp manifest.
func (c *MultiProviderClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.client = nil
	c.repo = nil
	if c.tempFile != "" {
		if err := os.Remove(c.tempFile); err != nil && !os.IsNotExist(err) {
			return err
		}
		c.tempFile = ""
	}
	return nil
}

// providerConfig renders a provider back to its manifest form. Every go-utcp
// provider marshals with its "name" and "provider_type" fields.
func providerConfig(p base.Provider) (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
