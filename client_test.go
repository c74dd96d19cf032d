package adapters

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"
	"github.com/universal-tool-calling-protocol/go-utcp/src/providers/base"
	httpprovider "github.com/universal-tool-calling-protocol/go-utcp/src/providers/http"
	"github.com/universal-tool-calling-protocol/go-utcp/src/repository"
	utcptools "github.com/universal-tool-calling-protocol/go-utcp/src/tools"
)

// fakeUTCPClient stands in for the underlying go-utcp client behind the
// newUTCPClient seam. It mirrors the real client's repository discipline:
// registration saves the provider and its tools into the repository the
// wrapper handed over.
type fakeUTCPClient struct {
	repo  repository.ToolRepository
	calls []string
}

func (f *fakeUTCPClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	f.calls = append(f.calls, name)
	return map[string]any{"result": "ok"}, nil
}

func (f *fakeUTCPClient) SearchTools(query string, limit int) ([]utcptools.Tool, error) {
	return f.repo.GetTools(context.Background())
}

func (f *fakeUTCPClient) RegisterToolProvider(ctx context.Context, prov base.Provider) ([]utcptools.Tool, error) {
	hp, ok := prov.(*httpprovider.HttpProvider)
	if !ok {
		return nil, errors.New("unexpected provider type")
	}
	registered := []utcptools.Tool{{
		Name:        hp.Name + ".shout",
		Description: "Uppercase a string",
		Inputs: utcptools.ToolInputOutputSchema{
			Type:       "object",
			Properties: map[string]any{"text": map[string]any{"type": "string"}},
		},
		Provider: prov,
	}}
	if err := f.repo.SaveProviderWithTools(ctx, prov, registered); err != nil {
		return nil, err
	}
	return registered, nil
}

func (f *fakeUTCPClient) DeregisterToolProvider(ctx context.Context, providerName string) error {
	return f.repo.RemoveProvider(ctx, providerName)
}

// installFakeUTCPClient reroutes client construction to a fake for the
// duration of the test and reports how many times it was built.
func installFakeUTCPClient(t *testing.T) (*fakeUTCPClient, *int) {
	t.Helper()
	fake := &fakeUTCPClient{}
	builds := 0
	orig := newUTCPClient
	newUTCPClient = func(ctx context.Context, cfg *utcp.UtcpClientConfig, repo repository.ToolRepository) (utcpClient, error) {
		builds++
		fake.repo = repo
		return fake, nil
	}
	t.Cleanup(func() { newUTCPClient = orig })
	return fake, &builds
}

func TestNewMultiProviderClientRequiresSource(t *testing.T) {
	if _, err := NewMultiProviderClient(nil); !errors.Is(err, ErrNoProviderSource) {
		t.Fatalf("nil config: %v", err)
	}
	if _, err := NewMultiProviderClient(&utcp.UtcpClientConfig{}); !errors.Is(err, ErrNoProviderSource) {
		t.Fatalf("empty config: %v", err)
	}
	varsOnly := &utcp.UtcpClientConfig{Variables: map[string]string{"KEY": "v"}}
	if _, err := NewMultiProviderClient(varsOnly); !errors.Is(err, ErrNoProviderSource) {
		t.Fatalf("config without a providers manifest: %v", err)
	}
	if _, err := NewClientFromFile(""); !errors.Is(err, ErrNoProviderSource) {
		t.Fatalf("empty path: %v", err)
	}
	if _, err := NewClientFromProviders(nil); !errors.Is(err, ErrNoProviderSource) {
		t.Fatalf("nil providers: %v", err)
	}
}

func TestNewClientFromFilePassesJSONThrough(t *testing.T) {
	c, err := NewClientFromFile("providers.json")
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}
	defer c.Close()

	if c.cfg.ProvidersFilePath != "providers.json" {
		t.Fatalf("json manifest must be handed over untouched: %s", c.cfg.ProvidersFilePath)
	}
	if c.tempFile != "" {
		t.Fatalf("no temp manifest expected for json input")
	}
}

func TestNewClientFromFileConvertsYAML(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "providers.yaml")
	manifest := `
- name: math_api
  provider_type: http
  url: http://localhost:8080/utcp
  http_method: GET
`
	if err := os.WriteFile(src, []byte(manifest), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	c, err := NewClientFromFile(src)
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}

	if c.tempFile == "" || !strings.HasSuffix(c.tempFile, ".json") {
		t.Fatalf("yaml manifest should be converted to a temp json file: %q", c.tempFile)
	}
	data, err := os.ReadFile(c.cfg.ProvidersFilePath)
	if err != nil {
		t.Fatalf("read converted manifest: %v", err)
	}
	var converted []map[string]any
	if err := json.Unmarshal(data, &converted); err != nil {
		t.Fatalf("converted manifest is not json: %v", err)
	}
	if len(converted) != 1 || converted[0]["name"] != "math_api" || converted[0]["provider_type"] != "http" {
		t.Fatalf("manifest content lost in conversion: %v", converted)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if _, err := os.Stat(c.cfg.ProvidersFilePath); !os.IsNotExist(err) {
		t.Fatalf("temp manifest not removed on close")
	}
}

func TestNewClientFromProvidersWritesManifest(t *testing.T) {
	providers := []map[string]any{
		{
			"name":          "math_api",
			"provider_type": "http",
			"url":           "http://localhost:8080/utcp",
			"http_method":   "GET",
		},
	}

	c, err := NewClientFromProviders(providers)
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}

	data, err := os.ReadFile(c.cfg.ProvidersFilePath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var written []map[string]any
	if err := json.Unmarshal(data, &written); err != nil {
		t.Fatalf("manifest is not json: %v", err)
	}
	if len(written) != 1 || written[0]["url"] != "http://localhost:8080/utcp" {
		t.Fatalf("manifest content: %v", written)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if _, err := os.Stat(c.cfg.ProvidersFilePath); !os.IsNotExist(err) {
		t.Fatalf("temp manifest not removed on close")
	}
}

func TestNewClientFromProvidersAllowsEmptyList(t *testing.T) {
	c, err := NewClientFromProviders([]map[string]any{})
	if err != nil {
		t.Fatalf("empty provider list must be accepted: %v", err)
	}
	defer c.Close()
}

func TestWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("UTCP_ADAPTER_TEST_KEY=sekret\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	// godotenv does not override variables that are already set
	t.Setenv("UTCP_ADAPTER_TEST_KEY", "")
	os.Unsetenv("UTCP_ADAPTER_TEST_KEY")

	c, err := NewClientFromFile("providers.json", WithDotEnv(envFile))
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}
	defer c.Close()

	if os.Getenv("UTCP_ADAPTER_TEST_KEY") != "sekret" {
		t.Fatalf("dotenv values not loaded into the environment")
	}
	if len(c.cfg.LoadVariablesFrom) != 1 {
		t.Fatalf("dotenv source not registered with the utcp config")
	}
}

func TestWithDotEnvIgnoresMissingFile(t *testing.T) {
	c, err := NewClientFromFile("providers.json", WithDotEnv(filepath.Join(t.TempDir(), "absent.env")))
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}
	defer c.Close()

	if len(c.cfg.LoadVariablesFrom) != 0 {
		t.Fatalf("missing dotenv file must not register a source")
	}
}

func TestProviderConfig(t *testing.T) {
	prov := &httpprovider.HttpProvider{
		BaseProvider: base.BaseProvider{Name: "math_api", ProviderType: base.ProviderHTTP},
		URL:          "http://localhost:8080/utcp",
		HTTPMethod:   "GET",
	}

	cfg, err := providerConfig(prov)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	if cfg["name"] != "math_api" || cfg["provider_type"] != "http" {
		t.Fatalf("identity fields missing: %v", cfg)
	}
	if cfg["url"] != "http://localhost:8080/utcp" {
		t.Fatalf("config fields missing: %v", cfg)
	}
}

func TestRegisterProviderRoundTrip(t *testing.T) {
	installFakeUTCPClient(t)
	c, err := NewClientFromProviders([]map[string]any{})
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	added, err := c.RegisterProvider(ctx, map[string]any{
		"name":          "loud",
		"provider_type": "http",
		"http_method":   "POST",
		"url":           "http://localhost:8091/tools",
	})
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if len(added) != 1 || added[0].Name() != "loud.shout" {
		t.Fatalf("adapted tools: %v", added)
	}

	names, err := c.Providers(ctx)
	if err != nil {
		t.Fatalf("providers error: %v", err)
	}
	if len(names) != 1 || names[0] != "loud" {
		t.Fatalf("provider names: %v", names)
	}
	info, err := c.ProviderInfo(ctx, "loud")
	if err != nil {
		t.Fatalf("provider info error: %v", err)
	}
	if info.ProviderType != "http" || info.Config["url"] != "http://localhost:8091/tools" {
		t.Fatalf("manifest fields lost in the round trip: %+v", info)
	}

	health, err := c.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("health error: %v", err)
	}
	if h := health["loud"]; h.Status != "healthy" || h.ToolCount != 1 {
		t.Fatalf("health report: %+v", health)
	}

	if err := c.DeregisterProvider(ctx, "loud"); err != nil {
		t.Fatalf("deregister error: %v", err)
	}
	names, err = c.Providers(ctx)
	if err != nil {
		t.Fatalf("providers error: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("provider still listed after deregistration: %v", names)
	}
}

func TestProviderInfoUnknownProvider(t *testing.T) {
	installFakeUTCPClient(t)
	c, err := NewClientFromProviders([]map[string]any{})
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}
	defer c.Close()

	_, err = c.ProviderInfo(context.Background(), "missing")
	if !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("unknown provider must report ErrProviderNotFound, got %v", err)
	}
}

func TestClientReusableAfterClose(t *testing.T) {
	_, builds := installFakeUTCPClient(t)
	c, err := NewClientFromProviders([]map[string]any{})
	if err != nil {
		t.Fatalf("construct error: %v", err)
	}

	ctx := context.Background()
	if _, err := c.ListTools(ctx); err != nil {
		t.Fatalf("list error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}
	if _, err := c.ListTools(ctx); err != nil {
		t.Fatalf("list after close must rebuild the client: %v", err)
	}
	if *builds != 2 {
		t.Fatalf("expected a rebuild after close, builds=%d", *builds)
	}
}
