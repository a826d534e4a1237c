package templates

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/sqlbench/internal/config"
	"github.com/hochfrequenz/sqlbench/internal/dbhandle"
)

func TestListConfigTemplates(t *testing.T) {
	metas, err := NewLoader().ListConfigTemplates()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, "toml", metas[0].ID)
	require.Equal(t, "yaml", metas[1].ID)
	require.Equal(t, "yml", metas[1].Format)
}

func TestRenderConfig_Loads(t *testing.T) {
	for _, id := range []string{"yaml", "toml"} {
		t.Run(id, func(t *testing.T) {
			body, ext, err := NewLoader().RenderConfig(id, DefaultConfigData())
			require.NoError(t, err)
			require.False(t, strings.HasPrefix(body, "---"), "frontmatter must be stripped")

			path := filepath.Join(t.TempDir(), "config."+ext)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			cfg, err := config.Load(path)
			require.NoError(t, err, body)
			require.Equal(t, 10, cfg.BatchSize)
			require.Equal(t, config.EnvironmentCompose, cfg.Environment)
			require.Equal(t, dbhandle.Names(), cfg.EngineNames())
			require.Len(t, cfg.Benchmarks, 1)
			require.Equal(t, 22, cfg.Benchmarks[0].TotalQueries)
		})
	}
}

func TestLoaderOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0755))
	override := "batch_size: {{ .BatchSize }}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "yaml.tmpl"), []byte(override), 0644))

	body, ext, err := NewLoader(dir).RenderConfig("yaml", ConfigData{BatchSize: 3})
	require.NoError(t, err)
	require.Equal(t, "batch_size: 3\n", body)
	// Without frontmatter the id doubles as the extension
	require.Equal(t, "yaml", ext)
}

func TestRenderConfig_Unknown(t *testing.T) {
	_, _, err := NewLoader().RenderConfig("json", DefaultConfigData())
	if err == nil || !strings.Contains(err.Error(), "config/json.tmpl") {
		t.Errorf("expected a load error naming the template, got %v", err)
	}
}

func TestParseFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantMeta bool
		wantBody string
	}{
		{"plain", "a: 1\n", false, "a: 1\n"},
		{"with meta", "---\nid: x\n---\nbody\n", true, "body\n"},
		{"unterminated", "---\nid: x\nbody\n", false, "---\nid: x\nbody\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, body, err := parseFrontmatter([]byte(tt.content))
			require.NoError(t, err)
			require.Equal(t, tt.wantMeta, meta != nil)
			require.Equal(t, tt.wantBody, body)
		})
	}
}
