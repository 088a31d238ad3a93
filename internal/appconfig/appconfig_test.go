// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/spf13/viper"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TestLoadDefaults verifies the built-in layer when no files exist.
func TestLoadDefaults(t *testing.T) {
	home, work := t.TempDir(), t.TempDir()
	t.Setenv(EnvOpenAIKey, "")
	t.Setenv(EnvAnthropicKey, "")

	rc, err := Load(LoadOptions{HomeDir: home, WorkDir: work})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if rc.ModelName != DefaultModelName || !rc.UsePromptCache || rc.SaveTmpFile {
		t.Fatalf("unexpected defaults: %+v", rc.Config)
	}
	if rc.UUIDDigits != 4 || rc.Jobs != 1 || rc.InputSheetPrefix != "input" || rc.OutputSheetPrefix != "output" {
		t.Fatalf("unexpected defaults: %+v", rc.Config)
	}
	if rc.RequestTimeout() != 600*time.Second {
		t.Fatalf("expected default request timeout of 600s, got %v", rc.RequestTimeout())
	}
	if len(rc.Files) != 0 || rc.SecretsFile != "" {
		t.Fatalf("expected no files, got %v / %q", rc.Files, rc.SecretsFile)
	}
}

// TestLoadCascade verifies user < workspace < explicit precedence and that
// the workspace config is found from a nested directory.
func TestLoadCascade(t *testing.T) {
	home, root := t.TempDir(), t.TempDir()
	writeFile(t, UserConfigPath(home), "model_name: user-model\njobs: 3\nparams:\n  max_tokens: 50\n  seed: 1\n")
	writeFile(t, filepath.Join(root, ".lime", "config.yaml"), "model_name: workspace-model\nsave_tmp_file: true\n")
	explicit := filepath.Join(root, "override.yaml")
	writeFile(t, explicit, "uuid_digits: 6\n")

	nested := filepath.Join(root, "sheets", "batch")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	rc, err := Load(LoadOptions{HomeDir: home, WorkDir: nested, ExplicitFile: explicit})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(rc.Files) != 3 {
		t.Fatalf("expected 3 files, got %v", rc.Files)
	}
	if rc.ModelName != "workspace-model" || rc.Jobs != 3 || !rc.SaveTmpFile || rc.UUIDDigits != 6 {
		t.Fatalf("unexpected merge: %+v", rc.Config)
	}
	if rc.Params.MaxTokens == nil || *rc.Params.MaxTokens != 50 || rc.Params.Seed == nil || *rc.Params.Seed != 1 {
		t.Fatalf("unexpected params: %v", rc.Params)
	}
	if rc.ConfigPath != explicit {
		t.Fatalf("expected config path %q, got %q", explicit, rc.ConfigPath)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{HomeDir: t.TempDir(), WorkDir: t.TempDir(), ExplicitFile: "/nonexistent/lime.yaml"})
	if err == nil || !strings.Contains(err.Error(), "no configuration file found") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	home, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(work, ".lime", "config.yaml"), "jobs: 0\nmodels:\n  m1:\n    type: bogus\n")

	_, err := Load(LoadOptions{HomeDir: home, WorkDir: work})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "Jobs") || !strings.Contains(err.Error(), "Type") {
		t.Fatalf("expected Jobs and Type failures, got %v", err)
	}
}

func TestFlagsOverrideFiles(t *testing.T) {
	home, work := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(work, ".lime", "config.yaml"), "model_name: from-file\n")

	v := viper.New()
	v.Set("model_name", "from-flag")
	rc, err := Resolve(v, LoadOptions{HomeDir: home, WorkDir: work})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if rc.ModelName != "from-flag" {
		t.Fatalf("expected flag value to win, got %q", rc.ModelName)
	}
}

func TestLoadSecrets(t *testing.T) {
	home := t.TempDir()
	writeFile(t, filepath.Join(home, ".lime", SecretsFileName), "OPENAI_API_KEY=sk-from-file-123456\nANTHROPIC_API_KEY=ak-file\n")
	t.Setenv(EnvOpenAIKey, "")
	os.Unsetenv(EnvOpenAIKey)
	t.Setenv(EnvAnthropicKey, "ak-env")

	secrets, file, err := LoadSecrets(home)
	if err != nil {
		t.Fatalf("LoadSecrets returned error: %v", err)
	}
	if file == "" {
		t.Fatal("expected secrets file to be reported")
	}
	if secrets.OpenAIAPIKey != "sk-from-file-123456" {
		t.Fatalf("expected key from file, got %q", secrets.OpenAIAPIKey)
	}
	if secrets.AnthropicAPIKey != "ak-env" {
		t.Fatalf("environment should win over secrets.env, got %q", secrets.AnthropicAPIKey)
	}
}

func TestBackendParamsLayering(t *testing.T) {
	cfg := Config{
		Profile: "fact_checker",
		Profiles: map[string]genparams.Params{
			"local": {MaxTokens: genparams.Int(32)},
		},
		Models: map[string]ModelConfig{
			"mistral": {Params: genparams.Params{Seed: genparams.Int64(9)}},
		},
	}
	p := cfg.BackendParams("Mistral", "local")
	if *p.MaxTokens != 32 || *p.Seed != 9 || *p.TopK != 20 || *p.Temperature != 0.2 {
		t.Fatalf("unexpected params %v", p)
	}

	base := Config{}.BackendParams("gpt-3.5-turbo", "openai")
	if *base.MaxTokens != 100 || *base.Temperature != 0 || base.Seed != nil {
		t.Fatalf("unexpected default params %v", base)
	}
}

func TestMaskSecret(t *testing.T) {
	cases := map[string]string{
		"":                    "(not set)",
		"short":               "*****",
		"sk-abcdefghijkl1234": "sk-a****1234",
	}
	for in, want := range cases {
		if got := MaskSecret(in); got != want {
			t.Fatalf("MaskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShowConfigMasksSecrets(t *testing.T) {
	rc := &RuntimeConfig{
		Config:  Config{ModelName: "gpt-4o", Jobs: 2},
		Secrets: Secrets{OpenAIAPIKey: "sk-abcdefghijkl1234"},
		Files:   []string{"/home/u/.lime/config.yaml"},
	}
	var buf bytes.Buffer
	ShowConfig(&buf, rc)
	out := buf.String()
	if strings.Contains(out, "abcdefghijkl") {
		t.Fatalf("secret leaked: %s", out)
	}
	for _, want := range []string{"/home/u/.lime/config.yaml", "sk-a****1234", "gpt-4o", "(not set)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestDumpConfigWritesPlainText(t *testing.T) {
	var buf bytes.Buffer
	DumpConfig(&buf, Config{ModelName: "gpt-4o", Jobs: 2})
	out := buf.String()
	for _, want := range []string{"ModelName", `"gpt-4o"`, "Jobs"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in dump:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("dump must not contain color escapes:\n%q", out)
	}
}

func TestBuildTemplateStyles(t *testing.T) {
	full, err := BuildTemplate(StyleFull)
	if err != nil {
		t.Fatalf("BuildTemplate(full) returned error: %v", err)
	}
	if !strings.Contains(full, "\nmodel_name: gpt-3.5-turbo") || !strings.Contains(full, "# reuse the evaluated") {
		t.Fatalf("full template missing settings or comments:\n%s", full)
	}

	inert, _ := BuildTemplate(StyleInert)
	if strings.Contains(inert, "\nmodel_name:") || !strings.Contains(inert, "# model_name: gpt-3.5-turbo") {
		t.Fatalf("inert template should comment out settings:\n%s", inert)
	}

	bare, _ := BuildTemplate(StyleBare)
	if strings.Contains(bare, "# reuse the evaluated") || !strings.Contains(bare, "model_name:") {
		t.Fatalf("bare template should drop comments:\n%s", bare)
	}

	blank, _ := BuildTemplate(StyleBlank)
	if strings.Contains(blank, "model_name") || !strings.Contains(blank, "# lime workspace configuration") {
		t.Fatalf("blank template should keep only the header:\n%s", blank)
	}

	if _, err := BuildTemplate("fancy"); err == nil {
		t.Fatal("expected error for unknown style")
	}
}

func TestWriteTemplateLoads(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteTemplate(dir, StyleFull, false)
	if err != nil {
		t.Fatalf("WriteTemplate returned error: %v", err)
	}
	if _, err := WriteTemplate(dir, StyleFull, false); err == nil {
		t.Fatal("expected error when config exists")
	}
	if _, err := WriteTemplate(dir, StyleBare, true); err != nil {
		t.Fatalf("forced WriteTemplate returned error: %v", err)
	}

	rc, err := Load(LoadOptions{HomeDir: t.TempDir(), WorkDir: dir})
	if err != nil {
		t.Fatalf("template should load: %v", err)
	}
	if rc.ConfigPath != path {
		t.Fatalf("expected %q, got %q", path, rc.ConfigPath)
	}
	if m, ok := rc.ModelFor("mistral-7b-instruct"); !ok || m.Type != "local" {
		t.Fatalf("expected local model entry, got %+v", m)
	}
}
