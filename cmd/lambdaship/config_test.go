package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/lambdaship/internal/core/deployment"
)

// =============================================================================
// Config Loading Tests
// =============================================================================

func TestLoadConfig_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Deploy.Functions)
	assert.Empty(t, cfg.Deploy.Environments)
	assert.Equal(t, "us-east-1", cfg.Deploy.Region)
	assert.Equal(t, "index.handler", cfg.Deploy.Handler)
	assert.Equal(t, "nodejs20.x", cfg.Deploy.Runtime)
	assert.Equal(t, 3, cfg.Deploy.Concurrency)
	assert.Equal(t, ".", cfg.Deploy.FunctionsRoot)
	assert.Equal(t, "${functionName}", cfg.Deploy.FunctionDirTemplate)
	assert.Equal(t, "${functionName}/meta.json", cfg.Deploy.MetaPathTemplate)
	assert.Equal(t, "Deployed on ${timestamp}", cfg.Deploy.DescriptionTemplate)
	assert.False(t, cfg.Deploy.DryRun)
	assert.Equal(t, "npm", cfg.Install.Command)
	assert.Equal(t, []string{"install", "--production"}, cfg.Install.Args)
	assert.Equal(t, 2*time.Minute, cfg.AWS.WaitTimeout)
	assert.Equal(t, "lambdaship/", cfg.Artifacts.KeyPrefix)
	assert.True(t, cfg.Artifacts.UseSSL)
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, ".lambdaship/journal.db", cfg.Journal.DSN)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadConfig_FromFile(t *testing.T) {
	clearEnv(t)

	configContent := `
log:
  level: "debug"
  format: "json"

deploy:
  functions: [api, worker]
  environments: [staging, prod]
  prefix: "myapp-"
  region: "eu-west-1"
  role: "arn:aws:iam::123456789012:role/lambda"
  concurrency: 5
  functions_root: "./functions"
  meta_path_template: "${functionName}/lambda.yaml"

install:
  command: "pnpm"
  args: ["install", "--prod"]

aws:
  wait_timeout: 30s

artifacts:
  bucket: "deploy-artifacts"
  endpoint: "localhost:9000"
  use_ssl: false

journal:
  dsn: "/tmp/lambdaship.db"

metrics:
  textfile: "/var/lib/node_exporter/lambdaship.prom"
`
	tmpFile := filepath.Join(t.TempDir(), "lambdaship.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	cfg, err := LoadConfig(tmpFile, nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"api", "worker"}, cfg.Deploy.Functions)
	assert.Equal(t, []string{"staging", "prod"}, cfg.Deploy.Environments)
	assert.Equal(t, "myapp-", cfg.Deploy.Prefix)
	assert.Equal(t, "eu-west-1", cfg.Deploy.Region)
	assert.Equal(t, "arn:aws:iam::123456789012:role/lambda", cfg.Deploy.Role)
	assert.Equal(t, 5, cfg.Deploy.Concurrency)
	assert.Equal(t, "./functions", cfg.Deploy.FunctionsRoot)
	assert.Equal(t, "${functionName}/lambda.yaml", cfg.Deploy.MetaPathTemplate)
	assert.Equal(t, "pnpm", cfg.Install.Command)
	assert.Equal(t, []string{"install", "--prod"}, cfg.Install.Args)
	assert.Equal(t, 30*time.Second, cfg.AWS.WaitTimeout)
	assert.Equal(t, "deploy-artifacts", cfg.Artifacts.Bucket)
	assert.False(t, cfg.Artifacts.UseSSL)
	assert.Equal(t, "/tmp/lambdaship.db", cfg.Journal.DSN)
	assert.Equal(t, "/var/lib/node_exporter/lambdaship.prom", cfg.Metrics.Textfile)
}

func TestLoadConfig_EnvironmentOverride(t *testing.T) {
	clearEnv(t)

	t.Setenv("LAMBDASHIP_DEPLOY_PREFIX", "envapp-")
	t.Setenv("LAMBDASHIP_DEPLOY_REGION", "ap-south-1")
	t.Setenv("LAMBDASHIP_DEPLOY_CONCURRENCY", "8")
	t.Setenv("LAMBDASHIP_DEPLOY_ENVIRONMENTS", "qa,prod")
	t.Setenv("LAMBDASHIP_JOURNAL_ENABLED", "false")
	t.Setenv("LAMBDASHIP_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "envapp-", cfg.Deploy.Prefix)
	assert.Equal(t, "ap-south-1", cfg.Deploy.Region)
	assert.Equal(t, 8, cfg.Deploy.Concurrency)
	assert.Equal(t, []string{"qa", "prod"}, cfg.Deploy.Environments)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_FlagsOverrideFileAndEnvironment(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "lambdaship.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("deploy:\n  prefix: file-\n  region: eu-west-1\n"), 0644))
	t.Setenv("LAMBDASHIP_DEPLOY_REGION", "ap-south-1")

	flags := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
	flags.StringSlice("env", nil, "")
	flags.String("prefix", "", "")
	flags.String("region", "", "")
	flags.Int("concurrency", 0, "")
	flags.Bool("dry-run", false, "")
	require.NoError(t, flags.Parse([]string{"--region", "us-west-2", "--env", "staging,prod", "--dry-run"}))

	cfg, err := LoadConfig(tmpFile, flags)
	require.NoError(t, err)

	assert.Equal(t, "us-west-2", cfg.Deploy.Region)
	assert.Equal(t, []string{"staging", "prod"}, cfg.Deploy.Environments)
	assert.True(t, cfg.Deploy.DryRun)
	// Unset flags leave file values and defaults alone.
	assert.Equal(t, "file-", cfg.Deploy.Prefix)
	assert.Equal(t, 3, cfg.Deploy.Concurrency)
}

func TestLoadConfig_NoFile_UsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Deploy.Region)
}

func TestLoadConfig_NamedFileMissing(t *testing.T) {
	clearEnv(t)

	missing := filepath.Join(t.TempDir(), "lambdaship.yaml")
	_, err := LoadConfig(missing, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
}

func TestLoadConfig_ExplicitZeroConcurrency(t *testing.T) {
	clearEnv(t)

	flags := pflag.NewFlagSet("deploy", pflag.ContinueOnError)
	flags.Int("concurrency", 0, "")
	require.NoError(t, flags.Parse([]string{"--concurrency=0"}))

	_, err := LoadConfig("", flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy.concurrency must be a positive integer, got 0")

	tmpFile := filepath.Join(t.TempDir(), "lambdaship.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("deploy:\n  concurrency: 0\n"), 0644))
	_, err = LoadConfig(tmpFile, nil)
	assert.Error(t, err)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	clearEnv(t)

	tmpFile := filepath.Join(t.TempDir(), "lambdaship.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("deploy: [unclosed\n  prefix"), 0644))

	_, err := LoadConfig(tmpFile, nil)
	assert.Error(t, err)
}

func TestConfig_DeploymentOptions(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	cfg.Deploy.Environments = []string{"staging"}
	cfg.Deploy.Prefix = "myapp-"

	dcfg, err := deployment.NewConfig(cfg.DeploymentOptions())
	require.NoError(t, err)

	assert.Equal(t, []deployment.Environment{"staging"}, dcfg.Environments())
	assert.Equal(t, "myapp-", dcfg.Prefix)
	assert.Equal(t, deployment.DefaultRuntime, dcfg.Runtime)
	assert.Equal(t, deployment.DefaultConcurrency, dcfg.Concurrency)
}

// =============================================================================
// Logger Setup Tests
// =============================================================================

func TestSetupLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: "text"}}, &buf)

	logger.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestSetupLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&Config{Log: LogConfig{Level: "info", Format: "json"}}, &buf)

	logger.Info("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level      string
		debugShown bool
		infoShown  bool
		warnShown  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"warning", false, false, true},
		{"error", false, false, false},
		{"bogus", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := SetupLogger(&Config{Log: LogConfig{Level: tt.level}}, &buf)

			logger.Debug("debug-line")
			logger.Info("info-line")
			logger.Warn("warn-line")

			assert.Equal(t, tt.debugShown, bytes.Contains(buf.Bytes(), []byte("debug-line")))
			assert.Equal(t, tt.infoShown, bytes.Contains(buf.Bytes(), []byte("info-line")))
			assert.Equal(t, tt.warnShown, bytes.Contains(buf.Bytes(), []byte("warn-line")))
		})
	}
}

// =============================================================================
// Test Helpers
// =============================================================================

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "LAMBDASHIP_") {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}
