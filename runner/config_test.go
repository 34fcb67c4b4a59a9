package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := defaultConfig()

	assert.Equal(t, ".", c.Root)
	assert.Equal(t, ".env", c.EnvFile)
	assert.Equal(t, []string{"password", "token"}, c.Example.SensitiveValuePatterns)
	assert.False(t, c.Example.Enabled)
	assert.False(t, c.Watch.Enabled)
	assert.False(t, c.Build.IsolateEnv)
	assert.Equal(t, 500*time.Millisecond, c.Build.KillDelay)
	if runtime.GOOS == PlatformWindows {
		assert.True(t, strings.HasSuffix(c.Build.Cmd, ".exe ."))
	} else {
		assert.Equal(t, "go build -o ./tmp/main .", c.Build.Cmd)
	}
}

func TestDefaultConfigPatternsAreCopied(t *testing.T) {
	c := defaultConfig()
	c.Example.SensitiveValuePatterns[0] = "secret"
	assert.Equal(t, []string{"password", "token"}, defaultConfig().Example.SensitiveValuePatterns)
}

func TestDefaultPathConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		envFile string
	}{{
		name:    "no config file",
		envFile: ".env",
	}, {
		name:    "TOML",
		content: "env_file = \".env.local\"\n",
		envFile: ".env.local",
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.content != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, dftTOML), []byte(tt.content), 0o644))
			}
			chdir(t, dir)
			t.Setenv(airenvWd, dir)

			cfg, err := InitConfig("", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.envFile, cfg.EnvFile)
			assert.Equal(t, dir, cfg.Root)
		})
	}
}

func TestReadConfByName(t *testing.T) {
	t.Setenv(airenvWd, t.TempDir())
	config, _ := readConfByName(dftTOML)
	if config != nil {
		t.Fatalf("expect config is nil,but get a not nil config")
	}
}

func TestConfPreprocess(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv(airenvWd, "")

	c := defaultConfig()
	c.EnvFile = ""
	c.Build.EnvFiles = []string{" config/.env.shared/ ", ".env.local"}
	c.Watch.PollInterval = 100
	c.Watch.Delay = -10
	require.NoError(t, c.preprocess(nil))

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, c.Root)
	assert.Equal(t, ".env", c.EnvFile)
	assert.Equal(t, ".env.example", c.Example.OutputFile)
	assert.Equal(t, []string{"config/.env.shared", ".env.local"}, c.Build.EnvFiles)
	assert.Equal(t, 500, c.Watch.PollInterval)
	assert.Equal(t, 0, c.Watch.Delay)

	assert.Equal(t, filepath.Join(wd, ".env"), c.envFilePath())
	assert.Equal(t, filepath.Join(wd, ".env.example"), c.exampleOutputPath())
	assert.Equal(t, []string{
		filepath.Join(wd, "config/.env.shared"),
		filepath.Join(wd, ".env.local"),
	}, c.extraEnvFilePaths())
}

func TestConfPreprocessExampleFollowsEnvFile(t *testing.T) {
	t.Setenv(airenvWd, "")
	c := defaultConfig()
	c.Root = t.TempDir()
	c.EnvFile = "deploy/.env.prod"
	require.NoError(t, c.preprocess(nil))
	assert.Equal(t, "deploy/.env.prod.example", c.Example.OutputFile)
}

func TestReadConfigWithWrongPath(t *testing.T) {
	c, err := readConfig("xxxx")
	if err == nil {
		t.Fatal("need throw a error")
	}
	if c != nil {
		t.Fatal("expect is nil but got a conf")
	}
}

func TestInitConfigFromPath(t *testing.T) {
	t.Setenv(airenvWd, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "airenv.toml")
	content := fmt.Sprintf(`
root = %q
env_file = ".env.dev"

[build]
pre_cmd = ["echo prepare"]
cmd = "make build"
env_files = [".env.shared"]
isolate_env = true
kill_delay = "1s"

[example]
enabled = true
output_file = "examples/.env.dev.example"
sensitive_value_patterns = []

[watch]
enabled = true
poll = true
poll_interval = 1000
`, filepath.ToSlash(dir))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := InitConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.ToSlash(dir), filepath.ToSlash(cfg.Root))
	assert.Equal(t, ".env.dev", cfg.EnvFile)
	assert.Equal(t, []string{"echo prepare"}, cfg.Build.PreCmd)
	assert.Equal(t, []string{}, cfg.Build.PostCmd)
	assert.Equal(t, "make build", cfg.Build.Cmd)
	assert.Equal(t, []string{".env.shared"}, cfg.Build.EnvFiles)
	assert.True(t, cfg.Build.IsolateEnv)
	assert.Equal(t, time.Second, cfg.killDelay())
	assert.True(t, cfg.Example.Enabled)
	assert.Equal(t, "examples/.env.dev.example", cfg.Example.OutputFile)
	// an explicit empty list is kept, every value is copied verbatim
	assert.Equal(t, []string{}, cfg.Example.SensitiveValuePatterns)
	assert.True(t, cfg.Watch.Poll)
	assert.Equal(t, time.Second, cfg.pollInterval())
	assert.Equal(t, 200*time.Millisecond, cfg.watchDelay())
	// colors fall back to the defaults
	assert.Equal(t, "blue", cfg.Color.Env)
}

func TestInitConfigWithWrongPath(t *testing.T) {
	_, err := InitConfig(filepath.Join(t.TempDir(), "missing.toml"), nil)
	assert.Error(t, err)
}

func TestKillDelay(t *testing.T) {
	tests := []struct {
		name  string
		delay time.Duration
		want  time.Duration
	}{
		{name: "milliseconds as integer", delay: 500, want: 500 * time.Millisecond},
		{name: "duration", delay: 2 * time.Second, want: 2 * time.Second},
		{name: "sub-millisecond part dropped", delay: 1500 * time.Microsecond, want: time.Millisecond},
		{name: "zero", delay: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultConfig()
			c.Build.KillDelay = tt.delay
			assert.Equal(t, tt.want, c.killDelay())
		})
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	chdir(t, t.TempDir())

	configName, err := WriteDefaultConfig()
	require.NoError(t, err)
	assert.FileExists(t, configName)

	actual, err := readConfig(configName)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(), *actual)

	_, err = WriteDefaultConfig()
	assert.EqualError(t, err, "configuration already exists")
}

func TestConfigRel(t *testing.T) {
	c := defaultConfig()
	c.Root = filepath.FromSlash("/srv/app")
	assert.Equal(t, filepath.FromSlash("config/.env"), c.rel(filepath.FromSlash("/srv/app/config/.env")))
}
