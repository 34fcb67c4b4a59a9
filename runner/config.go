package runner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"time"

	"dario.cat/mergo"
	"github.com/pelletier/go-toml"

	"github.com/air-verse/airenv/envfile"
)

const (
	dftTOML  = ".airenv.toml"
	airenvWd = "airenv_wd"

	// PlatformWindows is runtime.GOOS on windows.
	PlatformWindows = "windows"
)

// Config is the main configuration structure for airenv.
type Config struct {
	Root    string     `toml:"root" usage:"Working directory, . or absolute path, the env files below are resolved against it"`
	EnvFile string     `toml:"env_file" usage:"Name of the env file injected into every spawned command"`
	Build   cfgBuild   `toml:"build"`
	Example cfgExample `toml:"example"`
	Watch   cfgWatch   `toml:"watch"`
	Color   cfgColor   `toml:"color"`
	Log     cfgLog     `toml:"log"`
}

type cfgBuild struct {
	PreCmd      []string      `toml:"pre_cmd" usage:"Array of commands to run before each build"`
	Cmd         string        `toml:"cmd" usage:"Just plain old shell command. You could use 'make' as well"`
	PostCmd     []string      `toml:"post_cmd" usage:"Array of commands to run after ^C"`
	Bin         string        `toml:"bin" usage:"Command started after a successful build, stopped on reload"`
	ArgsBin     []string      `toml:"args_bin" usage:"Add additional arguments when running bin"`
	EnvFiles    []string      `toml:"env_files" usage:"Extra dotenv files loaded below env_file, full dotenv syntax"`
	IsolateEnv  bool          `toml:"isolate_env" usage:"Do not pass the current process environment to commands"`
	Pty         bool          `toml:"pty" usage:"Run commands attached to a pseudo-terminal (not supported on windows)"`
	StopOnError bool          `toml:"stop_on_error" usage:"Skip the remaining commands when one of them fails"`
	KillDelay   time.Duration `toml:"kill_delay" usage:"Delay between interrupt and kill when stopping bin"`
}

type cfgExample struct {
	Enabled                bool     `toml:"enabled" usage:"Generate the example env file before every run"`
	OutputFile             string   `toml:"output_file" usage:"Example env file, defaults to <root>/<env_file>.example"`
	SensitiveValuePatterns []string `toml:"sensitive_value_patterns" usage:"Values of variables whose name contains one of these are blanked"`
}

type cfgWatch struct {
	Enabled      bool `toml:"enabled" usage:"Rerun the commands when an env file changes"`
	Poll         bool `toml:"poll" usage:"Poll files for changes instead of using fsnotify"`
	PollInterval int  `toml:"poll_interval" usage:"Poll interval in ms (minimum 500ms)"`
	Delay        int  `toml:"delay" usage:"Delay in ms before reloading after a change"`
}

type cfgLog struct {
	AddTime  bool `toml:"time" usage:"Show log time"`
	MainOnly bool `toml:"main_only" usage:"Only show main log (silences env, watcher, build, runner)"`
	Silent   bool `toml:"silent" usage:"silence all logs produced by airenv"`
}

type cfgColor struct {
	Main    string `toml:"main" usage:"Customize main part's color. If no color found, use the raw app log"`
	Env     string `toml:"env" usage:"Customize env part's color"`
	Watcher string `toml:"watcher" usage:"Customize watcher part's color"`
	Build   string `toml:"build" usage:"Customize build part's color"`
	Runner  string `toml:"runner" usage:"Customize runner part's color"`
}

type sliceTransformer struct{}

func (t sliceTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ.Kind() == reflect.Slice {
		return func(dst, src reflect.Value) error {
			if !src.IsNil() {
				dst.Set(src)
			}
			return nil
		}
	}
	return nil
}

// InitConfig initializes the configuration.
func InitConfig(path string, args map[string]TomlInfo) (cfg *Config, err error) {
	if path == "" {
		cfg, err = defaultPathConfig()
		if err != nil {
			return nil, err
		}
	} else {
		cfg, err = readConfigOrDefault(path)
		if err != nil {
			return nil, err
		}
	}
	config := defaultConfig()
	ret := &config
	err = mergo.Merge(ret, cfg, func(config *mergo.Config) {
		// mergo.Merge will overwrite the fields if it is Empty
		// So need use this to avoid that an explicit empty slice is replaced by the default.
		// https://dario.cat/mergo#transformers
		config.Transformers = sliceTransformer{}
		config.Overwrite = true
	})
	if err != nil {
		return nil, err
	}

	err = ret.preprocess(args)
	return ret, err
}

// WriteDefaultConfig writes the default configuration to the current directory.
func WriteDefaultConfig() (string, error) {
	fstat, err := os.Stat(dftTOML)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check for existing configuration: %w", err)
	}
	if err == nil && fstat != nil {
		return "", errors.New("configuration already exists")
	}

	file, err := os.Create(dftTOML)
	if err != nil {
		return "", fmt.Errorf("failed to create a new configuration: %w", err)
	}
	defer file.Close()

	config := defaultConfig()
	configFile, err := toml.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("failed to marshal the default configuration: %w", err)
	}

	_, err = file.Write(configFile)
	if err != nil {
		return "", fmt.Errorf("failed to write to %s: %w", dftTOML, err)
	}

	return dftTOML, nil
}

func defaultPathConfig() (*Config, error) {
	// when path is blank, look for `.airenv.toml` in `airenv_wd` or the current working directory
	cfg, err := readConfByName(dftTOML)
	if err == nil {
		return cfg, nil
	}

	dftCfg := defaultConfig()
	return &dftCfg, nil
}

func readConfByName(name string) (*Config, error) {
	var path string
	if wd := os.Getenv(airenvWd); wd != "" {
		path = filepath.Join(wd, name)
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(wd, name)
	}
	cfg, err := readConfig(path)
	return cfg, err
}

func defaultConfig() Config {
	build := cfgBuild{
		Cmd:       "go build -o ./tmp/main .",
		PreCmd:    []string{},
		PostCmd:   []string{},
		ArgsBin:   []string{},
		EnvFiles:  []string{},
		KillDelay: 500 * time.Millisecond,
	}
	if runtime.GOOS == PlatformWindows {
		build.Cmd = "go build -o ./tmp/main.exe ."
	}
	patterns := make([]string, len(envfile.DefaultSensitivePatterns))
	copy(patterns, envfile.DefaultSensitivePatterns)
	return Config{
		Root:    ".",
		EnvFile: envfile.DefaultFileName,
		Build:   build,
		Example: cfgExample{
			SensitiveValuePatterns: patterns,
		},
		Watch: cfgWatch{
			PollInterval: 500,
			Delay:        200,
		},
		Color: cfgColor{
			Main:    "magenta",
			Env:     "blue",
			Watcher: "cyan",
			Build:   "yellow",
			Runner:  "green",
		},
		Log: cfgLog{
			AddTime:  false,
			MainOnly: false,
			Silent:   false,
		},
	}
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := new(Config)
	if err = toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigOrDefault(path string) (*Config, error) {
	dftCfg := defaultConfig()
	cfg, err := readConfig(path)
	if err != nil {
		return &dftCfg, err
	}

	return cfg, nil
}

func (c *Config) preprocess(args map[string]TomlInfo) error {
	var err error
	if args != nil {
		if err = c.WithArgs(args); err != nil {
			return err
		}
	}
	cwd := os.Getenv(airenvWd)
	if cwd != "" {
		if err = os.Chdir(cwd); err != nil {
			return err
		}
		c.Root = cwd
	}
	c.Root, err = expandPath(c.Root)
	if err != nil {
		return err
	}
	if c.EnvFile == "" {
		c.EnvFile = envfile.DefaultFileName
	}
	for i := range c.Build.EnvFiles {
		c.Build.EnvFiles[i] = cleanPath(c.Build.EnvFiles[i])
	}
	if c.Example.OutputFile == "" {
		c.Example.OutputFile = c.EnvFile + ".example"
	}
	if c.Watch.PollInterval < 500 {
		c.Watch.PollInterval = 500
	}
	if c.Watch.Delay < 0 {
		c.Watch.Delay = 0
	}
	return nil
}

func (c *Config) colorInfo() map[string]string {
	return map[string]string{
		"main":    c.Color.Main,
		"env":     c.Color.Env,
		"build":   c.Color.Build,
		"runner":  c.Color.Runner,
		"watcher": c.Color.Watcher,
	}
}

func (c *Config) envFilePath() string {
	return joinPath(c.Root, c.EnvFile)
}

func (c *Config) extraEnvFilePaths() []string {
	paths := make([]string, 0, len(c.Build.EnvFiles))
	for _, f := range c.Build.EnvFiles {
		if f == "" {
			continue
		}
		paths = append(paths, joinPath(c.Root, f))
	}
	return paths
}

func (c *Config) exampleOutputPath() string {
	return joinPath(c.Root, c.Example.OutputFile)
}

func (c *Config) watchDelay() time.Duration {
	return time.Duration(c.Watch.Delay) * time.Millisecond
}

func (c *Config) pollInterval() time.Duration {
	return time.Duration(c.Watch.PollInterval) * time.Millisecond
}

func (c *Config) killDelay() time.Duration {
	// kill_delay can be specified as an integer or duration string
	// interpret as milliseconds if less than the value of 1 millisecond
	if c.Build.KillDelay < time.Millisecond {
		return c.Build.KillDelay * time.Millisecond
	}
	// normalize kill delay to milliseconds
	return time.Duration(c.Build.KillDelay.Milliseconds()) * time.Millisecond
}

func (c *Config) rel(path string) string {
	s, err := filepath.Rel(c.Root, path)
	if err != nil {
		return ""
	}
	return s
}

// WithArgs applies command line overrides to the configuration.
func (c *Config) WithArgs(args map[string]TomlInfo) error {
	for _, value := range args {
		// Ignore values that match the default configuration.
		// This ensures user-specified configurations are not overwritten by default values.
		if value.Value != nil && *value.Value != "" && *value.Value != value.fieldValue {
			v := reflect.ValueOf(c)
			if err := setValue2Struct(v, value.fieldPath, *value.Value); err != nil {
				return err
			}
		}
	}
	return nil
}
