package runner

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPathWithDot(t *testing.T) {
	path, _ := expandPath(".")
	wd, _ := os.Getwd()
	if path != wd {
		t.Errorf("expected '%s' but got '%s'", wd, path)
	}
}

func TestExpandPathWithHomePath(t *testing.T) {
	path := "~/.conf"
	result, _ := expandPath(path)
	home := os.Getenv("HOME")
	want := home + path[1:]
	if result != want {
		t.Errorf("expected '%s' but got '%s'", want, result)
	}
}

func TestExpandPathWithRelativePath(t *testing.T) {
	result, _ := expandPath("./env")
	wd, _ := os.Getwd()
	assert.Equal(t, wd+"/env", result)
}

func TestExpandPathWithAbsolutePath(t *testing.T) {
	result, _ := expandPath("/srv/app")
	assert.Equal(t, "/srv/app", result)
}

func TestJoinPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/srv/app", ".env"), joinPath("/srv/app", ".env"))
	abs := filepath.Join(t.TempDir(), ".env.local")
	assert.Equal(t, abs, joinPath("/srv/app", abs))
}

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "config/.env", cleanPath("  config/.env "))
	assert.Equal(t, "config", cleanPath("config/"))
}

func TestAddArgs(t *testing.T) {
	assert.Equal(t, "./tmp/main", addArgs("./tmp/main", nil))
	assert.Equal(t, "./tmp/main serve --port 8080", addArgs("./tmp/main", []string{"serve", "--port", "8080"}))
}

func TestValidEvent(t *testing.T) {
	assert.True(t, validEvent(fsnotify.Event{Name: ".env", Op: fsnotify.Write}))
	assert.True(t, validEvent(fsnotify.Event{Name: ".env", Op: fsnotify.Create}))
	assert.True(t, validEvent(fsnotify.Event{Name: ".env", Op: fsnotify.Rename}))
	assert.False(t, validEvent(fsnotify.Event{Name: ".env", Op: fsnotify.Chmod}))

	assert.True(t, removeEvent(fsnotify.Event{Name: ".env", Op: fsnotify.Remove}))
	assert.False(t, removeEvent(fsnotify.Event{Name: ".env", Op: fsnotify.Write}))
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[string]string{"OS_NAME": "macos", "API_TOKEN": "t", "MILLION": "1"})
	assert.Equal(t, []string{"API_TOKEN", "MILLION", "OS_NAME"}, keys)
	assert.Empty(t, sortedKeys(nil))
}

func TestEnvironToMap(t *testing.T) {
	m := environToMap([]string{
		"HOME=/root",
		"DSN=host=localhost;port=5432",
		"EMPTY=",
		"NOEQUALS",
		"=novalue",
		"HOME=/home/app",
	})
	assert.Equal(t, map[string]string{
		"HOME":  "/home/app",
		"DSN":   "host=localhost;port=5432",
		"EMPTY": "",
	}, m)
}

func TestFileChecksum(t *testing.T) {
	tests := []struct {
		name                  string
		fileContents          []byte
		expectedChecksum      string
		expectedChecksumError string
	}{
		{
			name:                  "empty",
			fileContents:          []byte(``),
			expectedChecksum:      "",
			expectedChecksumError: "empty file, forcing reload without updating checksum",
		},
		{
			name:                  "simple",
			fileContents:          []byte(`foo`),
			expectedChecksum:      "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae",
			expectedChecksumError: "",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			f, err := os.CreateTemp(t.TempDir(), "")
			require.NoError(t, err)

			_, err = f.Write(test.fileContents)
			require.NoError(t, err)
			require.NoError(t, f.Close())

			checksum, err := fileChecksum(f.Name())
			if err != nil && err.Error() != test.expectedChecksumError {
				t.Errorf("unexpected error: %v", err)
			}
			if test.expectedChecksumError != "" && err == nil {
				t.Errorf("expected error %q, got nil", test.expectedChecksumError)
			}
			if checksum != test.expectedChecksum {
				t.Errorf("expected checksum %s, got %s", test.expectedChecksum, checksum)
			}
		})
	}
}

func TestFileChecksumMissingFile(t *testing.T) {
	_, err := fileChecksum(filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestChecksumMap(t *testing.T) {
	m := &checksumMap{m: make(map[string]string, 3)}

	if !m.updateFileChecksum("foo.txt", "abcxyz") {
		t.Errorf("expected no entry for foo.txt, but had one")
	}

	if m.updateFileChecksum("foo.txt", "abcxyz") {
		t.Errorf("expected matching entry for foo.txt")
	}

	if !m.updateFileChecksum("foo.txt", "123456") {
		t.Errorf("expected matching entry for foo.txt")
	}

	if !m.updateFileChecksum("bar.txt", "123456") {
		t.Errorf("expected no entry for bar.txt, but had one")
	}

	m.forget("foo.txt")
	if !m.updateFileChecksum("foo.txt", "123456") {
		t.Errorf("expected foo.txt to be forgotten")
	}
}

func TestFlatConfig(t *testing.T) {
	m := flatConfig(defaultConfig())
	for _, key := range []string{"root", "env_file", "build.cmd", "build.env_files", "example.output_file", "watch.poll_interval", "log.silent"} {
		_, ok := m[key]
		assert.True(t, ok, "missing flag %s", key)
	}
	assert.Equal(t, "password,token", m["example.sensitive_value_patterns"].fieldValue)
	assert.True(t, strings.HasPrefix(m["build.cmd"].fieldValue, "go build"))
}

func TestSetValue2Struct(t *testing.T) {
	c := defaultConfig()
	v := reflect.ValueOf(&c)
	require.NoError(t, setValue2Struct(v, "Build.PreCmd", "echo one,echo two"))
	require.NoError(t, setValue2Struct(v, "Watch.Enabled", "true"))
	require.NoError(t, setValue2Struct(v, "Watch.Delay", "1000"))
	require.NoError(t, setValue2Struct(v, "EnvFile", ".env.dev"))

	assert.Equal(t, []string{"echo one", "echo two"}, c.Build.PreCmd)
	assert.True(t, c.Watch.Enabled)
	assert.Equal(t, 1000, c.Watch.Delay)
	assert.Equal(t, ".env.dev", c.EnvFile)
}

func TestSetValue2StructDuration(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{value: "1s", want: time.Second},
		{value: "1500ms", want: 1500 * time.Millisecond},
		{value: "250", want: 250 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			c := defaultConfig()
			require.NoError(t, setValue2Struct(reflect.ValueOf(&c), "Build.KillDelay", tt.value))
			assert.Equal(t, tt.want, c.killDelay())
		})
	}
}

func TestSetValue2StructInvalidValue(t *testing.T) {
	tests := []struct {
		field string
		value string
	}{
		{field: "Build.KillDelay", value: "soon"},
		{field: "Watch.Delay", value: "1s"},
		{field: "Watch.Enabled", value: "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			c := defaultConfig()
			err := setValue2Struct(reflect.ValueOf(&c), tt.field, tt.value)
			assert.ErrorContains(t, err, tt.value)
			assert.Equal(t, defaultConfig(), c)
		})
	}
}
