// Package envfile reads, edits and writes back plain `.env` files.
//
// The format is small: one KEY=value assignment per line, blank
// lines ignored, no quoting, no comments and no interpolation.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/spf13/cast"
)

// DefaultFileName is the env file looked up under a project root.
const DefaultFileName = ".env"

// Store is an ordered set of variables backed by a file path.
//
// A key keeps the position of its first insertion; putting an existing key
// again only replaces the value. A Store is not safe for concurrent use.
type Store struct {
	path   string
	keys   []string
	values map[string]string
}

// Open parses the env file at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	s := newStore(path)
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// ForProject opens the .env file located directly under rootDir.
func ForProject(rootDir string) (*Store, error) {
	return Open(filepath.Join(rootDir, DefaultFileName))
}

func newStore(path string) *Store {
	return &Store{
		path:   path,
		values: make(map[string]string),
	}
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &ReadError{Path: s.path, Err: err}
	}
	defer f.Close()

	// no line length limit
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			if name, value, ok := parseLine(line); ok {
				s.set(name, value)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &ReadError{Path: s.path, Err: err}
		}
	}
}

// parseLine splits on every '=' and keeps the first two tokens, so anything
// after a second '=' is dropped. Lines without a name are ignored.
func parseLine(line string) (string, string, bool) {
	if strings.TrimSpace(line) == "" {
		return "", "", false
	}
	parts := strings.Split(line, "=")
	if len(parts) < 2 {
		return "", "", false
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(parts[1]), true
}

func (s *Store) set(name, value string) {
	if _, ok := s.values[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

// Path returns the file the store reads from and flushes to.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the directory containing the store's file.
func (s *Store) Dir() string {
	return filepath.Dir(s.path)
}

// Name returns the base name of the store's file.
func (s *Store) Name() string {
	return filepath.Base(s.path)
}

// Exists reports whether the store's file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Put sets name to the string form of value. A nil value, typed or not, is
// stored as "".
func (s *Store) Put(name string, value any) error {
	if name == "" {
		return fmt.Errorf("%w: variable name must not be empty", ErrInvalidArgument)
	}
	s.set(name, stringify(value))
	return nil
}

func stringify(value any) string {
	if isNil(value) {
		return ""
	}
	str, err := cast.ToStringE(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return str
}

// isNil reports untyped nil and nil pointers, interfaces, maps, slices,
// channels and funcs.
func isNil(value any) bool {
	if value == nil {
		return true
	}
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// Get returns the value stored for name.
func (s *Store) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Len returns the number of variables.
func (s *Store) Len() int {
	return len(s.keys)
}

// Keys returns the variable names in file order.
func (s *Store) Keys() []string {
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	return keys
}

// All returns a copy of the variables. Changes to the returned map are not
// reflected in the store.
func (s *Store) All() map[string]string {
	all := make(map[string]string, len(s.values))
	for k, v := range s.values {
		all[k] = v
	}
	return all
}

// MergeWith copies every variable of other into s. Values for which keep
// reports false are written as empty strings; the key itself is always kept.
// A nil keep copies every value.
func (s *Store) MergeWith(other *Store, keep func(name string) bool) {
	for _, name := range other.keys {
		if keep == nil || keep(name) {
			s.set(name, other.values[name])
		} else {
			s.set(name, "")
		}
	}
}

// String renders the store in its on-disk form.
func (s *Store) String() string {
	var b strings.Builder
	for _, name := range s.keys {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(s.values[name])
		b.WriteByte('\n')
	}
	return b.String()
}

// Flush overwrites the store's file with its current contents.
func (s *Store) Flush() (err error) {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &FlushError{Path: s.path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &FlushError{Path: s.path, Err: cerr}
		}
	}()

	w := bufio.NewWriter(f)
	if _, err = w.WriteString(s.String()); err != nil {
		return &FlushError{Path: s.path, Err: err}
	}
	if err = w.Flush(); err != nil {
		return &FlushError{Path: s.path, Err: err}
	}
	return nil
}
