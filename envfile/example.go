package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSensitivePatterns are the key fragments whose values are masked in a
// generated example file.
var DefaultSensitivePatterns = []string{"password", "token"}

// Stage is the last step ExampleGenerator.Generate completed.
type Stage int

const (
	StageNotStarted Stage = iota
	StageDestinationEnsured
	StageMerged
	StageFlushed
)

func (s Stage) String() string {
	switch s {
	case StageNotStarted:
		return "not started"
	case StageDestinationEnsured:
		return "destination ensured"
	case StageMerged:
		return "merged"
	case StageFlushed:
		return "flushed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// KeepValue returns a predicate that keeps a variable's value unless one of
// patterns occurs in its name, ignoring case. Empty patterns are ignored.
func KeepValue(patterns []string) func(name string) bool {
	lowered := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		lowered = append(lowered, strings.ToLower(p))
	}
	return func(name string) bool {
		name = strings.ToLower(name)
		for _, p := range lowered {
			if strings.Contains(name, p) {
				return false
			}
		}
		return true
	}
}

// ExampleGenerator writes a copy of an env file in which the values of
// sensitive variables are blanked.
type ExampleGenerator struct {
	// OutputFile is the destination path. Missing parent directories are created.
	OutputFile string
	// SensitiveValuePatterns are matched case-insensitively against variable
	// names. A nil or empty list masks nothing.
	SensitiveValuePatterns []string

	stage Stage
}

// NewExampleGenerator returns a generator using DefaultSensitivePatterns.
func NewExampleGenerator(outputFile string) *ExampleGenerator {
	patterns := make([]string, len(DefaultSensitivePatterns))
	copy(patterns, DefaultSensitivePatterns)
	return &ExampleGenerator{
		OutputFile:             outputFile,
		SensitiveValuePatterns: patterns,
	}
}

// Generate merges source into the output file and flushes it. Variables
// already present in the output file are kept.
func (g *ExampleGenerator) Generate(source *Store) error {
	g.stage = StageNotStarted
	fail := func(err error) error {
		return &GenerationError{Stage: g.stage, Err: err}
	}

	if g.OutputFile == "" {
		return fail(fmt.Errorf("%w: output file is not set", ErrInvalidArgument))
	}
	if err := ensureFile(g.OutputFile); err != nil {
		return fail(err)
	}
	g.stage = StageDestinationEnsured

	dest, err := Open(g.OutputFile)
	if err != nil {
		return fail(err)
	}
	dest.MergeWith(source, KeepValue(g.SensitiveValuePatterns))
	g.stage = StageMerged

	if err := dest.Flush(); err != nil {
		return fail(err)
	}
	g.stage = StageFlushed
	return nil
}

// Stage returns the last step the latest Generate call completed.
func (g *ExampleGenerator) Stage() Stage {
	return g.stage
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDirectoryCreation, filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileCreation, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileCreation, path, err)
	}
	return nil
}
