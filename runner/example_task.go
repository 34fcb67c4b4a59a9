package runner

import (
	"context"

	"github.com/air-verse/airenv/envfile"
)

const exampleTaskName = "generate_example"

// ExampleTask writes the example env file for the store returned by source.
type ExampleTask struct {
	generator *envfile.ExampleGenerator
	source    func() *envfile.Store
}

// NewExampleTask returns a task generating outputFile from the store source
// returns at run time.
func NewExampleTask(outputFile string, patterns []string, source func() *envfile.Store) *ExampleTask {
	return &ExampleTask{
		generator: &envfile.ExampleGenerator{
			OutputFile:             outputFile,
			SensitiveValuePatterns: patterns,
		},
		source: source,
	}
}

func (t *ExampleTask) Name() string {
	return exampleTaskName
}

// OutputFile returns the path the example file is written to.
func (t *ExampleTask) OutputFile() string {
	return t.generator.OutputFile
}

func (t *ExampleTask) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.generator.Generate(t.source())
}
