package runner

import (
	"flag"
)

// CreateArgsFlags registers a --section.key flag for every configuration leaf.
func CreateArgsFlags(f *flag.FlagSet) map[string]TomlInfo {
	c := Config{}
	m := flatConfig(c)
	for k, v := range m {
		f.StringVar(v.Value, k, "", v.usage)
	}
	return m
}
