package process

import (
	"errors"
	"fmt"
	"sort"
)

// Config describes how to launch an engine as a child process.
type Config struct {
	Name        string            `yaml:"name" json:"name" mapstructure:"name"`
	Command     string            `yaml:"command" json:"command" mapstructure:"command"`
	Args        []string          `yaml:"args" json:"args" mapstructure:"args"`
	Environment map[string]string `yaml:"env" json:"env" mapstructure:"env"`
	Dir         string            `yaml:"dir" json:"dir" mapstructure:"dir"`
}

// Validate reports configuration errors that would make Start fail.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("process engine without name")
	}
	if c.Command == "" {
		return fmt.Errorf("process engine %s: command is required", c.Name)
	}
	return nil
}

// Environ renders Environment as KEY=VALUE pairs, sorted by key.
func (c Config) Environ() []string {
	keys := make([]string, 0, len(c.Environment))
	for k := range c.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+c.Environment[k])
	}
	return env
}
