package config

import (
	"os"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// FileReader abstracts file access so loaders are testable without disk.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader reads from the real filesystem.
type OSFileReader struct{}

func (OSFileReader) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

// Loader reads, parses, defaults and validates configuration files.
type Loader struct {
	reader FileReader
	parser *SafeYAMLParser
}

// NewLoader creates a loader with default YAML limits.
func NewLoader(reader FileReader) *Loader {
	return NewLoaderWithLimits(reader, DefaultYAMLLimits())
}

// NewLoaderWithLimits creates a loader with custom YAML limits.
func NewLoaderWithLimits(reader FileReader, limits YAMLLimits) *Loader {
	return &Loader{reader: reader, parser: NewSafeYAMLParser(limits)}
}

// Load reads a config file and returns the validated configuration with
// defaults and environment overrides applied.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := l.reader.ReadFile(path)
	if err != nil {
		return nil, lserror.Backend(err)
	}
	return l.Parse(data)
}

// Parse decodes config bytes through the same pipeline as Load.
func (l *Loader) Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := l.parser.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a config file with the OS filesystem and default limits.
func Load(path string) (*Config, error) {
	return NewLoader(OSFileReader{}).Load(path)
}
