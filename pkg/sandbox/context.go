// Package sandbox confines tool execution to declared file paths, network
// domains, environment variables and resource budgets.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Wildcard disables a restriction class when it appears in an allow-list.
const Wildcard = "*"

// ResourceLimits bound one execution. Zero values mean unlimited.
type ResourceLimits struct {
	MaxMemoryBytes   int64         `yaml:"max_memory_bytes" json:"max_memory_bytes"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" json:"max_execution_time"`
	MaxGoroutines    int           `yaml:"max_goroutines" json:"max_goroutines"`
	MaxDiskBytes     int64         `yaml:"max_disk_bytes" json:"max_disk_bytes"`
}

// Context is one sandbox: the allow-lists and budget a tool runs under.
// Allow-list semantics: paths match exactly or by directory prefix, domains
// match exactly or by a ".suffix" entry, environment variables match
// exactly. A "*" entry disables that restriction class.
type Context struct {
	ID             string
	AllowedPaths   []string
	AllowedDomains []string
	AllowedEnv     []string
	WorkDir        string
	Limits         ResourceLimits
}

// NewContext creates a sandbox context rooted at workDir.
func NewContext(id, workDir string) *Context {
	return &Context{ID: id, WorkDir: workDir}
}

// CheckPath reports whether path may be accessed. Relative paths resolve
// against the sandbox working directory.
func (c *Context) CheckPath(path string) error {
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(c.WorkDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	for _, allowed := range c.AllowedPaths {
		if allowed == Wildcard {
			return nil
		}
		a := filepath.Clean(allowed)
		if resolved == a || strings.HasPrefix(resolved, a+string(filepath.Separator)) {
			return nil
		}
	}
	return lserror.SandboxViolation(lserror.ViolationFileAccess,
		fmt.Sprintf("path %q is not in the sandbox allow-list", path))
}

// CheckDomain reports whether host may be reached. An allow-list entry
// starting with "." matches the domain and every subdomain.
func (c *Context) CheckDomain(host string) error {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	for _, allowed := range c.AllowedDomains {
		if allowed == Wildcard {
			return nil
		}
		a := strings.ToLower(allowed)
		if strings.HasPrefix(a, ".") {
			if strings.HasSuffix(h, a) || h == strings.TrimPrefix(a, ".") {
				return nil
			}
			continue
		}
		if h == a {
			return nil
		}
	}
	return lserror.SandboxViolation(lserror.ViolationNetworkAccess,
		fmt.Sprintf("domain %q is not in the sandbox allow-list", host))
}

// CheckEnv reports whether the environment variable name may be read.
// Env entries match exactly; there is no prefix form.
func (c *Context) CheckEnv(name string) error {
	for _, allowed := range c.AllowedEnv {
		if allowed == Wildcard || allowed == name {
			return nil
		}
	}
	return lserror.SandboxViolation(lserror.ViolationEnvironmentAccess,
		fmt.Sprintf("environment variable %q is not in the sandbox allow-list", name))
}

// ReadFile reads a file after checking the path allow-list.
func (c *Context) ReadFile(path string) ([]byte, error) {
	if err := c.CheckPath(path); err != nil {
		return nil, err
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(c.WorkDir, resolved)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, lserror.Backend(err)
	}
	return data, nil
}

// Getenv reads an environment variable after checking the env allow-list.
func (c *Context) Getenv(name string) (string, error) {
	if err := c.CheckEnv(name); err != nil {
		return "", err
	}
	return os.Getenv(name), nil
}
