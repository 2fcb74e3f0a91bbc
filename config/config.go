// Package config loads the project configuration file.
//
// The configuration is written in CUE (.depsync.cue) or YAML (.depsync.yaml,
// .depsync.yml). Both forms are unified with an embedded CUE schema that
// fills in defaults and rejects unknown fields, then decoded into Config.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/jmgilman/depsync/backend"
	"github.com/jmgilman/depsync/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource []byte

// FileNames are the configuration file names, in lookup order.
var FileNames = []string{".depsync.cue", ".depsync.yaml", ".depsync.yml"}

// Config is the project configuration.
type Config struct {
	Backends          []Backend   `json:"backends"`
	FallbackToInstall bool        `json:"fallbackToInstall"`
	ClearSharedCache  bool        `json:"clearSharedCache"`
	UseGitHistory     GitHistory  `json:"useGitHistory"`
	PackageHash       PackageHash `json:"packageHash"`
	InstallCommand    []string    `json:"installCommand"`
	ManifestFile      string      `json:"manifestFile"`
	LockFile          string      `json:"lockFile"`
	CacheDir          string      `json:"cacheDir"`
	SharedCacheDir    string      `json:"sharedCacheDir"`
}

// Backend is one entry of the backends list.
type Backend struct {
	Alias       string         `json:"alias"`
	Kind        string         `json:"backend"`
	Push        bool           `json:"push"`
	PushMayFail bool           `json:"pushMayFail"`
	Options     map[string]any `json:"options,omitempty"`
}

// GitHistory configures the search through older manifest revisions.
type GitHistory struct {
	// Depth is how many commits back to look. Zero disables the search.
	Depth int `json:"depth"`
}

// PackageHash configures the fingerprint.
type PackageHash struct {
	Suffix string `json:"suffix"`
}

// Find returns the path of the first configuration file present in dir.
func Find(fs billy.Filesystem, dir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := fs.Stat(path); err == nil {
			return path, nil
		} else if !os.IsNotExist(err) {
			return "", errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to stat configuration file",
				map[string]interface{}{"path": path})
		}
	}
	return "", errors.NewWithContext(errors.CodeNotFound,
		fmt.Sprintf("no configuration file found (looked for %s)", strings.Join(FileNames, ", ")),
		map[string]interface{}{"dir": dir})
}

// Load finds and parses the configuration file in dir.
func Load(ctx context.Context, fs billy.Filesystem, dir string) (*Config, error) {
	path, err := Find(fs, dir)
	if err != nil {
		return nil, err
	}
	return LoadFile(ctx, fs, path)
}

// LoadFile parses the configuration file at path.
func LoadFile(ctx context.Context, fs billy.Filesystem, path string) (*Config, error) {
	data, err := util.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithContext(err, errors.CodeNotFound, "configuration file not found",
				map[string]interface{}{"path": path})
		}
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read configuration file",
			map[string]interface{}{"path": path})
	}
	return Parse(ctx, data, path)
}

// Parse parses configuration source. The filename extension selects the
// format; anything but .yaml and .yml is treated as CUE.
func Parse(ctx context.Context, data []byte, filename string) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "context cancelled")
	}

	cueCtx := cuecontext.New()

	schema := cueCtx.CompileBytes(schemaSource, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "configuration schema is invalid")
	}

	value, err := compile(cueCtx, data, filename)
	if err != nil {
		return nil, err
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true), cue.Final(), cue.All()); err != nil {
		return nil, wrapCUE(err, "configuration is invalid", filename)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, wrapCUE(err, "failed to decode configuration", filename)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func compile(cueCtx *cue.Context, data []byte, filename string) (cue.Value, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cue.Value{}, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to parse YAML",
				map[string]interface{}{"file": filename})
		}
		if raw == nil {
			raw = map[string]any{}
		}
		value := cueCtx.Encode(raw)
		if err := value.Err(); err != nil {
			return cue.Value{}, wrapCUE(err, "failed to encode YAML", filename)
		}
		return value, nil
	default:
		value := cueCtx.CompileBytes(data, cue.Filename(filename))
		if err := value.Err(); err != nil {
			return cue.Value{}, wrapCUE(err, "failed to compile CUE", filename)
		}
		return value, nil
	}
}

// wrapCUE wraps a CUE error, keeping the per-field details.
func wrapCUE(err error, message, filename string) error {
	return errors.WrapWithContext(err, errors.CodeInvalidConfig, message, map[string]interface{}{
		"file":    filename,
		"details": cueerrors.Details(err, nil),
	})
}

// Validate checks constraints the schema cannot express.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New(errors.CodeInvalidConfig, "at least one backend must be configured")
	}

	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if seen[b.Alias] {
			return errors.NewWithContext(errors.CodeInvalidConfig,
				fmt.Sprintf("duplicate backend alias %q", b.Alias),
				map[string]interface{}{"alias": b.Alias})
		}
		seen[b.Alias] = true
	}
	return nil
}

// BuildBackends constructs the configured backends in configuration order.
func (c *Config) BuildBackends(registry *backend.Registry) ([]backend.Config, error) {
	out := make([]backend.Config, 0, len(c.Backends))
	for _, b := range c.Backends {
		impl, err := registry.New(b.Kind, b.Options)
		if err != nil {
			return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig,
				fmt.Sprintf("failed to configure backend %q", b.Alias),
				map[string]interface{}{"alias": b.Alias, "kind": b.Kind})
		}
		out = append(out, backend.Config{
			Alias:       b.Alias,
			Kind:        b.Kind,
			Backend:     impl,
			Options:     b.Options,
			Push:        b.Push,
			PushMayFail: b.PushMayFail,
		})
	}
	return out, nil
}
