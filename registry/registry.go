// Package registry implements the backend registry and recursive mount
// configuration resolver, per the backend registry & mount configuration
// contract (component L): an Option-schema'd Backend descriptor, and
// ResolveMountConfig/Configure/ConfigureSingle on top of it.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zenfs/zenfs/fs"
)

// OptionType names the accepted shape of an Option's value.
type OptionType string

// Option value shapes, per spec §4.5.
const (
	TypeString  OptionType = "string"
	TypeNumber  OptionType = "number"
	TypeObject  OptionType = "object"
	TypeBoolean OptionType = "boolean"
)

// Option describes one named, typed configuration value a Backend accepts.
type Option struct {
	Name        string
	Type        OptionType
	Required    bool
	Description string
	Validator   func(value any) error
}

// Options is the decoded option-name -> value map passed to a Backend's
// Create function.
type Options map[string]any

// Backend is a factory descriptor: a name, its option schema, an
// availability probe, and a constructor producing an fs.FileSystem from
// validated options.
type Backend struct {
	Name        string
	Options     []Option
	IsAvailable func() bool
	Create      func(ctx context.Context, opts Options) (fs.FileSystem, error)
}

var registry = struct {
	mu       sync.RWMutex
	backends map[string]*Backend
}{backends: make(map[string]*Backend)}

// Register installs b under b.Name, overwriting any previous registration
// of the same name (idempotent registration in package init()s).
func Register(b *Backend) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.backends[b.Name] = b
}

// Lookup returns the Backend registered under name, if any.
func Lookup(name string) (*Backend, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	b, ok := registry.backends[name]
	return b, ok
}

// availabilityCache remembers IsAvailable() results for 30s per backend
// name, so a flapping probe does not re-run on every resolution within the
// window.
var availabilityCache = gocache.New(30*time.Second, time.Minute)

func isAvailable(b *Backend) bool {
	if b.IsAvailable == nil {
		return true
	}
	if cached, ok := availabilityCache.Get(b.Name); ok {
		return cached.(bool)
	}
	ok := b.IsAvailable()
	availabilityCache.Set(b.Name, ok, gocache.DefaultExpiration)
	return ok
}

const maxResolveDepth = 10

// Config names a Backend and supplies its option values; option values may
// themselves be Config (or *Config) for nested mount assembly (e.g.
// overlay's "w"/"r" options), resolved recursively by ResolveMountConfig.
type Config struct {
	Backend string
	Options Options
}

// ResolveMountConfig accepts an fs.FileSystem (returned as-is), a *Backend
// (created with no options), or a Config, recursively resolving any option
// values that are themselves Config/*Config up to maxResolveDepth levels,
// validating options, probing availability, and calling Create then Ready.
func ResolveMountConfig(ctx context.Context, value any) (fs.FileSystem, error) {
	return resolve(ctx, value, 0)
}

func resolve(ctx context.Context, value any, depth int) (fs.FileSystem, error) {
	if depth > maxResolveDepth {
		return nil, fs.NewError("resolveMountConfig", "", fs.EINVAL)
	}

	switch v := value.(type) {
	case fs.FileSystem:
		return v, nil
	case *Backend:
		return instantiate(ctx, v, Options{}, depth)
	case Backend:
		return instantiate(ctx, &v, Options{}, depth)
	case *Config:
		return resolveConfig(ctx, v, depth)
	case Config:
		return resolveConfig(ctx, &v, depth)
	default:
		return nil, fs.Errorf("resolveMountConfig", "", fs.EINVAL, "unrecognized mount configuration value %T", value)
	}
}

func resolveConfig(ctx context.Context, cfg *Config, depth int) (fs.FileSystem, error) {
	b, ok := Lookup(cfg.Backend)
	if !ok {
		return nil, fs.Errorf("resolveMountConfig", "", fs.EINVAL, "unknown backend %q", cfg.Backend)
	}

	resolved := make(Options, len(cfg.Options))
	for name, raw := range cfg.Options {
		switch raw.(type) {
		case Config, *Config, fs.FileSystem, Backend, *Backend:
			nested, err := resolve(ctx, raw, depth+1)
			if err != nil {
				return nil, err
			}
			resolved[name] = nested
		default:
			resolved[name] = raw
		}
	}
	return instantiate(ctx, b, resolved, depth)
}

func instantiate(ctx context.Context, b *Backend, opts Options, depth int) (fs.FileSystem, error) {
	if err := validate(b, opts); err != nil {
		return nil, err
	}
	if !isAvailable(b) {
		return nil, fs.Errorf("resolveMountConfig", "", fs.EPERM, "backend %q is not available", b.Name)
	}
	fsys, err := b.Create(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := fsys.Ready(ctx); err != nil {
		return nil, err
	}
	return fsys, nil
}

func validate(b *Backend, opts Options) error {
	for _, opt := range b.Options {
		value, present := opts[opt.Name]
		if !present {
			if opt.Required {
				return fs.Errorf("resolveMountConfig", "", fs.EINVAL, "backend %q: missing required option %q", b.Name, opt.Name)
			}
			continue
		}
		if opt.Validator != nil {
			if err := opt.Validator(value); err != nil {
				return fs.Errorf("resolveMountConfig", "", fs.EINVAL, "backend %q: option %q: %v", b.Name, opt.Name, err)
			}
		}
	}
	return nil
}

// String gives Config a readable form for log lines.
func (c Config) String() string {
	return fmt.Sprintf("%s(%v)", c.Backend, c.Options)
}
