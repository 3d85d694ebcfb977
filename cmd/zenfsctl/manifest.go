package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/zenfs/zenfs/registry"
)

// manifestFile is the on-disk shape of a mounts.yaml file:
//
//	uid: 1000
//	gid: 1000
//	disableAsyncCache: false
//	mounts:
//	  - prefix: /
//	    config:
//	      backend: overlay
//	      options:
//	        w: {backend: memstore}
//	        r: {backend: boltstore, options: {path: /var/lib/zenfs/data.db}}
type manifestFile struct {
	UID               uint32         `yaml:"uid"`
	GID               uint32         `yaml:"gid"`
	DisableAsyncCache bool           `yaml:"disableAsyncCache"`
	Mounts            []manifestSpec `yaml:"mounts"`
}

type manifestSpec struct {
	Prefix string         `yaml:"prefix"`
	Config manifestConfig `yaml:"config"`
}

// manifestConfig mirrors registry.Config but decodes from YAML, where
// nested option values arrive as map[interface{}]interface{} rather than
// registry.Config/Options directly.
type manifestConfig struct {
	Backend string                 `yaml:"backend"`
	Options map[string]interface{} `yaml:"options"`
}

func loadManifest(path string) (manifestFile, error) {
	var m manifestFile
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// toConfigureOptions converts the decoded YAML manifest into the Go-typed
// registry.ConfigureOptions that registry.Configure expects, recursively
// turning nested option maps back into registry.Config values.
func (m manifestFile) toConfigureOptions() registry.ConfigureOptions {
	opts := registry.ConfigureOptions{
		Uid:               m.UID,
		Gid:               m.GID,
		DisableAsyncCache: m.DisableAsyncCache,
	}
	for _, spec := range m.Mounts {
		opts.Mounts = append(opts.Mounts, registry.MountSpec{
			Prefix: spec.Prefix,
			Config: spec.Config.toConfig(),
		})
	}
	return opts
}

func (c manifestConfig) toConfig() registry.Config {
	resolved := make(registry.Options, len(c.Options))
	for name, raw := range c.Options {
		resolved[name] = resolveYAMLValue(raw)
	}
	return registry.Config{Backend: c.Backend, Options: resolved}
}

// resolveYAMLValue turns a YAML-decoded value into the shape
// registry.resolve expects: nested backend maps become registry.Config,
// everything else passes through unchanged.
func resolveYAMLValue(raw interface{}) interface{} {
	m, ok := asStringMap(raw)
	if !ok {
		return raw
	}
	backend, ok := m["backend"].(string)
	if !ok {
		return raw
	}
	var opts map[string]interface{}
	if rawOpts, ok := asStringMap(m["options"]); ok {
		opts = rawOpts
	}
	return manifestConfig{Backend: backend, Options: opts}.toConfig()
}

// asStringMap normalizes both map[string]interface{} and the
// map[interface{}]interface{} that gopkg.in/yaml.v2 produces for nested
// mappings into a single map[string]interface{}.
func asStringMap(raw interface{}) (map[string]interface{}, bool) {
	switch v := raw.(type) {
	case map[string]interface{}:
		return v, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			k, ok := key.(string)
			if !ok {
				return nil, false
			}
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}
