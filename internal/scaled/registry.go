package scaled

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vigil/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// presetSchema constrains preset file entries; a file that fails it is
// rejected wholesale and the previous snapshot stays live.
const presetSchema = `{
  "type": "object",
  "properties": {
    "presets": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "description": {"type": "string"},
          "targets": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "properties": {
                "price_percent": {"type": "number", "exclusiveMinimum": 0},
                "quantity_percent": {"type": "number", "exclusiveMinimum": 0, "maximum": 100}
              },
              "required": ["price_percent", "quantity_percent"]
            }
          },
          "trailing_take_profit": {
            "type": "object",
            "properties": {
              "activation_percent": {"type": "number", "minimum": 0},
              "trail_percent": {"type": "number", "exclusiveMinimum": 0}
            },
            "required": ["trail_percent"]
          }
        },
        "required": ["targets"]
      }
    }
  },
  "required": ["presets"]
}`

type presetFile struct {
	Presets map[string]Preset `yaml:"presets" mapstructure:"presets"`
}

// Snapshot is an immutable view of the preset set.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Presets  map[string]Preset
}

// Registry serves named presets. It always contains the builtins; an
// optional YAML file can override or extend them and is hot-reloaded
// on change.
type Registry struct {
	path   string
	schema *jsonschema.Schema

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry builds a registry from the builtins only.
func NewRegistry() *Registry {
	r := &Registry{schema: mustCompileSchema()}
	r.swap(builtinPresets())
	return r
}

// NewRegistryFromFile builds a registry layered over path and watches
// it for changes.
func NewRegistryFromFile(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("preset registry requires a path")
	}
	r := &Registry{path: path, schema: mustCompileSchema()}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read preset file failed: %w", err)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("preset reload failed, keeping previous set: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Resolve returns the preset for name. An empty name resolves to
// "balanced".
func (r *Registry) Resolve(name string) (Preset, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "balanced"
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	preset, ok := r.snapshot.Presets[key]
	return clonePreset(preset), ok
}

// Snapshot returns the current preset set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		Version:  r.snapshot.Version,
		LoadedAt: r.snapshot.LoadedAt,
		Presets:  make(map[string]Preset, len(r.snapshot.Presets)),
	}
	for name, preset := range r.snapshot.Presets {
		out.Presets[name] = clonePreset(preset)
	}
	return out
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read preset file failed: %w", err)
	}
	if err := r.validateRaw(raw); err != nil {
		return err
	}
	var file presetFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("parse preset file failed: %w", err)
	}
	merged := builtinPresets()
	for name, preset := range file.Presets {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		preset.Name = key
		merged[key] = preset
	}
	r.swap(merged)
	logger.Infof("preset registry loaded %d presets from %s", len(merged), filepath.Base(r.path))
	return nil
}

// validateRaw runs the JSON-schema check over the YAML document.
func (r *Registry) validateRaw(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse preset file failed: %w", err)
	}
	// jsonschema acts on JSON-shaped values, so round-trip through
	// encoding/json to normalize YAML map types.
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize preset file failed: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(buf, &normalized); err != nil {
		return fmt.Errorf("normalize preset file failed: %w", err)
	}
	if err := r.schema.Validate(normalized); err != nil {
		return fmt.Errorf("preset file rejected by schema: %w", err)
	}
	return nil
}

func (r *Registry) swap(presets map[string]Preset) {
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Presets:  presets,
	}
	r.mu.Unlock()
}

func clonePreset(preset Preset) Preset {
	out := preset
	out.Targets = append([]TargetSpec(nil), preset.Targets...)
	if preset.TrailingTP != nil {
		leg := *preset.TrailingTP
		out.TrailingTP = &leg
	}
	return out
}

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("presets.json", strings.NewReader(presetSchema)); err != nil {
		panic(fmt.Sprintf("preset schema resource: %v", err))
	}
	schema, err := compiler.Compile("presets.json")
	if err != nil {
		panic(fmt.Sprintf("preset schema compile: %v", err))
	}
	return schema
}
