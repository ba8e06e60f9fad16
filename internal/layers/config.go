package layers

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config declares groups and their render layers in mount order.
//
//	groups:
//	  - id: base-osm
//	    name: OpenStreetMap
//	    category: base
//	    visible: true
//	    layers:
//	      - id: osm-raster
//	        kind: raster
//	        source: osm
type Config struct {
	Groups []GroupConfig `yaml:"groups" validate:"dive"`
}

// GroupConfig declares one group.
type GroupConfig struct {
	ID            string        `yaml:"id" validate:"required"`
	Name          string        `yaml:"name" validate:"required"`
	Thumbnail     string        `yaml:"thumbnail"`
	Category      Category      `yaml:"category" validate:"required,oneof=base feature internal"`
	Visible       bool          `yaml:"visible"`
	Interactivity Interactivity `yaml:"interactivity"`
	Layers        []LayerConfig `yaml:"layers" validate:"required,min=1,dive"`
}

// LayerConfig declares one render layer.
type LayerConfig struct {
	ID          string         `yaml:"id" validate:"required"`
	Kind        string         `yaml:"kind"`
	Source      string         `yaml:"source" validate:"required"`
	SourceLayer string         `yaml:"sourceLayer"`
	Hints       map[string]any `yaml:"hints"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig decodes and validates a YAML layer configuration.
func LoadConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse layer config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid layer config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads a YAML layer configuration from disk.
func LoadConfigFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Mount registers every group and layer of cfg in declared order. It stops
// at the first configuration error.
func (r *Registry) Mount(cfg Config) error {
	for _, g := range cfg.Groups {
		err := r.AddGroup(Group{
			ID:            g.ID,
			Name:          g.Name,
			Thumbnail:     g.Thumbnail,
			Category:      g.Category,
			Visible:       g.Visible,
			Interactivity: g.Interactivity,
		})
		if err != nil {
			return err
		}
		for _, l := range g.Layers {
			err := r.AddLayer(LayerInfo{
				ID:          l.ID,
				GroupID:     g.ID,
				Kind:        l.Kind,
				Layout:      Layout{Hints: l.Hints},
				Source:      l.Source,
				SourceLayer: l.SourceLayer,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmount removes every layer declared in cfg; groups go with their last
// layer.
func (r *Registry) Unmount(cfg Config) {
	for _, g := range cfg.Groups {
		for _, l := range g.Layers {
			r.RemoveLayer(l.ID)
		}
	}
}
