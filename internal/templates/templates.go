// Package templates loads the catalog of default maintenance tasks created
// alongside a new vehicle.
package templates

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/ukydev/fleet-maintenance/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultCatalog []byte

// Catalog is an immutable set of maintenance templates.
type Catalog struct {
	templates []models.MaintenanceTemplate
}

type catalogFile struct {
	Templates []models.MaintenanceTemplate `yaml:"templates"`
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or returns the built-in one when path is
// empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and checks a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}
	for i, t := range file.Templates {
		if t.Name == "" {
			return nil, fmt.Errorf("template %d: name is required", i)
		}
		if t.MilesInterval < 0 || t.MonthsInterval < 0 {
			return nil, fmt.Errorf("template %q: intervals must not be negative", t.Name)
		}
		if t.MilesInterval == 0 && t.MonthsInterval == 0 {
			return nil, fmt.Errorf("template %q: at least one interval is required", t.Name)
		}
		for _, vt := range t.AppliesTo {
			if !models.IsValidVehicleType(vt) {
				return nil, fmt.Errorf("template %q: unknown vehicle type %q", t.Name, vt)
			}
		}
		if t.Category == "" {
			file.Templates[i].Category = models.DefaultCategory
		}
	}
	return &Catalog{templates: file.Templates}, nil
}

// All returns a copy of every template.
func (c *Catalog) All() []models.MaintenanceTemplate {
	out := make([]models.MaintenanceTemplate, len(c.templates))
	copy(out, c.templates)
	return out
}

// ForType returns the templates applying to a vehicle type.
func (c *Catalog) ForType(vt models.VehicleType) []models.MaintenanceTemplate {
	out := make([]models.MaintenanceTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		if t.Applies(vt) {
			out = append(out, t)
		}
	}
	return out
}
