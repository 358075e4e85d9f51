package server

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Route maps a request path to an entry template and its data
type Route struct {
	Path     string         `yaml:"path"`
	Template string         `yaml:"template"`
	Data     map[string]any `yaml:"data,omitempty"`
}

type routesFile struct {
	Routes []Route `yaml:"routes"`
}

// LoadRoutes reads a YAML route table
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	return ParseRoutes(data)
}

// ParseRoutes parses and validates a YAML route table
func ParseRoutes(data []byte) ([]Route, error) {
	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}

	seen := make(map[string]bool, len(file.Routes))
	for i, route := range file.Routes {
		if !strings.HasPrefix(route.Path, "/") {
			return nil, fmt.Errorf("route %d: path must start with /", i)
		}
		if route.Template == "" {
			return nil, fmt.Errorf("route %d: template is required", i)
		}
		if seen[route.Path] {
			return nil, fmt.Errorf("route %d: duplicate path %s", i, route.Path)
		}
		seen[route.Path] = true
	}

	return file.Routes, nil
}
