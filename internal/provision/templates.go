package provision

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

//go:embed templates/*.tmpl
var embedded embed.FS

// loadTemplate resolves a template by name, preferring a synced override under
// overrideDir before falling back to the embedded copy.
func loadTemplate(overrideDir, name string) (*template.Template, error) {
	if overrideDir != "" {
		path := filepath.Join(overrideDir, name)
		if data, err := os.ReadFile(path); err == nil {
			tmpl, err := template.New(name).Parse(string(data))
			if err != nil {
				return nil, fmt.Errorf("parse template override %s: %w", path, err)
			}
			return tmpl, nil
		}
	}

	data, err := embedded.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("unknown template %q: %w", name, err)
	}
	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse embedded template %s: %w", name, err)
	}
	return tmpl, nil
}
