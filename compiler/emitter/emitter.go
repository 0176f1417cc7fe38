// Package emitter renders compiled actions and the static foundation DDL
// (composite result type, cascade helpers, outbox table) into SQL files.
package emitter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/specql/specql/templates"
)

// foundationTemplates are rendered before any action function, in order:
// the composite type must exist before functions returning it are created.
var foundationTemplates = []string{
	"sql/mutation_result.sql.tmpl",
	"sql/cascade_helpers.sql.tmpl",
	"sql/outbox.sql.tmpl",
}

type Emitter struct {
	OutputDir    string
	TemplatesDir string
	HelperSchema string
	Version      string
}

func New(outputDir string) *Emitter {
	return &Emitter{
		OutputDir:    outputDir,
		TemplatesDir: "templates",
		HelperSchema: "app",
	}
}

// ReadTemplate reads a template from the embedded FS, falling back to
// disk so local template edits work with `go run`.
func (e *Emitter) ReadTemplate(name string) ([]byte, error) {
	content, err := templates.FS.ReadFile(name)
	if err == nil {
		return content, nil
	}
	return os.ReadFile(filepath.Join(e.TemplatesDir, filepath.FromSlash(name)))
}

type foundationContext struct {
	HelperSchema string
	Version      string
}

// RenderFoundation renders the static DDL every generated schema depends on.
func (e *Emitter) RenderFoundation() (string, error) {
	var buf bytes.Buffer
	for i, name := range foundationTemplates {
		raw, err := e.ReadTemplate(name)
		if err != nil {
			return "", fmt.Errorf("read template %s: %w", name, err)
		}
		tmpl, err := template.New(name).Parse(string(raw))
		if err != nil {
			return "", fmt.Errorf("parse template %s: %w", name, err)
		}
		if i > 0 {
			buf.WriteString("\n")
		}
		if err := tmpl.Execute(&buf, foundationContext{
			HelperSchema: e.HelperSchema,
			Version:      e.Version,
		}); err != nil {
			return "", fmt.Errorf("render template %s: %w", name, err)
		}
	}
	return buf.String(), nil
}

// WriteFoundation writes the rendered foundation DDL to 00_foundation.sql.
func (e *Emitter) WriteFoundation() (string, error) {
	sql, err := e.RenderFoundation()
	if err != nil {
		return "", err
	}
	path := filepath.Join(e.OutputDir, "00_foundation.sql")
	if err := e.writeFile(path, sql); err != nil {
		return "", err
	}
	return path, nil
}

// WriteFunction writes one compiled action function to its own file,
// named {lower entity}_{action}.sql.
func (e *Emitter) WriteFunction(entity, action, sql string) (string, error) {
	name := fmt.Sprintf("%s_%s.sql", strings.ToLower(entity), strings.ToLower(action))
	path := filepath.Join(e.OutputDir, name)
	if err := e.writeFile(path, sql); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Emitter) writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
