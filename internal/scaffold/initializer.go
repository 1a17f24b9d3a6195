// Package scaffold writes a starter terrain.yml for a new deployment.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dyluth/terrain/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// EnvExampleFile is written next to terrain.yml.
const EnvExampleFile = ".env.example"

// Params fills the templates.
type Params struct {
	Canvas  string
	Backend string
}

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes terrain.yml and .env.example into dir and returns the
// paths written. Existing files are an error unless force is set.
func Initialize(dir string, params Params, force bool) ([]string, error) {
	if params.Canvas == "" {
		params.Canvas = config.Default().Canvas.Name
	}
	if params.Backend == "" {
		params.Backend = config.BackendHTTP
	}

	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	files, err := renderTemplates(dir, params)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(files))
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
		written = append(written, file.Path)
	}

	// The generated file must load cleanly
	if _, err := config.Load(filepath.Join(dir, config.DefaultConfigFile)); err != nil {
		return written, fmt.Errorf("generated %s is invalid: %w", config.DefaultConfigFile, err)
	}

	return written, nil
}

// renderTemplates executes every template for params
func renderTemplates(dir string, params Params) ([]FileInfo, error) {
	targets := []struct {
		template string
		name     string
	}{
		{"templates/terrain.yml.tmpl", config.DefaultConfigFile},
		{"templates/env.tmpl", EnvExampleFile},
	}

	files := make([]FileInfo, 0, len(targets))
	for _, target := range targets {
		tmpl, err := template.ParseFS(templatesFS, target.template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", target.name, err)
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, params); err != nil {
			return nil, fmt.Errorf("failed to render %s: %w", target.name, err)
		}

		files = append(files, FileInfo{
			Path:        filepath.Join(dir, target.name),
			Content:     buf.Bytes(),
			Permissions: 0644,
		})
	}
	return files, nil
}
