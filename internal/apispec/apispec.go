// Package apispec embeds the OpenAPI document shared by the JSON API
// validator and the remote listings client.
package apispec

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// Load parses and validates the embedded document once per process.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(document)
		if err != nil {
			loadErr = fmt.Errorf("load openapi document: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			loadErr = fmt.Errorf("invalid openapi document: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}

// Schema returns the named component schema.
func Schema(name string) (*openapi3.Schema, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	ref, ok := doc.Components.Schemas[name]
	if !ok || ref.Value == nil {
		return nil, fmt.Errorf("schema %q not defined", name)
	}
	return ref.Value, nil
}
