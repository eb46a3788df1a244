// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/orphion/orphion/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports sessions as indented JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	return &JSONExporter{options: orDefault(opts)}
}

// Export implements Exporter.
func (e *JSONExporter) Export(cs model.ChatSession) ([]byte, error) {
	if err := validate(cs); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(newDocument(cs, e.options), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension implements Exporter.
func (e *JSONExporter) FileExtension() string { return ".json" }

// MimeType implements Exporter.
func (e *JSONExporter) MimeType() string { return "application/json" }

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter exports sessions as YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	return &YAMLExporter{options: orDefault(opts)}
}

// Export implements Exporter.
func (e *YAMLExporter) Export(cs model.ChatSession) ([]byte, error) {
	if err := validate(cs); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(newDocument(cs, e.options)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension implements Exporter.
func (e *YAMLExporter) FileExtension() string { return ".yaml" }

// MimeType implements Exporter.
func (e *YAMLExporter) MimeType() string { return "application/yaml" }
