// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"time"

	"github.com/orphion/orphion/internal/model"
)

// document is the shape shared by the JSON and YAML exports.
type document struct {
	ID                      string            `json:"id" yaml:"id"`
	Title                   string            `json:"title" yaml:"title"`
	TitleGenerated          bool              `json:"titleGenerated" yaml:"title_generated"`
	TitleGenerationAttempts int               `json:"titleGenerationAttempts" yaml:"title_generation_attempts"`
	CreatedAt               time.Time         `json:"createdAt" yaml:"created_at"`
	UpdatedAt               time.Time         `json:"updatedAt" yaml:"updated_at"`
	ExportedAt              time.Time         `json:"exportedAt" yaml:"exported_at"`
	Messages                []documentMessage `json:"messages" yaml:"messages"`
}

type documentMessage struct {
	ID                    string             `json:"id" yaml:"id"`
	Sender                string             `json:"sender" yaml:"sender"`
	Content               string             `json:"content" yaml:"content"`
	Timestamp             time.Time          `json:"timestamp" yaml:"timestamp"`
	Reasoning             string             `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	GenerationTimeSeconds *float64           `json:"generationTime,omitempty" yaml:"generation_time,omitempty"`
	CurrentVersionIndex   int                `json:"currentVersionIndex,omitempty" yaml:"current_version_index,omitempty"`
	Versions              []documentVersion  `json:"versions,omitempty" yaml:"versions,omitempty"`
	WebSearch             *documentSearch    `json:"webSearch,omitempty" yaml:"web_search,omitempty"`
	HasAttachedImage      bool               `json:"hasAttachedImage,omitempty" yaml:"has_attached_image,omitempty"`
	ImageData             string             `json:"imageData,omitempty" yaml:"image_data,omitempty"`
	Vision                *documentVision    `json:"vision,omitempty" yaml:"vision,omitempty"`
}

type documentVersion struct {
	Content               string    `json:"content" yaml:"content"`
	Reasoning             string    `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	GenerationTimeSeconds *float64  `json:"generationTime,omitempty" yaml:"generation_time,omitempty"`
	Timestamp             time.Time `json:"timestamp" yaml:"timestamp"`
}

type documentSearch struct {
	Query   string           `json:"query" yaml:"query"`
	Mode    string           `json:"mode" yaml:"mode"`
	Answer  string           `json:"answer,omitempty" yaml:"answer,omitempty"`
	Sources []documentSource `json:"sources" yaml:"sources"`
}

type documentSource struct {
	Title string  `json:"title" yaml:"title"`
	URL   string  `json:"url" yaml:"url"`
	Score float64 `json:"score,omitempty" yaml:"score,omitempty"`
}

type documentVision struct {
	Model       string `json:"model" yaml:"model"`
	Description string `json:"description" yaml:"description"`
}

// newDocument converts a session for export.
func newDocument(cs model.ChatSession, opts *Options) document {
	doc := document{
		ID:                      cs.ID,
		Title:                   cs.Title,
		TitleGenerated:          cs.TitleGenerated,
		TitleGenerationAttempts: cs.TitleGenerationAttempts,
		CreatedAt:               cs.CreatedAt,
		UpdatedAt:               cs.UpdatedAt,
		ExportedAt:              opts.now().UTC().Truncate(time.Second),
		Messages:                make([]documentMessage, 0, len(cs.Messages)),
	}
	for _, m := range cs.Messages {
		dm := documentMessage{
			ID:                    m.ID,
			Sender:                string(m.Sender),
			Content:               m.Content,
			Timestamp:             m.Timestamp,
			GenerationTimeSeconds: m.GenerationTimeSeconds,
			HasAttachedImage:      m.HasAttachedImage,
		}
		if opts.IncludeReasoning {
			dm.Reasoning = m.Reasoning
		}
		if opts.IncludeImages {
			dm.ImageData = m.ImageData
		}
		if len(m.Versions) > 0 {
			dm.CurrentVersionIndex = m.CurrentVersionIndex
			for _, v := range m.Versions {
				dv := documentVersion{
					Content:               v.Content,
					GenerationTimeSeconds: v.GenerationTimeSeconds,
					Timestamp:             v.Timestamp,
				}
				if opts.IncludeReasoning {
					dv.Reasoning = v.Reasoning
				}
				dm.Versions = append(dm.Versions, dv)
			}
		}
		if ws := m.WebSearchMetadata; ws != nil {
			ds := &documentSearch{Query: ws.Query, Mode: string(ws.Mode), Answer: ws.Answer, Sources: []documentSource{}}
			for _, r := range ws.Results {
				ds.Sources = append(ds.Sources, documentSource{Title: r.Title, URL: r.URL, Score: r.Score})
			}
			dm.WebSearch = ds
		}
		if vm := m.VisionMetadata; vm != nil {
			dm.Vision = &documentVision{Model: vm.Model, Description: vm.Description}
		}
		doc.Messages = append(doc.Messages, dm)
	}
	return doc
}
