// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"time"
)

// NoModelsPlaceholder is the single selector entry shown when Ollama is
// unreachable or has no models installed. It is never a valid model.
const NoModelsPlaceholder = "No models found"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message on the wire.
type Message struct {
	Role    string   `json:"role"`             // "user", "assistant", "system"
	Content string   `json:"content"`          // Text, including folded attachment text
	Images  []string `json:"images,omitempty"` // Base64 image payloads
}

// ChatRequest is the request body for /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// chatRecord is one NDJSON line of a streaming /api/chat response.
type chatRecord struct {
	Model   string `json:"model"`
	Message *struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done               bool   `json:"done"`
	DoneReason         string `json:"done_reason,omitempty"`
	Error              string `json:"error,omitempty"`
	TotalDuration      int64  `json:"total_duration,omitempty"`       // nanoseconds
	LoadDuration       int64  `json:"load_duration,omitempty"`        // nanoseconds
	PromptEvalCount    int    `json:"prompt_eval_count,omitempty"`    // tokens in prompt
	PromptEvalDuration int64  `json:"prompt_eval_duration,omitempty"` // nanoseconds
	EvalCount          int    `json:"eval_count,omitempty"`           // tokens generated
	EvalDuration       int64  `json:"eval_duration,omitempty"`        // nanoseconds
}

// delta returns the text this record contributes, if any.
func (r *chatRecord) delta() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.Content
}

// OllamaError represents an error body from the Ollama API.
type OllamaError struct {
	Error string `json:"error"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about an installed model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// FormatSize formats the model size in human-readable form.
func (m *ModelInfo) FormatSize() string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case m.Size >= GB:
		return fmt.Sprintf("%.1f GB", float64(m.Size)/GB)
	case m.Size >= MB:
		return fmt.Sprintf("%.1f MB", float64(m.Size)/MB)
	case m.Size >= KB:
		return fmt.Sprintf("%.1f KB", float64(m.Size)/KB)
	default:
		return fmt.Sprintf("%d B", m.Size)
	}
}

// IsPlaceholder reports whether name cannot be used as a model: empty or
// the NoModelsPlaceholder entry.
func IsPlaceholder(name string) bool {
	return name == "" || name == NoModelsPlaceholder
}
