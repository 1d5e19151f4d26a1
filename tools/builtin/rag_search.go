package builtin

import (
	"context"
	"encoding/json"
)

// RagSearchTool is a placeholder for knowledge-base retrieval. It is
// registered so roles can already declare it, and it tells the model
// plainly that no documents are indexed yet.
//
// TODO: back this with a vector index once document ingestion lands.
type RagSearchTool struct{}

func NewRagSearchTool() *RagSearchTool { return &RagSearchTool{} }

func (t *RagSearchTool) Name() string { return "rag_search" }

func (t *RagSearchTool) Description() string {
	return "Search the organization's internal knowledge base for relevant documents."
}

func (t *RagSearchTool) ParameterSchema() string {
	s := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query.",
			},
		},
		"required": []string{"query"},
	}
	b, _ := json.MarshalIndent(s, "", "  ")
	return string(b)
}

func (t *RagSearchTool) Execute(_ context.Context, _ map[string]any) (string, error) {
	return "Knowledge base search is not available yet: no documents have been indexed. Answer from your own knowledge and say so.", nil
}
