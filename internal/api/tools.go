package api

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/gala/internal/tools"
)

// ToolParams converts catalog specs into SDK tool definitions.
func ToolParams(specs []tools.Spec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		props := s.InputSchema.Properties
		if props == nil {
			props = map[string]any{}
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        s.Name,
				Description: anthropic.String(s.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   s.InputSchema.Required,
				},
			},
		})
	}
	return out
}
