package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	goopenai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"deepchat/model"
)

// schemaParts pulls the pieces every provider format needs out of a
// descriptor's JSON Schema. A missing type defaults to "object".
func schemaParts(schema map[string]any) (typ string, properties map[string]any, required []string, defs any) {
	typ = "object"
	if t, ok := schema["type"].(string); ok && t != "" {
		typ = t
	}

	properties, _ = schema["properties"].(map[string]any)
	if properties == nil {
		properties = map[string]any{}
	}

	switch r := schema["required"].(type) {
	case []string:
		required = r
	case []any:
		for _, v := range r {
			if s, ok := v.(string); ok {
				required = append(required, s)
			}
		}
	}

	if d, ok := schema["$defs"]; ok {
		defs = d
	}
	return typ, properties, required, defs
}

// ConvertToolsToOllama converts tool descriptors to Ollama API tool format.
func ConvertToolsToOllama(tools []model.ToolDescriptor) []api.Tool {
	ollamaTools := make([]api.Tool, 0, len(tools))

	for _, tool := range tools {
		ollamaTools = append(ollamaTools, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  convertSchemaToParameters(tool.InputSchema),
			},
		})
	}

	return ollamaTools
}

func convertSchemaToParameters(schema map[string]any) api.ToolFunctionParameters {
	typ, properties, required, defs := schemaParts(schema)

	params := api.ToolFunctionParameters{
		Type:       typ,
		Required:   required,
		Properties: make(map[string]api.ToolProperty, len(properties)),
	}
	if defs != nil {
		params.Defs = defs
	}

	for name, value := range properties {
		params.Properties[name] = convertPropertyValue(value)
	}

	return params
}

// convertPropertyValue converts one JSON Schema property to an Ollama ToolProperty
func convertPropertyValue(propValue any) api.ToolProperty {
	toolProp := api.ToolProperty{}

	propMap, ok := propValue.(map[string]any)
	if !ok {
		// Round-trip through JSON for typed values
		bytes, err := json.Marshal(propValue)
		if err != nil {
			return toolProp
		}
		var m map[string]any
		if err := json.Unmarshal(bytes, &m); err != nil {
			return toolProp
		}
		propMap = m
	}

	// type can be a string or a list of strings
	if typeVal, ok := propMap["type"]; ok {
		switch t := typeVal.(type) {
		case string:
			toolProp.Type = api.PropertyType{t}
		case []string:
			toolProp.Type = api.PropertyType(t)
		case []any:
			types := make([]string, 0, len(t))
			for _, v := range t {
				if s, ok := v.(string); ok {
					types = append(types, s)
				}
			}
			toolProp.Type = api.PropertyType(types)
		}
	}

	if desc, ok := propMap["description"].(string); ok {
		toolProp.Description = desc
	}

	switch enum := propMap["enum"].(type) {
	case []any:
		toolProp.Enum = enum
	case []string:
		for _, v := range enum {
			toolProp.Enum = append(toolProp.Enum, v)
		}
	}

	if items, ok := propMap["items"]; ok {
		toolProp.Items = items
	}

	if anyOfSlice, ok := propMap["anyOf"].([]any); ok {
		anyOfProps := make([]api.ToolProperty, 0, len(anyOfSlice))
		for _, item := range anyOfSlice {
			anyOfProps = append(anyOfProps, convertPropertyValue(item))
		}
		toolProp.AnyOf = anyOfProps
	}

	return toolProp
}

// ConvertToolsToOpenAI converts tool descriptors to openai-go function tools.
//
//	{
//	  "type": "function",
//	  "function": {
//	    "name": "weather__get_weather",
//	    "description": "Get weather data",
//	    "parameters": {...}
//	  }
//	}
func ConvertToolsToOpenAI(tools []model.ToolDescriptor) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(functionParameters(tool.InputSchema)),
			},
		)
	}
	return result
}

// ConvertToolsToGoOpenAI converts tool descriptors to go-openai tools, used
// by the Groq adapter.
func ConvertToolsToGoOpenAI(tools []model.ToolDescriptor) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]goopenai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  functionParameters(tool.InputSchema),
			},
		}
	}
	return result
}

// functionParameters normalizes a schema into the object shape the
// OpenAI-style APIs expect.
func functionParameters(schema map[string]any) map[string]any {
	typ, properties, required, defs := schemaParts(schema)

	params := map[string]any{
		"type":       typ,
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	if defs != nil {
		params["$defs"] = defs
	}
	return params
}

// ConvertToolsToAnthropic converts tool descriptors to Anthropic tool params.
func ConvertToolsToAnthropic(tools []model.ToolDescriptor) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		_, properties, required, defs := schemaParts(tool.InputSchema)

		// Type defaults to "object" when omitted
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: properties,
		}
		if len(required) > 0 {
			inputSchema.Required = required
		}
		if defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}

// ConvertToolsToGemini converts tool descriptors to a single genai tool
// holding one function declaration per descriptor.
func ConvertToolsToGemini(tools []model.ToolDescriptor) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: functionParameters(tool.InputSchema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}
