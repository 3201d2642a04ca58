package model

// ToolDescriptor describes a tool discovered on a tool server.
//
// Name is the namespaced form ("<server>__<tool>") that models see and call;
// ToolName is the name the owning server knows the tool by.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	ServerID    string         `json:"server_id"`
	ToolName    string         `json:"tool_name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ToolNameSeparator joins a server ID and a tool name. Provider APIs reject
// dots in function names, so a double underscore is used instead.
const ToolNameSeparator = "__"

// QualifiedToolName builds the namespaced name for a server's tool.
func QualifiedToolName(serverID, toolName string) string {
	return serverID + ToolNameSeparator + toolName
}
