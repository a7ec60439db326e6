// Package toolresult implements the Tool Result Normalizer (spec §4.B):
// it converts a tool server's heterogeneous raw response into the
// uniform record the rest of the engine (and eventually the LLM) reads.
package toolresult

// ContentItem mirrors one entry of an MCP content list. It is a
// transport-agnostic copy of pkg/mcp.ContentItem so this package has no
// import-time dependency on the connection manager.
type ContentItem struct {
	Type     string
	Text     string
	MimeType string
	Data     string // base64
}

// RawResult is what a tool server returned, before normalization.
type RawResult struct {
	IsError           bool
	StructuredContent map[string]interface{}
	ContentItems      []ContentItem
	Text              string
}

// Artifact is one extracted binary/media output of a tool call.
type Artifact struct {
	Name        string `json:"name"`
	Base64      string `json:"base64"`
	Mime        string `json:"mime"`
	Viewer      string `json:"viewer,omitempty"`
	Description string `json:"description,omitempty"`
}

// DisplayConfig hints the UI to open a canvas on a specific artifact.
type DisplayConfig struct {
	PrimaryFile string `json:"primary_file"`
	OpenCanvas  bool   `json:"open_canvas"`
}

// Normalized is the uniform output of normalization: what future LLM
// turns see (Results/MetaData) plus UI side-channel data (Artifacts/Display).
type Normalized struct {
	Results           interface{}            `json:"results"`
	MetaData          map[string]interface{} `json:"meta_data,omitempty"`
	MetaDataTruncated bool                   `json:"meta_data_truncated,omitempty"`
	ReturnedFileNames []string               `json:"returned_file_names,omitempty"`
	ReturnedFileCount int                    `json:"returned_file_count,omitempty"`

	Artifacts []Artifact     `json:"-"`
	Display   *DisplayConfig `json:"-"`
}

// ToolResult is the outcome of one tool invocation, handed back to the
// agent loop and appended as a tool-role message (spec §3 ToolResult).
type ToolResult struct {
	ToolCallID string
	Content    string // JSON-serialized Normalized payload, for the LLM
	Success    bool
	Error      string

	Artifacts      []Artifact
	Display        *DisplayConfig
	MetaData       map[string]interface{}
}

// ErrorResult builds the unsuccessful-ToolResult shape produced across
// the executor, dispatcher, and auth-required paths.
func ErrorResult(toolCallID, message string) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Success: false, Error: message, Content: message}
}
