package toolresult

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	resultsSizeLimit  = 8000
	metaDataSizeLimit = 4000
)

// mimeExtensions is the artifact MIME allowlist from spec §4.B rule 5:
// only these image subtypes are accepted as extracted artifacts.
var mimeExtensions = map[string]string{
	"png":     "png",
	"jpeg":    "jpg",
	"gif":     "gif",
	"svg+xml": "svg",
	"webp":    "webp",
	"bmp":     "bmp",
}

// ToResult wraps a Normalized payload into the ToolResult shape the
// agent loop appends to the conversation, JSON-serializing Results and
// meta_data together per spec §3 ("content (string, JSON-serialized
// normalized payload for LLM consumption)").
func (n *Normalized) ToResult(toolCallID string) ToolResult {
	body := map[string]interface{}{"results": n.Results}
	if n.MetaData != nil {
		body["meta_data"] = n.MetaData
	}
	if n.MetaDataTruncated {
		body["meta_data_truncated"] = true
	}
	if n.ReturnedFileCount > 0 {
		body["returned_file_names"] = n.ReturnedFileNames
		body["returned_file_count"] = n.ReturnedFileCount
	}
	content, err := json.Marshal(body)
	if err != nil {
		content = []byte(fmt.Sprintf("%v", n.Results))
	}
	return ToolResult{
		ToolCallID: toolCallID,
		Content:    string(content),
		Success:    true,
		Artifacts:  n.Artifacts,
		Display:    n.Display,
		MetaData:   n.MetaData,
	}
}

// Normalize converts a tool server's raw response into the uniform
// record described by spec §4.B.
func Normalize(raw RawResult) *Normalized {
	n := &Normalized{}

	structured := extractStructured(raw)
	n.Results = extractResults(structured)
	n.MetaData, n.MetaDataTruncated = extractMetaData(structured)
	n.ReturnedFileNames, n.ReturnedFileCount = extractReturnedFiles(structured)

	explicit := extractExplicitArtifacts(structured)
	images := extractImageArtifacts(raw.ContentItems)
	n.Artifacts = append(explicit, images...)
	n.Display = autoDisplay(structured, images)

	return n
}

// extractStructured implements rules 1-2: prefer an object-shaped
// structured_content, else fold the content list's text items, parsing
// the concatenation as JSON when possible.
func extractStructured(raw RawResult) map[string]interface{} {
	if raw.StructuredContent != nil {
		return raw.StructuredContent
	}

	var combined strings.Builder
	for _, item := range raw.ContentItems {
		if item.Type == "text" && item.Text != "" {
			if combined.Len() > 0 {
				combined.WriteString("\n")
			}
			combined.WriteString(item.Text)
		}
	}
	text := combined.String()
	if text == "" {
		text = raw.Text
	}
	if text == "" {
		return nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(text), &obj); err == nil {
		return obj
	}
	return map[string]interface{}{"__text__": text}
}

// extractResults implements rule 3: prefer "results", then "result",
// else the structured object minus large fields, summarized if too big.
func extractResults(structured map[string]interface{}) interface{} {
	if structured == nil {
		return ""
	}
	if text, ok := structured["__text__"]; ok && len(structured) == 1 {
		return text
	}
	if v, ok := structured["results"]; ok {
		return v
	}
	if v, ok := structured["result"]; ok {
		return v
	}

	fallback := make(map[string]interface{}, len(structured))
	for k, v := range structured {
		if k == "returned_file_contents" {
			continue
		}
		fallback[k] = v
	}

	if b, err := json.Marshal(fallback); err == nil && len(b) > resultsSizeLimit {
		keys := make([]string, 0, len(fallback))
		for k := range fallback {
			keys = append(keys, k)
		}
		return map[string]interface{}{"keys": keys, "omitted_due_to_size": len(b)}
	}
	return fallback
}

// extractMetaData implements rule 4.
func extractMetaData(structured map[string]interface{}) (map[string]interface{}, bool) {
	if structured == nil {
		return nil, false
	}
	var meta map[string]interface{}
	for _, key := range []string{"meta_data", "meta-data", "metadata"} {
		if v, ok := structured[key].(map[string]interface{}); ok {
			meta = v
			break
		}
	}
	if meta == nil {
		return nil, false
	}
	if b, err := json.Marshal(meta); err == nil && len(b) > metaDataSizeLimit {
		return nil, true
	}
	return meta, false
}

func extractReturnedFiles(structured map[string]interface{}) ([]string, int) {
	if structured == nil {
		return nil, 0
	}
	raw, ok := structured["returned_file_names"].([]interface{})
	if !ok {
		return nil, 0
	}
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, len(names)
}

// extractExplicitArtifacts pulls the server's own artifacts list,
// requiring both name and b64 (spec §4.B rule 5).
func extractExplicitArtifacts(structured map[string]interface{}) []Artifact {
	raw, ok := structured["artifacts"].([]interface{})
	if !ok {
		return nil
	}
	var artifacts []Artifact
	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		b64, _ := m["b64"].(string)
		if name == "" || b64 == "" {
			continue
		}
		mime, _ := m["mime"].(string)
		viewer, _ := m["viewer"].(string)
		desc, _ := m["description"].(string)
		artifacts = append(artifacts, Artifact{Name: name, Base64: b64, Mime: mime, Viewer: viewer, Description: desc})
	}
	return artifacts
}

// extractImageArtifacts scans the content list for image items, gated by
// the MIME allowlist and a successful base64 decode (spec §4.B rule 5).
func extractImageArtifacts(items []ContentItem) []Artifact {
	var artifacts []Artifact
	index := 0
	for _, item := range items {
		if item.Type != "image" {
			continue
		}
		ext, ok := extensionFor(item.MimeType)
		if !ok {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(item.Data); err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:   fmt.Sprintf("mcp_image_%d.%s", index, ext),
			Base64: item.Data,
			Mime:   item.MimeType,
		})
		index++
	}
	return artifacts
}

func extensionFor(mime string) (string, bool) {
	subtype := strings.TrimPrefix(mime, "image/")
	ext, ok := mimeExtensions[subtype]
	return ext, ok
}

// autoDisplay implements the last sentence of rule 5: the first image
// artifact auto-opens a canvas when nothing else set a display hint.
func autoDisplay(structured map[string]interface{}, artifacts []Artifact) *DisplayConfig {
	if existing, ok := structured["display_config"].(map[string]interface{}); ok {
		cfg := &DisplayConfig{}
		cfg.PrimaryFile, _ = existing["primary_file"].(string)
		cfg.OpenCanvas, _ = existing["open_canvas"].(bool)
		return cfg
	}
	for _, a := range artifacts {
		if a.Mime != "" {
			return &DisplayConfig{PrimaryFile: a.Name, OpenCanvas: true}
		}
	}
	return nil
}
