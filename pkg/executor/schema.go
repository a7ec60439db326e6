package executor

import (
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/flowforge/agentcore/pkg/session"
)

// jsonSchema is the slice of a tool's declared JSON-schema input shape
// the executor actually consults: which properties exist. Decoded via
// mapstructure from the loosely-typed map[string]interface{} the
// Connection Manager's discovery returns, the way hector decodes
// loosely-typed config sections into typed structs
// (pkg/config/strict_validator.go).
type jsonSchema struct {
	Type       string                            `mapstructure:"type"`
	Properties map[string]map[string]interface{} `mapstructure:"properties"`
	Required   []string                          `mapstructure:"required"`
}

// decodeSchema decodes a tool's raw schema map, tolerating a missing or
// malformed schema by returning (nil, false) — callers then take the
// conservative fallback path spec §4.C describes for "schema
// unreachable".
func decodeSchema(raw map[string]interface{}) (*jsonSchema, bool) {
	if raw == nil {
		return nil, false
	}
	var s jsonSchema
	if err := mapstructure.Decode(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}

// has reports whether the schema declares a property, tolerating a nil
// schema (treated as "unknown", never "yes").
func (s *jsonSchema) has(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Properties[key]
	return ok
}

// conservativeDropKeys are stripped when no schema is available to
// filter against (spec §4.C step 3 "conservative fallback").
var conservativeDropKeys = map[string]bool{
	"file_url":  true,
	"file_urls": true,
}

// filterToSchema retains only schema-declared keys; with no usable
// schema it drops the audit/rewrite keys the executor itself added
// plus the conservative extras spec §4.C step 3 names.
func filterToSchema(args map[string]interface{}, schema *jsonSchema) map[string]interface{} {
	if schema != nil && len(schema.Properties) > 0 {
		out := make(map[string]interface{}, len(schema.Properties))
		for k, v := range args {
			if _, ok := schema.Properties[k]; ok {
				out[k] = v
			}
		}
		return out
	}
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if conservativeDropKeys[k] || strings.HasPrefix(k, "original_") {
			continue
		}
		out[k] = v
	}
	return out
}

// rewriteFilenames implements spec §4.C step 2's filename rewrite: a
// `filename` or `file_names` argument matching an attached session file
// is replaced with a signed download URL, preserving the original value
// under `original_filename`/`original_file_names` for audit.
func rewriteFilenames(args map[string]interface{}, sessCtx session.Context) {
	if name, ok := args["filename"].(string); ok {
		if f, found := sessCtx.FileByName(name); found {
			args["original_filename"] = name
			args["filename"] = f.DownloadURL
		}
	}

	if names, ok := args["file_names"].([]interface{}); ok {
		originals := make([]interface{}, len(names))
		rewritten := make([]interface{}, len(names))
		changed := false
		for i, v := range names {
			name, _ := v.(string)
			originals[i] = name
			if f, found := sessCtx.FileByName(name); found {
				rewritten[i] = f.DownloadURL
				changed = true
			} else {
				rewritten[i] = name
			}
		}
		if changed {
			args["original_file_names"] = originals
			args["file_names"] = rewritten
		}
	}
}

// sanitizeForDisplay implements spec §4.C step 4: produce the copy the
// approval UI sees, with signed URLs swapped back for the filename they
// refer to and any remaining filename-shaped field reduced to its
// basename.
func sanitizeForDisplay(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}

	if orig, ok := out["original_filename"].(string); ok {
		out["filename"] = orig
		delete(out, "original_filename")
	} else if name, ok := out["filename"].(string); ok {
		out["filename"] = filepath.Base(name)
	}

	if origs, ok := out["original_file_names"].([]interface{}); ok {
		out["file_names"] = origs
		delete(out, "original_file_names")
	} else if names, ok := out["file_names"].([]interface{}); ok {
		bases := make([]interface{}, len(names))
		for i, n := range names {
			if s, ok := n.(string); ok {
				bases[i] = filepath.Base(s)
			} else {
				bases[i] = n
			}
		}
		out["file_names"] = bases
	}

	return out
}

func cloneArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
