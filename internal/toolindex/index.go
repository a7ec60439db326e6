// Package toolindex builds and maintains the name -> {server, schema}
// lookup spec §9 calls for ("Per-tool schema introspection"): the Tool
// Executor's argument filtering and context injection, and the _mcp_data
// digest it can inject, both key off fully-qualified server_tool names.
package toolindex

import (
	"fmt"
	"sync"

	"github.com/flowforge/agentcore/pkg/mcp"
)

// Entry is one indexed tool: which server owns it and its discovered
// descriptor (name, description, schema).
type Entry struct {
	ServerName string
	Tool       mcp.ToolDescriptor
}

// FQName builds the fully-qualified server_tool name spec §3 ToolCall's
// "name" field uses.
func FQName(server, tool string) string {
	return fmt.Sprintf("%s_%s", server, tool)
}

// Index is a concurrency-safe name -> Entry map, rebuilt from a
// Connection Manager's server snapshot. Grounded on hector's
// pkg/tools/registry.go (a dedicated registry consulted by multiple call
// sites, rather than each caller re-deriving the lookup over the raw
// server list).
//
// The Connection Manager does not push change notifications into this
// index — doing so would make pkg/mcp import internal/toolindex while
// this package already imports pkg/mcp for ToolDescriptor/ServerRecord,
// a cycle. Instead Refresh is cheap (a handful of servers, each with a
// handful of tools) and callers — the Tool Executor, here — call it
// before every lookup, which satisfies "incrementally maintained"
// without the cyclic dependency.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Index {
	return &Index{entries: make(map[string]Entry)}
}

// Refresh rebuilds the index from a current server snapshot.
func (ix *Index) Refresh(records []*mcp.ServerRecord) {
	entries := make(map[string]Entry, len(records)*4)
	for _, rec := range records {
		for _, t := range rec.Tools() {
			entries[FQName(rec.Name(), t.Name)] = Entry{ServerName: rec.Name(), Tool: t}
		}
	}
	ix.mu.Lock()
	ix.entries = entries
	ix.mu.Unlock()
}

// Lookup resolves a fully-qualified tool name to its owning server and
// descriptor.
func (ix *Index) Lookup(fqName string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[fqName]
	return e, ok
}

// Len reports how many tools are currently indexed.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// ServerDigest is one server's entry in the _mcp_data context digest
// (spec §4.C step 2).
type ServerDigest struct {
	ServerName string       `json:"server_name"`
	Tools      []ToolDigest `json:"tools"`
}

// ToolDigest is one tool's entry in a ServerDigest.
type ToolDigest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Digest builds the `{available_servers: [...]}` structure injected into
// a tool call's `_mcp_data` argument when its schema declares that
// property (spec §4.C step 2: "a structured digest of all
// currently-available servers and their tools").
func Digest(records []*mcp.ServerRecord) map[string]interface{} {
	servers := make([]ServerDigest, 0, len(records))
	for _, rec := range records {
		tools := rec.Tools()
		digestTools := make([]ToolDigest, 0, len(tools))
		for _, t := range tools {
			digestTools = append(digestTools, ToolDigest{Name: t.Name, Description: t.Description, Parameters: t.Schema})
		}
		servers = append(servers, ServerDigest{ServerName: rec.Name(), Tools: digestTools})
	}
	return map[string]interface{}{"available_servers": servers}
}
