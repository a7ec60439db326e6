// Package session carries the per-request immutables the rest of the
// engine reads: session identity, the caller's identity, the attached
// file manifest, and a reference to externally-owned conversation
// history (spec §3 AgentContext).
package session

// FileRef describes one file attached to the current session, as handed
// in by the (external) file-blob-storage collaborator. Tool Executor
// rewrites filename-shaped arguments into signed URLs using this
// manifest (spec §4.C step 2).
type FileRef struct {
	Name        string
	DownloadURL string
	SizeBytes   int64
	MimeType    string
}

// Context is the per-request immutable bundle threaded through a turn.
// It is never mutated after construction; a new turn gets a new Context.
type Context struct {
	SessionID      string
	UserEmail      string
	Files          []FileRef
	ConversationID string
	Incognito      bool
}

// FileByName looks up an attached file by its declared name, used when
// the Tool Executor rewrites `filename`/`file_names` arguments.
func (c Context) FileByName(name string) (FileRef, bool) {
	for _, f := range c.Files {
		if f.Name == name {
			return f, true
		}
	}
	return FileRef{}, false
}
