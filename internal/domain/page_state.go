package domain

// Selection is ephemeral editor state owned by the document store. Never persisted.
type Selection struct {
	SlideID string `json:"slideId,omitempty"`
	BlockID string `json:"blockId,omitempty"`
}

// EditorState is the complete state handed to the host for rendering.
type EditorState struct {
	Deck      *Deck     `json:"deck"`
	Selection Selection `json:"selection"`
	CanUndo   bool      `json:"canUndo"`
	CanRedo   bool      `json:"canRedo"`
}

type NoticeType string

const (
	NoticeInfo    NoticeType = "info"
	NoticeError   NoticeType = "error"
	NoticeSuccess NoticeType = "success"
)

// Notice is a fire-and-forget user-facing diagnostic.
type Notice struct {
	Type    NoticeType `json:"type"`
	Message string     `json:"message"`
}

// PendingAction is a destructive agent operation awaiting user approval.
type PendingAction struct {
	ID          string `json:"id"`
	Tool        string `json:"tool"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	Metadata    string `json:"metadata"` // JSON with extra context (e.g. slide ids)
}
