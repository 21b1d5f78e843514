package bridge

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"slidedeck/internal/domain"
)

// DeckBuilderTool is the tool identifier sent with every AI invocation.
const DeckBuilderTool = "deck_builder"

// ── Outbound commands ─────────────────────────────────────

type CommandType string

const (
	CommandNotify     CommandType = "notify"
	CommandInvokeAI   CommandType = "invoke_ai"
	CommandSaveExport CommandType = "save_export"
	CommandSaveDeck   CommandType = "save_deck"
	CommandApproval   CommandType = "approval_required"
	CommandDismiss    CommandType = "approval_dismissed"
)

// Command is a typed message for the host.
type Command interface {
	CommandType() CommandType
}

type NotifyCommand struct {
	Level   domain.NoticeType `json:"type"`
	Message string            `json:"message"`
}

type InvokeAICommand struct {
	RequestID string       `json:"requestId"`
	Prompt    string       `json:"prompt"`
	Context   *domain.Deck `json:"context,omitempty"`
	Tool      string       `json:"tool"`
}

// SaveExportCommand carries a finished export: base64 for pptx, data URIs
// for images.
type SaveExportCommand struct {
	Kind      string   `json:"kind"`
	DeckID    string   `json:"deckId"`
	Base64    string   `json:"base64,omitempty"`
	DataURIs  []string `json:"dataUris,omitempty"`
	Locations []string `json:"locations,omitempty"`
}

type SaveDeckCommand struct {
	Deck *domain.Deck `json:"deck"`
}

// ApprovalCommand asks the user to confirm a destructive agent action.
type ApprovalCommand struct {
	Action domain.PendingAction `json:"action"`
}

type ApprovalDismissedCommand struct {
	ID string `json:"id"`
}

func (NotifyCommand) CommandType() CommandType     { return CommandNotify }
func (InvokeAICommand) CommandType() CommandType   { return CommandInvokeAI }
func (SaveExportCommand) CommandType() CommandType { return CommandSaveExport }
func (SaveDeckCommand) CommandType() CommandType   { return CommandSaveDeck }
func (ApprovalCommand) CommandType() CommandType   { return CommandApproval }
func (ApprovalDismissedCommand) CommandType() CommandType {
	return CommandDismiss
}

// EncodeCommand renders cmd as {"type": ..., "payload": ...}.
func EncodeCommand(cmd Command) ([]byte, error) {
	return json.Marshal(struct {
		Type    CommandType `json:"type"`
		Payload Command     `json:"payload"`
	}{cmd.CommandType(), cmd})
}

// ── Inbound events ────────────────────────────────────────

type EventType string

const (
	EventDocument EventType = "document"
	EventPrompt   EventType = "prompt"
	EventExport   EventType = "export"
	EventUndo     EventType = "undo"
	EventRedo     EventType = "redo"
	EventApproval EventType = "approval"
)

// Event is a typed message from the host.
type Event interface {
	EventType() EventType
}

// DocumentEvent delivers a deck produced by the AI or the host. Payload is a
// structured document or a JSON-encoded string. RequestID is empty for
// unsolicited documents.
type DocumentEvent struct {
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
	IsPatch   bool   `json:"isPatch,omitempty"`
}

// PromptEvent asks for an AI turn, optionally with the current deck attached.
type PromptEvent struct {
	Prompt      string `json:"prompt"`
	WithContext bool   `json:"withContext,omitempty"`
}

type ExportEvent struct {
	Kind string `json:"kind"`
}

type UndoEvent struct{}

type RedoEvent struct{}

// ApprovalEvent answers an ApprovalCommand.
type ApprovalEvent struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
}

func (DocumentEvent) EventType() EventType { return EventDocument }
func (PromptEvent) EventType() EventType   { return EventPrompt }
func (ExportEvent) EventType() EventType   { return EventExport }
func (UndoEvent) EventType() EventType     { return EventUndo }
func (RedoEvent) EventType() EventType     { return EventRedo }
func (ApprovalEvent) EventType() EventType { return EventApproval }

// DecodeEvent parses one wire event.
func DecodeEvent(data []byte) (Event, error) {
	var head struct {
		Type      EventType       `json:"type"`
		RequestID string          `json:"requestId"`
		Payload   json.RawMessage `json:"payload"`
		IsPatch   bool            `json:"isPatch"`
		Prompt    string          `json:"prompt"`
		Context   bool            `json:"withContext"`
		Kind      string          `json:"kind"`
		ID        string          `json:"id"`
		Approved  bool            `json:"approved"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch head.Type {
	case EventDocument:
		if len(bytes.TrimSpace(head.Payload)) == 0 {
			return nil, fmt.Errorf("document event without payload")
		}
		return DocumentEvent{RequestID: head.RequestID, Payload: payloadInput(head.Payload), IsPatch: head.IsPatch}, nil
	case EventPrompt:
		return PromptEvent{Prompt: head.Prompt, WithContext: head.Context}, nil
	case EventExport:
		return ExportEvent{Kind: head.Kind}, nil
	case EventUndo:
		return UndoEvent{}, nil
	case EventRedo:
		return RedoEvent{}, nil
	case EventApproval:
		if head.ID == "" {
			return nil, fmt.Errorf("approval event without id")
		}
		return ApprovalEvent{ID: head.ID, Approved: head.Approved}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", head.Type)
}

// payloadInput keeps structured payloads raw and unwraps JSON strings so the
// repair pipeline sees the text the producer sent.
func payloadInput(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return raw
}
