package event

import "encoding/json"

type Type string

const (
	TypeMeta        Type = "meta"
	TypeStatus      Type = "status"
	TypeCanvasImage Type = "canvas_image"
	TypeChunk       Type = "chunk"
	TypeDone        Type = "done"
	TypeError       Type = "error"
)

// Event is the single wire shape multiplexed over one stream. Which fields
// are set depends on Type; the struct is closed on purpose so the contract
// stays testable.
type Event struct {
	Type           Type    `json:"type"`
	ConversationId string  `json:"conversation_id,omitempty"`
	Content        string  `json:"content,omitempty"`
	ImageUrl       string  `json:"image_url,omitempty"`
	Response       string  `json:"response,omitempty"`
	Intent         string  `json:"intent,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
	CanvasUsed     bool    `json:"canvas_used,omitempty"`
	Message        string  `json:"message,omitempty"`
}

func Meta(conversationId string) Event {
	return Event{Type: TypeMeta, ConversationId: conversationId}
}

func Status(content string) Event {
	return Event{Type: TypeStatus, Content: content}
}

func CanvasImage(imageUrl string) Event {
	return Event{Type: TypeCanvasImage, ImageUrl: imageUrl}
}

func Chunk(content string) Event {
	return Event{Type: TypeChunk, Content: content}
}

func Done(response, intent string, confidence float64, canvasUsed bool) Event {
	return Event{
		Type:       TypeDone,
		Response:   response,
		Intent:     intent,
		Confidence: confidence,
		CanvasUsed: canvasUsed,
	}
}

func Error(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// Terminal reports whether this event ends the turn.
func (e Event) Terminal() bool {
	return e.Type == TypeDone || e.Type == TypeError
}

// Encode renders the event as one SSE frame: "data: <json>\n\n".
func (e Event) Encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}
