package schemas

import "encoding/json"

// MessageType discriminates the runtime message union exchanged between the
// page, coordinator, and UI contexts.
type MessageType string

const (
	MsgProductCaptureStart     MessageType = "product:capture:start"
	MsgProductCaptureActivated MessageType = "product:capture:activated"
	MsgProductCaptureFinished  MessageType = "product:capture:finished"
	MsgProductSelected         MessageType = "product:selected"
	MsgProductsGet             MessageType = "products:get"
	MsgProductsUpdated         MessageType = "products:updated"
	MsgUserPhotoUpdated        MessageType = "user-photo:updated"
	MsgTryOnGenerate           MessageType = "try-on:generate"
	MsgTryOnResult             MessageType = "try-on:result"
)

// CaptureReason reports why a capture session terminated.
type CaptureReason string

const (
	CaptureCompleted CaptureReason = "completed"
	CaptureCancelled CaptureReason = "cancelled"
	CaptureError     CaptureReason = "error"
)

// Envelope is the wire form of every runtime message. Payloads are plain
// JSON records; no live references cross a context boundary.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope. A nil payload produces an
// envelope with no payload field.
func NewEnvelope(t MessageType, payload interface{}) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Ack is the single-shot response shape for request/response exchanges.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// CaptureFinishedPayload accompanies product:capture:finished.
type CaptureFinishedPayload struct {
	Reason  CaptureReason `json:"reason"`
	Message string        `json:"message,omitempty"`
}

// ProductSelectedPayload accompanies product:selected. ProductImage is an
// inline data URI by the time it leaves the page context.
type ProductSelectedPayload struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage"`
	ProductURL   string `json:"productUrl,omitempty"`
}

// ProductsPayload accompanies products:get responses and products:updated
// broadcasts. Most recent capture first.
type ProductsPayload struct {
	Products []ProductMetadata `json:"products"`
}

// UserPhotoPayload accompanies user-photo:updated.
type UserPhotoPayload struct {
	DataURL    string `json:"dataUrl"`
	UploadedAt string `json:"uploadedAt"`
}

// TryOnGeneratePayload accompanies try-on:generate. Both images are inline
// data URIs; Context carries free-form hints for the prompt.
type TryOnGeneratePayload struct {
	UserPhoto    string                 `json:"userPhoto"`
	ProductImage string                 `json:"productImage"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// TryOnResultPayload accompanies try-on:result.
type TryOnResultPayload struct {
	RequestID         string  `json:"requestId"`
	GeneratedImageURL string  `json:"generatedImageUrl"`
	Confidence        float64 `json:"confidence"`
}
