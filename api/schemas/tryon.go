package schemas

import "fmt"

// ProductMetadata is a persisted capture result. ID is a pure function of
// (image URL, anchor URL), so re-capturing the same item upserts in place.
type ProductMetadata struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
	Price     string `json:"price,omitempty"`
	SourceURL string `json:"sourceUrl,omitempty"`
}

// UserProfile is the stored user photo.
type UserProfile struct {
	PhotoDataURL string `json:"photoDataUrl"`
	UploadedAt   string `json:"uploadedAt"`
}

// TryOnResult is the stored outcome of a generation request.
type TryOnResult struct {
	RequestID         string  `json:"requestId"`
	GeneratedImageURL string  `json:"generatedImageUrl"`
	Confidence        float64 `json:"confidence"`
	GeneratedAt       string  `json:"generatedAt"`
	Notes             string  `json:"notes,omitempty"`
}

// InlineImage is a self-contained image: a mime type plus base64 payload.
// It needs no further network access to be used.
type InlineImage struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// DataURI re-encodes the image as a data: URI.
func (i InlineImage) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, i.Data)
}
