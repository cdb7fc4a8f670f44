package consultapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

type Kind int

const (
	KindTransient Kind = iota
	KindPermanent
	KindUnauthorized
)

// Error carries a structured classification of an upload failure so the
// agent never has to inspect message text itself.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("consultation upload failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("consultation upload failed: %s", e.Message)
}

func IsPermanent(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindPermanent
}

func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == KindUnauthorized
}

type Consultation struct {
	Id      string `json:"id"`
	OwnerId string `json:"ownerId"`
}

type Client interface {
	UploadConsultation(ctx context.Context, ownerId string, audio []byte, mimeType string, durationSeconds int) (*Consultation, error)
}

type client struct {
	endpoint string
	token    string
	http     *http.Client
}

func (c *client) UploadConsultation(ctx context.Context, ownerId string, audio []byte, mimeType string, durationSeconds int) (*Consultation, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("ownerId", ownerId); err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	if err := writer.WriteField("durationSeconds", strconv.Itoa(durationSeconds)); err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, fileName(mimeType)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	if _, err := part.Write(audio); err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	if err := writer.Close(); err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		consultation := &Consultation{}
		if err := json.NewDecoder(resp.Body).Decode(consultation); err != nil {
			// The upload itself succeeded; an unreadable body must not
			// trigger a retry of a delivered recording.
			return &Consultation{OwnerId: ownerId}, nil
		}
		return consultation, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, classify(resp.StatusCode, string(respBody))
}

// classify maps a rejection to a structured kind. 413 and 401 are
// unambiguous; for everything else the size-keyword match on the body is a
// stopgap for endpoints that do not return a structured error code.
func classify(status int, body string) *Error {
	apiErr := &Error{Kind: KindTransient, Status: status, Message: strings.TrimSpace(body)}
	switch {
	case status == http.StatusRequestEntityTooLarge:
		apiErr.Kind = KindPermanent
	case status == http.StatusUnauthorized:
		apiErr.Kind = KindUnauthorized
	case status >= 400 && status < 500 && containsSizeKeyword(body):
		apiErr.Kind = KindPermanent
	}
	return apiErr
}

var sizeKeywords = []string{"too large", "file size", "size limit", "exceeds the maximum"}

func containsSizeKeyword(body string) bool {
	lowered := strings.ToLower(body)
	for _, keyword := range sizeKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

func fileName(mimeType string) string {
	base := strings.TrimSpace(strings.Split(mimeType, ";")[0])
	if idx := strings.Index(base, "/"); idx >= 0 && idx < len(base)-1 {
		return "recording." + base[idx+1:]
	}
	return "recording.bin"
}

func NewClient(endpoint, token string) Client {
	return &client{
		endpoint: endpoint,
		token:    token,
		http:     http.DefaultClient,
	}
}
