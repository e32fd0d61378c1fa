// Package whatsapp talks to the remote WhatsApp API: it forwards outbound
// messages and checks the API and bot status.
package whatsapp

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
)

// File is the payload of a media message. Content is read exactly once.
type File struct {
	Name    string
	Size    int64
	Content io.Reader
}

// Message is one outbound message, built per request and discarded after the send.
type Message struct {
	Phone   string
	Kind    media.Kind
	Text    string
	Caption string
	File    *File
}

// Validate enforces the per-kind shape: text needs a body, media needs a
// file, and only captioned kinds may carry a caption.
func (m *Message) Validate() error {
	if m.Phone == "" {
		return media.Invalid(media.CodeMissingField, "Phone number required")
	}
	if !m.Kind.Valid() {
		return media.Invalid(media.CodeInvalidRequest, "Unknown message kind %q", m.Kind)
	}
	if m.Kind == media.KindText {
		if strings.TrimSpace(m.Text) == "" {
			return media.Invalid(media.CodeMissingField, "Message text required")
		}
		return nil
	}
	if m.File == nil || m.File.Content == nil {
		return media.ErrMissingFile
	}
	if m.Caption != "" && !m.Kind.AllowsCaption() {
		return media.Invalid(media.CodeCaptionNotAllowed, "Captions are not supported for %s messages", m.Kind)
	}
	return nil
}

// ErrUnreachable covers connection failures, timeouts and an open breaker.
var ErrUnreachable = errors.New("whatsapp api unreachable")

// ErrBadResponse is returned when the remote answers 2xx with a body that is not JSON.
var ErrBadResponse = errors.New("whatsapp api returned a malformed response")

// RemoteError is a non-success answer from the remote API, relayed as-is.
type RemoteError struct {
	Status      int
	Body        []byte
	ContentType string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("whatsapp api error: status=%d body=%s", e.Status, short(string(e.Body)))
}

func short(s string) string {
	if len(s) > 180 {
		return s[:180] + "..."
	}
	return s
}
