package proxy

import (
	"context"
	"encoding/json"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

// Sender forwards one message to the remote API.
type Sender interface {
	Send(ctx context.Context, msg *whatsapp.Message) (json.RawMessage, error)
}

// StatusChecker runs one remote status check.
type StatusChecker interface {
	Check(ctx context.Context) whatsapp.Status
}

// MediaRequest is a parsed media form whose file is already in temp storage.
type MediaRequest struct {
	Kind    media.Kind
	Phone   string
	Caption string
	Upload  *Upload
}

// Service validates and forwards messages
type Service interface {
	SendText(ctx context.Context, phone, text string) (json.RawMessage, error)
	SendMedia(ctx context.Context, req MediaRequest) (json.RawMessage, error)
}
