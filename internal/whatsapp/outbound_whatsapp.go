package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/classyid/whatsapp-api-frontend/internal/config"
	"github.com/classyid/whatsapp-api-frontend/internal/media"
)

// APIKeyHeader carries the optional shared secret.
const APIKeyHeader = "X-API-Key"

// maxResponseBody caps how much of a remote answer is buffered for relaying.
const maxResponseBody = 4 << 20

var sendPaths = map[media.Kind]string{
	media.KindText:     "/api/send-message",
	media.KindImage:    "/api/send-image",
	media.KindDocument: "/api/send-document",
	media.KindAudio:    "/api/send-audio",
	media.KindVideo:    "/api/send-video",
	media.KindSticker:  "/api/send-sticker",
}

// SendPath returns the remote path used for messages of kind k.
func SendPath(k media.Kind) string {
	return sendPaths[k]
}

// Client forwards messages to the remote API. Every send is a single attempt.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	log     zerolog.Logger
}

func NewClient(cfg config.API, logger zerolog.Logger) *Client {
	c := &Client{
		baseURL: cfg.BaseURL(),
		apiKey:  cfg.Key,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     logger.With().Str("component", "whatsapp_client").Logger(),
	}
	if cfg.BreakerFailures > 0 {
		c.breaker = newBreaker(cfg.BreakerFailures, cfg.BreakerCooldown, c.log)
	}
	return c
}

// BaseURL is the remote API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send forwards msg and returns the remote JSON answer unchanged.
//
// Errors: *media.ValidationError for a malformed message, ErrUnreachable on
// transport failure, *RemoteError for a non-2xx answer and ErrBadResponse for
// a 2xx answer that is not JSON.
func (c *Client) Send(ctx context.Context, msg *Message) (json.RawMessage, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if c.breaker == nil {
		return c.send(ctx, msg)
	}
	return executeBreaker(c.breaker, func() (json.RawMessage, error) {
		return c.send(ctx, msg)
	})
}

func (c *Client) send(ctx context.Context, msg *Message) (json.RawMessage, error) {
	path := SendPath(msg.Kind)
	start := time.Now()

	req, err := c.newRequest(ctx, msg, path)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("kind", string(msg.Kind)).Str("path", path).Msg("remote unreachable")
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrUnreachable, err)
	}
	truncated := len(body) > maxResponseBody
	if truncated {
		body = body[:maxResponseBody]
		c.log.Warn().
			Str("kind", string(msg.Kind)).
			Str("path", path).
			Int("status", resp.StatusCode).
			Int("limit", maxResponseBody).
			Msg("remote response exceeds size cap, truncated")
	}

	logEvt := c.log.Info()
	if resp.StatusCode >= 300 {
		logEvt = c.log.Warn()
	}
	logEvt.
		Str("kind", string(msg.Kind)).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("message forwarded")

	if resp.StatusCode >= 300 {
		return nil, &RemoteError{
			Status:      resp.StatusCode,
			Body:        body,
			ContentType: resp.Header.Get("Content-Type"),
		}
	}
	if truncated {
		return nil, fmt.Errorf("%w: response larger than %d bytes", ErrBadResponse, maxResponseBody)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrBadResponse, short(string(body)))
	}
	return json.RawMessage(body), nil
}

func (c *Client) newRequest(ctx context.Context, msg *Message, path string) (*http.Request, error) {
	var (
		body        io.Reader
		contentType string
	)

	if msg.Kind == media.KindText {
		b, err := json.Marshal(map[string]string{
			"phone":   msg.Phone,
			"message": msg.Text,
		})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	} else {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		go func() {
			pw.CloseWithError(writeMultipart(mw, msg))
		}()
		body = pr
		contentType = mw.FormDataContentType()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		if pr, ok := body.(*io.PipeReader); ok {
			pr.Close()
		}
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}
	return req, nil
}

// writeMultipart streams phone, the optional caption and the file part.
func writeMultipart(mw *multipart.Writer, msg *Message) error {
	if err := mw.WriteField("phone", msg.Phone); err != nil {
		return err
	}
	if msg.Caption != "" && msg.Kind.AllowsCaption() {
		if err := mw.WriteField("caption", msg.Caption); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(msg.File.Name)))
	h.Set("Content-Type", contentTypeOf(msg.File.Name))
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, msg.File.Content); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func contentTypeOf(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// BreakerState reports "closed", "half-open", "open" or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}
