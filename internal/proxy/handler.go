package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/classyid/whatsapp-api-frontend/internal/media"
	"github.com/classyid/whatsapp-api-frontend/internal/whatsapp"
)

const (
	maxJSONBody  = 1 << 20
	maxFieldSize = 64 << 10

	defaultMaxUpload = 65 << 20
)

// Options carries the static values the handlers report or enforce.
type Options struct {
	Version        string
	APIURL         string
	MaxUploadBytes int64
}

type Handler struct {
	svc     Service
	status  StatusChecker
	uploads *UploadStore
	metrics *Metrics
	opts    Options
	log     zerolog.Logger
}

func NewHandler(svc Service, status StatusChecker, uploads *UploadStore, metrics *Metrics, opts Options, logger zerolog.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	return &Handler{
		svc:     svc,
		status:  status,
		uploads: uploads,
		metrics: metrics,
		opts:    opts,
		log:     logger,
	}
}

// SendMessage forwards a JSON text message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&payload); err != nil {
		h.fail(w, r, media.KindText, media.Invalid(media.CodeInvalidRequest, "Invalid JSON data"))
		return
	}

	raw, err := h.svc.SendText(r.Context(), payload.Phone, payload.Message)
	h.relay(w, r, media.KindText, raw, err)
}

// SendMedia returns the multipart handler for one media kind.
func (h *Handler) SendMedia(kind media.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

		form, err := h.readMediaForm(r, kind)
		if err != nil {
			h.fail(w, r, kind, err)
			return
		}
		defer h.discard(form.Upload)

		raw, err := h.svc.SendMedia(r.Context(), *form)
		h.relay(w, r, kind, raw, err)
	}
}

// readMediaForm streams the multipart body. The file goes straight to temp
// storage once its extension has been accepted; text fields may come before
// or after it. On error nothing is left on disk.
func (h *Handler) readMediaForm(r *http.Request, kind media.Kind) (*MediaRequest, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, media.Invalid(media.CodeInvalidRequest, "Expected a multipart/form-data body")
	}

	c, _ := media.ConstraintFor(kind)
	form := &MediaRequest{Kind: kind}

	fail := func(err error) (*MediaRequest, error) {
		h.discard(form.Upload)
		return nil, err
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return fail(err)
			}
			return fail(media.Invalid(media.CodeInvalidRequest, "Malformed multipart body"))
		}

		switch part.FormName() {
		case "phone":
			form.Phone, err = readField(part, "phone")
		case "caption":
			var caption string
			caption, err = readField(part, "caption")
			if kind.AllowsCaption() {
				form.Caption = caption
			}
		case "file":
			if form.Upload != nil || part.FileName() == "" {
				_, err = io.Copy(io.Discard, part)
				break
			}
			if err := media.CheckExtension(kind, part.FileName()); err != nil {
				part.Close()
				return fail(err)
			}
			form.Upload, err = h.uploads.Save(part.FileName(), part, c.MaxSize)
		default:
			_, err = io.Copy(io.Discard, part)
		}
		part.Close()
		if err != nil {
			return fail(err)
		}
	}

	if form.Upload == nil {
		return fail(media.ErrMissingFile)
	}
	return form, nil
}

func readField(part io.Reader, name string) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxFieldSize {
		return "", media.Invalid(media.CodeInvalidRequest, "Field %s too long", name)
	}
	return strings.TrimSpace(string(b)), nil
}

func (h *Handler) discard(u *Upload) {
	if err := u.Remove(); err != nil {
		h.log.Error().Err(err).Str("path", u.Path).Msg("remove upload")
	}
}

func (h *Handler) relay(w http.ResponseWriter, r *http.Request, kind media.Kind, raw json.RawMessage, err error) {
	if err != nil {
		h.fail(w, r, kind, err)
		return
	}
	h.metrics.observe(kind, outcomeOK)
	writeRaw(w, http.StatusOK, "application/json", raw)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, kind media.Kind, err error) {
	h.metrics.observe(kind, outcomeOf(err))
	writeFailure(w, r, err)
}

type statusResponse struct {
	whatsapp.Status
	State string `json:"state"`
}

// Status checks the remote API now and reports the result.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.status.Check(r.Context())
	h.metrics.SetRemote(st)
	writeJSON(w, http.StatusOK, statusResponse{Status: st, State: st.State()})
}

// Health reports the proxy itself plus a fresh check of the remote API.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	st := h.status.Check(r.Context())
	h.metrics.SetRemote(st)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.opts.Version,
		"external_api": map[string]any{
			"url":           h.opts.APIURL,
			"available":     st.Available,
			"bot_connected": st.BotConnected,
			"state":         st.State(),
		},
	})
}

// Info describes the service: formats, limits and endpoints.
func (h *Handler) Info(w http.ResponseWriter, _ *http.Request) {
	formats := map[string][]string{}
	limits := map[string]string{}
	for _, k := range media.MediaKinds() {
		c, _ := media.ConstraintFor(k)
		formats[c.Category] = c.Extensions
		limits[c.Category] = media.HumanSize(c.MaxSize)
	}

	endpoints := []string{"GET /api/status - Bot status", "POST /api/send-message - Send text message"}
	for _, k := range media.MediaKinds() {
		endpoints = append(endpoints, fmt.Sprintf("POST %s - Send %s", mediaPath(k), k))
	}
	endpoints = append(endpoints, "GET /health - Proxy health")

	writeJSON(w, http.StatusOK, map[string]any{
		"service":           "WhatsApp API proxy",
		"status":            "running",
		"version":           h.opts.Version,
		"supported_formats": formats,
		"file_size_limits":  limits,
		"endpoints":         endpoints,
	})
}

func (h *Handler) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "Endpoint not found")
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
