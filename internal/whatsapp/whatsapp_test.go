package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classyid/whatsapp-api-frontend/internal/config"
	"github.com/classyid/whatsapp-api-frontend/internal/media"
)

// apiConfig points a config.API at a test server.
func apiConfig(t *testing.T, rawURL string) config.API {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.API{
		Host:          host,
		Port:          port,
		UseHTTPS:      u.Scheme == "https",
		Timeout:       2 * time.Second,
		StatusTimeout: time.Second,
	}
}

// deadURL returns the address of a server that is no longer listening.
func deadURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()
	return u
}

func TestSendTextForwardsUnmodifiedBody(t *testing.T) {
	var gotPath, gotCT, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCT = r.Header.Get("Content-Type")
		gotKey = r.Header.Get(APIKeyHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","id":"ABC"}`))
	}))
	defer srv.Close()

	cfg := apiConfig(t, srv.URL)
	cfg.Key = "s3cret"
	c := NewClient(cfg, zerolog.Nop())

	raw, err := c.Send(context.Background(), &Message{
		Phone: "6281234567890",
		Kind:  media.KindText,
		Text:  "Hello",
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/send-message", gotPath)
	assert.Equal(t, "application/json", gotCT)
	assert.Equal(t, "s3cret", gotKey)
	assert.Equal(t, map[string]any{"phone": "6281234567890", "message": "Hello"}, gotBody)
	assert.JSONEq(t, `{"status":"success","id":"ABC"}`, string(raw))
}

func TestSendWithoutKeyOmitsHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header[http.CanonicalHeaderKey(APIKeyHeader)]
		assert.False(t, present)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())
	_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})
	require.NoError(t, err)
}

func TestSendImageMultipartRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF, 0xD8, 0x42}, 2<<20/3)

	type received struct {
		path    string
		fields  map[string][]string
		name    string
		content []byte
		parts   []string
	}
	var got received

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		mr, err := r.MultipartReader()
		if !assert.NoError(t, err) {
			return
		}
		got.fields = map[string][]string{}
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			}
			if !assert.NoError(t, err) {
				return
			}
			got.parts = append(got.parts, p.FormName())
			b, err := io.ReadAll(p)
			if !assert.NoError(t, err) {
				return
			}
			if p.FileName() != "" {
				got.name = p.FileName()
				got.content = b
				continue
			}
			got.fields[p.FormName()] = append(got.fields[p.FormName()], string(b))
		}
		_, _ = w.Write([]byte(`{"status":"success","type":"image"}`))
	}))
	defer srv.Close()

	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())
	raw, err := c.Send(context.Background(), &Message{
		Phone:   "6281234567890",
		Kind:    media.KindImage,
		Caption: "Beautiful sunset!",
		File: &File{
			Name:    "sunset.jpg",
			Size:    int64(len(payload)),
			Content: bytes.NewReader(payload),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/send-image", got.path)
	assert.ElementsMatch(t, []string{"phone", "caption", "file"}, got.parts)
	assert.Equal(t, []string{"6281234567890"}, got.fields["phone"])
	assert.Equal(t, []string{"Beautiful sunset!"}, got.fields["caption"])
	assert.Equal(t, "sunset.jpg", got.name)
	assert.True(t, bytes.Equal(payload, got.content), "file bytes changed in transit")
	assert.JSONEq(t, `{"status":"success","type":"image"}`, string(raw))
}

func TestSendMediaPaths(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())
	files := map[media.Kind]string{
		media.KindImage:    "a.png",
		media.KindDocument: "a.pdf",
		media.KindAudio:    "a.mp3",
		media.KindVideo:    "a.mp4",
		media.KindSticker:  "a.webp",
	}
	for kind, name := range files {
		_, err := c.Send(context.Background(), &Message{
			Phone: "6281234567890",
			Kind:  kind,
			File:  &File{Name: name, Size: 3, Content: strings.NewReader("abc")},
		})
		require.NoError(t, err, kind)
		assert.Equal(t, SendPath(kind), gotPath, kind)
		assert.Equal(t, "/api/send-"+string(kind), gotPath)
	}
}

func TestSendRejectsMalformedMessages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())

	tests := []struct {
		name string
		msg  Message
		code string
	}{
		{"empty text", Message{Phone: "6281234567890", Kind: media.KindText, Text: "  "}, media.CodeMissingField},
		{"missing phone", Message{Kind: media.KindText, Text: "hi"}, media.CodeMissingField},
		{"missing file", Message{Phone: "6281234567890", Kind: media.KindImage}, media.CodeMissingFile},
		{"caption on audio", Message{
			Phone: "6281234567890", Kind: media.KindAudio, Caption: "no",
			File: &File{Name: "a.mp3", Content: strings.NewReader("x")},
		}, media.CodeCaptionNotAllowed},
		{"unknown kind", Message{Phone: "6281234567890", Kind: "location"}, media.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Send(context.Background(), &tt.msg)
			var verr *media.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.code, verr.Code)
		})
	}
	assert.Zero(t, calls.Load())
}

func TestSendRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"status":"error","message":"number not on whatsapp"}`))
	}))
	defer srv.Close()

	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())
	_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusUnprocessableEntity, remote.Status)
	assert.Equal(t, "application/json", remote.ContentType)
	assert.JSONEq(t, `{"status":"error","message":"number not on whatsapp"}`, string(remote.Body))
	assert.NotErrorIs(t, err, ErrUnreachable)
}

func TestSendBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
	}))
	defer srv.Close()

	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())
	_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestSendOversizedResponse(t *testing.T) {
	big := `{"data":"` + strings.Repeat("x", maxResponseBody) + `"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, big)
	}))
	defer srv.Close()

	c := NewClient(apiConfig(t, srv.URL), zerolog.Nop())
	_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})
	require.ErrorIs(t, err, ErrBadResponse)
	assert.Contains(t, err.Error(), "larger than")
}

func TestSendUnreachable(t *testing.T) {
	c := NewClient(apiConfig(t, deadURL(t)), zerolog.Nop())

	_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})
	assert.ErrorIs(t, err, ErrUnreachable)

	_, err = c.Send(context.Background(), &Message{
		Phone: "6281234567890",
		Kind:  media.KindVideo,
		File:  &File{Name: "clip.mp4", Content: strings.NewReader("frames")},
	})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := apiConfig(t, srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg, zerolog.Nop())

	_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestBreakerFailsFastAfterConsecutiveFailures(t *testing.T) {
	cfg := apiConfig(t, deadURL(t))
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Minute
	c := NewClient(cfg, zerolog.Nop())
	msg := func() *Message {
		return &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"}
	}

	for i := 0; i < 2; i++ {
		_, err := c.Send(context.Background(), msg())
		require.ErrorIs(t, err, ErrUnreachable)
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.Send(context.Background(), msg())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestBreakerIgnoresRemoteErrors(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "error status",
			code: http.StatusBadRequest,
			body: `{"status":"error"}`,
			wantErr: func(t *testing.T, err error) {
				var remote *RemoteError
				require.ErrorAs(t, err, &remote)
			},
		},
		{
			name: "2xx not json",
			code: http.StatusOK,
			body: `OK`,
			wantErr: func(t *testing.T, err error) {
				require.ErrorIs(t, err, ErrBadResponse)
				require.NotErrorIs(t, err, ErrUnreachable)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := apiConfig(t, srv.URL)
			cfg.BreakerFailures = 1
			cfg.BreakerCooldown = time.Minute
			c := NewClient(cfg, zerolog.Nop())

			for i := 0; i < 3; i++ {
				_, err := c.Send(context.Background(), &Message{Phone: "6281234567890", Kind: media.KindText, Text: "hi"})
				tt.wantErr(t, err)
			}
			assert.Equal(t, "closed", c.BreakerState())
			assert.Equal(t, int32(3), hits.Load())
		})
	}
}

func TestBreakerDisabled(t *testing.T) {
	c := NewClient(config.API{Host: "localhost", Port: 1, Timeout: time.Second}, zerolog.Nop())
	assert.Equal(t, "disabled", c.BreakerState())
	assert.Equal(t, "http://localhost:1", c.BaseURL())
}
