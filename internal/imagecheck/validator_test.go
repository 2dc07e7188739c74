package imagecheck

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsapp-proxybot/internal/errs"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	webpHeader = []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")
	gifHeader  = []byte("GIF89a\x01\x00\x01\x00")
)

func serve(t *testing.T, body []byte, contentType string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/avatar"
}

func TestValidateFormats(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		header string
		ok     bool
	}{
		{"png", pngHeader, "", true},
		{"jpeg", jpegHeader, "", true},
		{"webp", webpHeader, "", true},
		{"gif", gifHeader, "image/gif", false},
		{"html pretending to be png", []byte("<html><body>hi</body></html>"), "image/png", false},
		{"unknown bytes trust header", []byte{0x00, 0x01, 0x02}, "image/jpeg", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			err := v.Validate(context.Background(), serve(t, tt.body, tt.header))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errs.Is(err, errs.InvalidImage), "got %v", err)
		})
	}
}

func TestValidateSizeLimit(t *testing.T) {
	v := New(WithMaxBytes(64))
	small := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 64-len(pngHeader))...)
	assert.NoError(t, v.Validate(context.Background(), serve(t, small, "")))

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 100)...)
	err := v.Validate(context.Background(), serve(t, big, ""))
	assert.True(t, errs.Is(err, errs.InvalidImage), "got %v", err)
}

func TestValidateBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	err := New().Validate(context.Background(), srv.URL)
	assert.True(t, errs.Is(err, errs.InvalidImage), "got %v", err)
	assert.Equal(t, "Profile picture could not be loaded from URL.", errs.UserMessage(err))
}

func TestValidateRejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"ftp://example.com/a.png", "not a url", "file:///etc/passwd", ""} {
		err := New().Validate(context.Background(), raw)
		assert.True(t, errs.Is(err, errs.InvalidImage), "%q: got %v", raw, err)
	}
}

func TestValidateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	v := New(WithTimeout(50 * time.Millisecond))
	start := time.Now()
	err := v.Validate(context.Background(), srv.URL)
	assert.True(t, errs.Is(err, errs.InvalidImage), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestValidateCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := New(WithTimeout(time.Minute)).Validate(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.InvalidImage), "got %v", err)
}

func TestValidateSharesConcurrentFetches(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write(pngHeader)
	}))
	t.Cleanup(srv.Close)

	v := New()
	done := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { done <- v.Validate(context.Background(), srv.URL) }()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-done)
	}
	assert.Equal(t, int32(1), hits.Load())
}
