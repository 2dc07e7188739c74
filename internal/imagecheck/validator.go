// Package imagecheck validates avatar URLs by fetching them.
package imagecheck

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"whatsapp-proxybot/internal/errs"
)

const (
	DefaultMaxBytes = 1_000_000
	DefaultTimeout  = 10 * time.Second
)

const msgFailsRequirements = "Profile picture must be in JPG, PNG, or WEBP format and less than 1MB."

var acceptable = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Validator fetches an image and checks its format and size. Every call gets
// its own timeout, and concurrent checks of the same URL share one fetch.
type Validator struct {
	client   *http.Client
	maxBytes int64
	timeout  time.Duration
	log      zerolog.Logger
	group    singleflight.Group
}

// Option configures a Validator.
type Option func(*Validator)

func WithHTTPClient(c *http.Client) Option { return func(v *Validator) { v.client = c } }

func WithMaxBytes(n int64) Option { return func(v *Validator) { v.maxBytes = n } }

func WithTimeout(d time.Duration) Option { return func(v *Validator) { v.timeout = d } }

func WithLogger(l zerolog.Logger) Option { return func(v *Validator) { v.log = l } }

// New creates a Validator.
func New(opts ...Option) *Validator {
	v := &Validator{
		client:   http.DefaultClient,
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns nil when rawURL serves a PNG, JPEG or WEBP image no larger
// than the size limit. Any failure is errs.InvalidImage.
func (v *Validator) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.New(errs.InvalidImage, "Profile picture could not be loaded from URL: not an http(s) link.")
	}

	ch := v.group.DoChan(rawURL, func() (any, error) {
		// detached from any single caller so one cancelled waiter does not
		// fail the others
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()
		return nil, v.fetch(fetchCtx, rawURL)
	})
	select {
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), errs.InvalidImage, "Profile picture could not be loaded from URL: timed out.")
	case res := <-ch:
		if res.Err != nil {
			v.log.Debug().Err(res.Err).Str("url", rawURL).Msg("Rejected profile picture")
		}
		return res.Err
	}
}

func (v *Validator) fetch(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return cannotLoad(err)
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return cannotLoad(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cannotLoad(fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.ContentLength > v.maxBytes {
		return errs.New(errs.InvalidImage, msgFailsRequirements)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, v.maxBytes+1))
	if err != nil {
		return cannotLoad(err)
	}
	if int64(len(body)) > v.maxBytes {
		return errs.New(errs.InvalidImage, msgFailsRequirements)
	}
	if !acceptable[contentType(resp.Header.Get("Content-Type"), body)] {
		return errs.New(errs.InvalidImage, msgFailsRequirements)
	}
	return nil
}

// contentType prefers what the bytes say over what the server claims.
func contentType(header string, body []byte) string {
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(body))
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	declared, _, err := mime.ParseMediaType(header)
	if err != nil {
		return sniffed
	}
	return declared
}

func cannotLoad(err error) error {
	return errs.Wrap(err, errs.InvalidImage, "Profile picture could not be loaded from URL.")
}
