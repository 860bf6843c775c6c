package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrTooLarge is returned when the remote body exceeds the configured limit.
var ErrTooLarge = errors.New("remote image exceeds size limit")

// FetchError wraps any failure to download an image from a URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configures a Fetcher.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
}

// Fetcher downloads remote images.
type Fetcher struct {
	client   *resty.Client
	maxBytes int64
}

// New builds a fetcher. Zero options fall back to a 15s timeout and no size limit.
func New(opts Options) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		client.SetHeader("User-Agent", ua)
	}
	return &Fetcher{client: client, maxBytes: opts.MaxBytes}
}

// Image is a downloaded body with the content type the server reported.
type Image struct {
	Data        []byte
	ContentType string
}

// Fetch GETs url and returns the body. Any non-2xx status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Image, error) {
	url = strings.TrimSpace(url)
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return Image{}, &FetchError{URL: url, Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return Image{}, &FetchError{URL: url, StatusCode: resp.StatusCode()}
	}

	reader := io.Reader(body)
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return Image{}, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return Image{}, &FetchError{URL: url, Err: ErrTooLarge}
	}

	return Image{Data: data, ContentType: resp.Header().Get("Content-Type")}, nil
}
