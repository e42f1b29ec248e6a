package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"syscall"
	"time"

	"hoax-guard/config"
	"hoax-guard/metrics"
)

const maxRedirects = 5

var (
	errNotImage      = errors.New("URL does not point to a valid image")
	errImageTooBig   = errors.New("image exceeds the size limit")
	errBlockedHost   = errors.New("image host is not a public address")
	errRedirectLimit = errors.New("too many redirects")
)

// sharedAddressSpace is the carrier-grade NAT range (RFC 6598).
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// ImageFetcher downloads an image by URL and re-encodes it as a data URI.
type ImageFetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

func NewImageFetcher(cfg config.FetchConfig, logger *slog.Logger) *ImageFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageFetcher{
		client:    newFetchClient(cfg),
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// FetchDataURI performs one GET. Every failure comes back as a KindFetch
// AnalysisError; the cause is logged and kept in the chain.
func (f *ImageFetcher) FetchDataURI(ctx context.Context, imageURL string) (string, error) {
	uri, outcome, err := f.fetch(ctx, imageURL)
	metrics.ObserveImageFetch(outcome)
	if err != nil {
		f.logger.Warn("image fetch failed", "url", imageURL, "outcome", outcome, "error", err)
		return "", fetchError(err)
	}
	return uri, nil
}

func (f *ImageFetcher) fetch(ctx context.Context, imageURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", "network", fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedHost) {
			return "", "blocked", fmt.Errorf("get image: %w", err)
		}
		return "", "network", fmt.Errorf("get image: %w", err)
	}
	defer resp.Body.Close()

	f.logger.Debug("image response", "url", imageURL, "status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "status", fmt.Errorf("failed to fetch image: %s", resp.Status)
	}

	mediaType, err := imageMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", "content_type", err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", "network", fmt.Errorf("read image: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", "too_large", fmt.Errorf("%w (%d bytes)", errImageTooBig, f.maxBytes)
	}

	f.logger.Info("image fetched", "url", imageURL, "bytes", len(body), "media_type", mediaType)
	return EncodeDataURI(mediaType, body), "ok", nil
}

// imageMediaType returns the bare media type of an image/* Content-Type.
func imageMediaType(contentType string) (string, error) {
	if contentType == "" {
		return "", errNotImage
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errNotImage, err)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%w: content type %s", errNotImage, mediaType)
	}
	return mediaType, nil
}

// newFetchClient returns a client that, unless private hosts are allowed,
// refuses to connect to non-public addresses. The check runs on the resolved
// address of every dial, so redirects and DNS answers are covered too.
func newFetchClient(cfg config.FetchConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivateHosts {
		dialer := &net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   rejectPrivateAddr,
		}
		transport.DialContext = dialer.DialContext
		transport.Proxy = nil
	}
	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errRedirectLimit
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect to %s", errNotImage, req.URL.Scheme)
			}
			return nil
		},
	}
}

func rejectPrivateAddr(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", errBlockedHost, host)
	}
	if !isPublicAddr(addr) {
		return fmt.Errorf("%w: %s", errBlockedHost, addr)
	}
	return nil
}

func isPublicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return true
}
