package fetch

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"path"
	"path/filepath"
	"syscall"

	"vodingest/internal/ingest"
	"vodingest/internal/services"
)

func (f *Fetcher) fetchHTTP(ctx context.Context, job *ingest.Job, destDir string, progress ProgressFunc) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.Source.URL, nil)
	if err != nil {
		return Result{}, services.Invalid("source.url", "invalid source url: %v", err)
	}
	req.Header.Set("User-Agent", "vodingest/1.0")

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		var blocked *blockedAddressError
		if errors.As(err, &blocked) {
			return Result{}, services.Wrap(services.ErrFatal, component, "http",
				fmt.Sprintf("refusing to fetch %s: %s", redact(job.Source.URL), blocked.Error()), nil)
		}
		return Result{}, classifyRequestError(ctx, job.Source.URL, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, job.Source.URL); err != nil {
		return Result{}, err
	}
	limit := job.Policy.MaxBytes
	if limit > 0 && resp.ContentLength > limit {
		return Result{}, oversize(resp.ContentLength, limit)
	}

	name := sourceName(remoteFileName(resp))
	dest := filepath.Join(destDir, name)
	n, err := copyWithProgress(ctx, resp.Body, dest, resp.ContentLength, limit, progress)
	if err != nil {
		if services.Kind(err) == services.KindFatal || errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, classifyRequestError(ctx, job.Source.URL, err)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return Result{}, services.Wrap(services.ErrTransient, component, "http",
			fmt.Sprintf("short read from %s: got %d of %d bytes", redact(job.Source.URL), n, resp.ContentLength), nil)
	}
	return Result{Path: dest, Bytes: n, Method: "http"}, nil
}

// carrierGradeNAT is the shared address space of RFC 6598.
var carrierGradeNAT = netip.MustParsePrefix("100.64.0.0/10")

type blockedAddressError struct {
	addr netip.Addr
}

func (e *blockedAddressError) Error() string {
	return e.addr.String() + " is not a public address"
}

// refusePrivateAddress is a net.Dialer Control hook. It runs after name
// resolution, for every dial including redirects, so a public hostname that
// resolves to an internal address is refused too.
func refusePrivateAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !publicAddress(addr) {
		return &blockedAddressError{addr: addr}
	}
	return nil
}

func publicAddress(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		addr.IsUnspecified(),
		carrierGradeNAT.Contains(addr):
		return false
	}
	return true
}

// classifyStatus maps HTTP status codes onto the retry taxonomy.
func classifyStatus(code int, rawURL string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return services.Wrap(services.ErrTransient, component, "http",
			fmt.Sprintf("fetch %s failed: HTTP %d", redact(rawURL), code), nil)
	default:
		return services.Wrap(services.ErrFatal, component, "http",
			fmt.Sprintf("fetch %s failed: HTTP %d", redact(rawURL), code), nil)
	}
}

func classifyRequestError(ctx context.Context, rawURL string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return services.Wrap(services.ErrTimeout, component, "http", "fetch "+redact(rawURL)+" timed out", ctxErr)
		}
		return ctxErr
	}
	return services.Wrap(services.ErrTransient, component, "http", "fetch "+redact(rawURL)+" failed", err)
}

// remoteFileName prefers Content-Disposition, then the URL path.
func remoteFileName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		return path.Base(resp.Request.URL.Path)
	}
	return ""
}

// redact drops credentials and query strings from URLs in messages.
func redact(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "source url"
	}
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
