package owinbridge

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/owin"
)

// respond writes the engine response into env and disposes c once the body
// has been written or has failed.
func (b *Bridge) respond(env owin.Environment, c *engine.Context) (err error) {
	defer b.dispose(c)

	resp := c.Response
	if resp == nil {
		resp = engine.NewResponse()
	}

	env.SetStatusCode(resp.StatusCode)
	if resp.ReasonPhrase != "" {
		env.SetReasonPhrase(resp.ReasonPhrase)
	}

	header := env.ResponseHeaders()
	for name, value := range resp.Headers {
		setHeader(header, name, value)
	}
	if resp.ContentType != "" {
		setHeader(header, "Content-Type", resp.ContentType)
	}
	if len(resp.Cookies) > 0 {
		cookies := mergeHeader(header, "Set-Cookie")
		for _, ck := range resp.Cookies {
			if ck == nil {
				continue
			}
			if v := ck.String(); v != "" {
				cookies = append(cookies, v)
			}
		}
		if len(cookies) > 0 {
			header["Set-Cookie"] = cookies
		}
	}

	if resp.Contents == nil {
		return nil
	}

	defer recoverEngine(b.log, func(perr error) { err = perr })
	if werr := resp.Contents(env.ResponseBody()); werr != nil {
		b.log.Warn("owinbridge: writing response body",
			slog.String("path", c.Request.URL.Path), slog.Any("error", werr))
		return fmt.Errorf("%w: %w", ErrWriteBody, werr)
	}
	return nil
}

// setHeader replaces every value of name, whatever the casing the host used
// for the existing key.
func setHeader(h http.Header, name, value string) {
	for k := range h {
		if k != name && strings.EqualFold(k, name) {
			delete(h, k)
		}
	}
	h[http.CanonicalHeaderKey(name)] = []string{value}
}


// mergeHeader folds every key matching name case-insensitively into the
// canonical key and returns its values, canonical entry first.
func mergeHeader(h http.Header, name string) []string {
	canonical := http.CanonicalHeaderKey(name)
	vals := h[canonical]
	keys := make([]string, 0, 1)
	for k := range h {
		if k != canonical && strings.EqualFold(k, name) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		vals = append(vals, h[k]...)
		delete(h, k)
	}
	return vals
}
