package owinbridge

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/iaconlabs/owinbridge/engine"
	"github.com/iaconlabs/owinbridge/owin"
)

// newRequest maps the request half of env into an engine request.
func (b *Bridge) newRequest(env owin.Environment) *engine.Request {
	header := make(http.Header)
	for k, vals := range env.RequestHeaders() {
		ck := http.CanonicalHeaderKey(k)
		header[ck] = append(header[ck], vals...)
	}

	host, port := hostAndPort(header.Get("Host"))
	if host == "" {
		host = env.LocalIPAddress()
		port = env.LocalPort()
	}

	req := &engine.Request{
		Method: env.Method(),
		URL: engine.URL{
			Scheme:   env.Scheme(),
			HostName: host,
			Port:     port,
			BasePath: env.PathBase(),
			Path:     env.Path(),
			Query:    env.QueryString(),
		},
		Header:          header,
		Body:            env.RequestBody(),
		ContentLength:   contentLength(header),
		ProtocolVersion: env.Protocol(),
		UserHostAddress: userHostAddress(env),
	}
	if b.opts.EnableClientCertificates {
		req.ClientCertificate = env.ClientCertificate()
	}
	return req
}

// hostAndPort splits a Host header. A host without a port yields port 0.
func hostAndPort(hostHeader string) (string, int) {
	if hostHeader == "" {
		return "", 0
	}
	host, p, err := net.SplitHostPort(hostHeader)
	if err != nil {
		return strings.Trim(hostHeader, "[]"), 0
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return host, 0
	}
	return host, port
}

func contentLength(h http.Header) int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func userHostAddress(env owin.Environment) string {
	ip := env.RemoteIPAddress()
	if ip == "" {
		return ""
	}
	port := env.RemotePort()
	if port == 0 {
		return ip
	}
	return net.JoinHostPort(ip, strconv.Itoa(port))
}
