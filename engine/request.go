package engine

import (
	"crypto/x509"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// URL is the engine view of the request target. BasePath is the mount point of
// the application and Path is relative to it.
type URL struct {
	Scheme   string
	HostName string
	Port     int
	BasePath string
	Path     string
	Query    string
}

// String renders the absolute URL.
func (u URL) String() string {
	var b strings.Builder
	if u.Scheme != "" && u.HostName != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
		b.WriteString(u.HostName)
		if u.Port != 0 && !isDefaultPort(u.Scheme, u.Port) {
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(u.Port))
		}
	}
	b.WriteString(u.BasePath)
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteByte('?')
		b.WriteString(u.Query)
	}
	return b.String()
}

// FullPath joins BasePath and Path.
func (u URL) FullPath() string {
	p := u.BasePath + u.Path
	if p == "" {
		return "/"
	}
	return p
}

func isDefaultPort(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}

// Request is the framework-side request object.
type Request struct {
	Method string
	URL    URL
	Header http.Header
	Body   io.Reader
	// ContentLength is -1 when unknown.
	ContentLength   int64
	ProtocolVersion string
	UserHostAddress string
	// ClientCertificate is only populated when the host forwards it and the
	// bridge is configured to accept it.
	ClientCertificate *x509.Certificate
}

// Query parses the raw query string.
func (r *Request) Query() url.Values {
	v, _ := url.ParseQuery(r.URL.Query)
	return v
}

// Cookies parses the Cookie request header.
func (r *Request) Cookies() map[string]string {
	out := make(map[string]string)
	for _, c := range (&http.Request{Header: r.Header}).Cookies() {
		out[c.Name] = c.Value
	}
	return out
}
