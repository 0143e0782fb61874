// Package owin defines the hosting environment contract shared between a host
// process and an application: the environment map, its well-known keys and the
// application delegate signature.
package owin

const (
	// Version is the OWIN version implemented by this package.
	Version = "1.0"

	// VersionKey holds the OWIN version string supplied by the host.
	VersionKey = "owin.Version"

	// RequestMethodKey holds the HTTP method (GET, POST, ...).
	RequestMethodKey = "owin.RequestMethod"
	// RequestSchemeKey holds the URI scheme ("http" or "https").
	RequestSchemeKey = "owin.RequestScheme"
	// RequestPathBaseKey holds the portion of the path the application is mounted on.
	RequestPathBaseKey = "owin.RequestPathBase"
	// RequestPathKey holds the path relative to RequestPathBaseKey.
	RequestPathKey = "owin.RequestPath"
	// RequestQueryStringKey holds the raw query string without the leading '?'.
	RequestQueryStringKey = "owin.RequestQueryString"
	// RequestProtocolKey holds the protocol version, e.g. "HTTP/1.1".
	RequestProtocolKey = "owin.RequestProtocol"
	// RequestHeadersKey holds the request headers as a map of string slices.
	RequestHeadersKey = "owin.RequestHeaders"
	// RequestBodyKey holds the request body as an [io.Reader].
	RequestBodyKey = "owin.RequestBody"

	// ResponseStatusCodeKey is written by the application with the final status code.
	ResponseStatusCodeKey = "owin.ResponseStatusCode"
	// ResponseReasonPhraseKey optionally overrides the status line reason phrase.
	ResponseReasonPhraseKey = "owin.ResponseReasonPhrase"
	// ResponseProtocolKey optionally overrides the response protocol version.
	ResponseProtocolKey = "owin.ResponseProtocol"
	// ResponseHeadersKey holds the mutable response header map.
	ResponseHeadersKey = "owin.ResponseHeaders"
	// ResponseBodyKey holds the response body as an [io.Writer].
	ResponseBodyKey = "owin.ResponseBody"

	// CallCancelledKey holds a [context.Context] that is done when the host aborts the call.
	CallCancelledKey = "owin.CallCancelled"

	// RemoteIPAddressKey holds the client address.
	RemoteIPAddressKey = "server.RemoteIpAddress"
	// RemotePortKey holds the client port.
	RemotePortKey = "server.RemotePort"
	// LocalIPAddressKey holds the address the host accepted the call on.
	LocalIPAddressKey = "server.LocalIpAddress"
	// LocalPortKey holds the port the host accepted the call on.
	LocalPortKey = "server.LocalPort"

	// ClientCertificateKey holds the TLS client certificate as an *x509.Certificate.
	ClientCertificateKey = "ssl.ClientCertificate"
)

const (
	defaultScheme   = "http"
	defaultProtocol = "HTTP/1.1"
	defaultStatus   = 200
)
