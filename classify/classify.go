// Package classify maps transport and protocol errors onto the Network Error
// Logging taxonomy described at https://w3c.github.io/network-error-logging/.
//
// It replaces the downcast chain the original Rust implementation walked
// through reqwest and hyper error sources with Go's native error-chain
// inspection (errors.As over the concrete stdlib error types net, tls and
// x509 surface) and a message-substring fallback for library errors that
// don't expose a typed cause.
package classify

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
)

// Error is a NEL {class, subclass} pair.
//
// Class is one of dns, tcp, udp, tls, http, abandoned or unknown. Subclass is
// a free-form lower-snake token, e.g. "cert.date_invalid".
type Error struct {
	Class    string
	Subclass string
}

// New builds an Error from a class and subclass.
func New(class, subclass string) Error {
	return Error{Class: class, Subclass: subclass}
}

// Phase derives the NEL phase bucket for the error's class.
func (e Error) Phase() string {
	switch e.Class {
	case "dns":
		return "dns"
	case "tcp", "udp", "tls":
		return "connection"
	case "http", "abandoned":
		return "application"
	default:
		return "unknown"
	}
}

// WireType renders the {class}.{subclass} wire token used in the "type"
// field of a report body. "unknown" and "abandoned" are class-only: they
// carry no meaningful subclass, so the dotted form would just add noise.
func (e Error) WireType() string {
	switch e.Class {
	case "unknown":
		return "unknown"
	case "abandoned":
		return "abandoned"
	default:
		return e.Class + "." + e.Subclass
	}
}

// String implements fmt.Stringer, rendering the same dotted token used on
// the wire.
func (e Error) String() string {
	return e.WireType()
}

// substringRules is evaluated in order against the case-folded rendered
// error message, after the typed net-package rules have been tried and
// failed, and before the Category and typed x509/tls rules. It
// covers the message shapes common TLS and DNS libraries use when they don't
// expose a typed cause.
var substringRules = []struct {
	substr string
	class  string
	sub    string
}{
	{"no address", "dns", "name_not_resolved"},
	{"name or service not known", "dns", "name_not_resolved"},
	{"no route to host", "tcp", "address_unreachable"},
	{"unreachable", "tcp", "address_unreachable"},
	{"connection refused", "tcp", "refused"},
	{"expired", "tls", "cert.date_invalid"},
	{"unknownissuer", "tls", "cert.authority_invalid"},
	{"certnotvalidforname", "tls", "cert.name_invalid"},
	{"hostname mismatch", "tls", "cert.name_invalid"},
	{"certificate has expired", "tls", "cert.date_invalid"},
	{"self signed certificate in certificate chain", "tls", "cert.authority_invalid"},
}

// Classify maps err onto a NEL Error without consuming it.
//
// protocol is the report's protocol label (e.g. "h2", "wireguard"). Wireguard
// tunnels TCP traffic over UDP datagrams, so a connection failure the
// classifier would otherwise call "tcp" is relabeled "udp" to match what
// actually failed on the wire; the subclass is kept as-is.
func Classify(err error, protocol string) Error {
	if err == nil {
		return Error{}
	}

	e := classify(err)
	if protocol == "wireguard" && e.Class == "tcp" {
		e.Class = "udp"
	}
	return e
}

func classify(err error) Error {
	if e, ok := classifyIOKind(err); ok {
		return e
	}
	if e, ok := classifyMessage(err); ok {
		return e
	}
	if e, ok := classifyHTTPCategory(err); ok {
		return e
	}
	if e, ok := classifyTLS(err); ok {
		return e
	}
	return New("unknown", err.Error())
}

// classifyIOKind recognizes the net package's typed connection failures.
func classifyIOKind(err error) (Error, bool) {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return New("tcp", "timed_out"), true
		}
		switch {
		case isErrno(opErr.Err, "connection reset by peer"):
			return New("tcp", "reset"), true
		case isErrno(opErr.Err, "connection refused"):
			return New("tcp", "refused"), true
		case isErrno(opErr.Err, "software caused connection abort"),
			isErrno(opErr.Err, "use of closed network connection"):
			return New("tcp", "aborted"), true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return New("dns", "name_not_resolved"), true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return New("tcp", "timed_out"), true
	}

	return Error{}, false
}

func isErrno(err error, substr string) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), substr)
}

// classifyMessage case-insensitively substring-matches the rendered error
// message, covering DNS/TLS library variants that don't expose a typed
// cause, such as a TLS stack that only ever returns a plain errors.New with
// a human-readable reason instead of a typed verification error.
func classifyMessage(err error) (Error, bool) {
	msg := strings.ToLower(err.Error())
	for _, rule := range substringRules {
		if strings.Contains(msg, rule.substr) {
			return New(rule.class, rule.sub), true
		}
	}
	return Error{}, false
}

// classifyHTTPCategory recognizes the richer, categorized errors an
// HTTP-client adapter may expose (see the Category interface below), the Go
// analogue of hyper::Error's is_connect/is_parse/... predicates.
func classifyHTTPCategory(err error) (Error, bool) {
	var c Category
	if !errors.As(err, &c) {
		return Error{}, false
	}
	switch {
	case c.IsConnect():
		return New("tcp", "failed"), true
	case c.IsParse():
		return New("http", "response.invalid"), true
	case c.IsUser():
		return New("http", "protocol.error"), true
	case c.IsIncompleteMessage():
		return New("tcp", "closed"), true
	case c.IsBodyWriteAborted():
		return New("abandoned", ""), true
	case c.IsTimeout():
		return New("tcp", "timed_out"), true
	case c.IsClosed():
		return New("tcp", "reset"), true
	case c.IsCanceled():
		return New("tcp", "aborted"), true
	}
	return Error{}, false
}

// Category is an optional, richer error classification a host HTTP-client
// adapter may implement on its error type, covering the kind of granular
// failure categories (connect, parse, timeout, ...) a full-featured HTTP
// client library tends to expose. It is consulted only after the typed-kind
// and substring rules above have not matched; errors that don't implement it
// go straight on to the typed x509/tls rules and then the unknown fallback.
type Category interface {
	error
	IsConnect() bool
	IsParse() bool
	IsUser() bool
	IsIncompleteMessage() bool
	IsBodyWriteAborted() bool
	IsTimeout() bool
	IsClosed() bool
	IsCanceled() bool
}

// classifyTLS recognizes the stdlib x509/tls failure types, deriving the
// subclass from the specific verification reason where one is available.
func classifyTLS(err error) (Error, bool) {
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return New("tls", "cert.name_invalid"), true
	}

	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return New("tls", "cert.authority_invalid"), true
	}

	var certErr x509.CertificateInvalidError
	if errors.As(err, &certErr) {
		switch certErr.Reason {
		case x509.Expired:
			return New("tls", "cert.date_invalid"), true
		case x509.CANotAuthorizedForThisName, x509.NameConstraintsWithoutSANs, x509.UnconstrainedName:
			return New("tls", "cert.name_invalid"), true
		default:
			return New("tls", "cert.authority_invalid"), true
		}
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return New("tls", "protocol.error"), true
	}

	return Error{}, false
}
