package errx

import (
	"errors"
	"net"
	"syscall"
)

// IsConnectivity reports whether err looks like a transport-level failure to
// reach an external dependency, as opposed to a failure the dependency itself
// reported.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// WrapConnectivity classifies err: transport failures become
// SERVICE_UNAVAILABLE, anything else keeps the caller-supplied code.
func WrapConnectivity(err error, fallback Code, message string) *Error {
	if err == nil {
		return nil
	}
	if IsConnectivity(err) {
		return Wrap(err, CodeServiceUnavailable, ServiceUnavailableMessage)
	}
	return Wrap(err, fallback, message)
}
