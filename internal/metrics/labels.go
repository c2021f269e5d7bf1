package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// ErrorLabel returns a short, address-free label for a transport error so
// that failures group under one reason in summaries.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}

	var (
		dnsErr  *net.DNSError
		certErr *tls.CertificateVerificationError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		opErr   *net.OpError
	)
	switch {
	case errors.As(err, &dnsErr):
		return "DNS lookup failed"
	case errors.As(err, &certErr), errors.As(err, &authErr), errors.As(err, &hostErr):
		return "TLS certificate rejected"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "Connection refused"
	case errors.Is(err, context.DeadlineExceeded):
		return "Deadline exceeded"
	case errors.As(err, &opErr) && opErr.Op != "":
		return "Network error (" + opErr.Op + ")"
	case errors.As(err, &opErr):
		return "Network error"
	}
	return "Unclassified error"
}
