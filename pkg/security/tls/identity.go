package tls

import (
	"crypto/x509"
	"net/http"

	"mercator-hq/turnstile/pkg/telemetry/logging"
)

// Identity sources accepted by config.TLSConfig.IdentitySource.
const (
	IdentityCommonName   = "subject.CN"
	IdentityOrgUnit      = "subject.OU"
	IdentityOrganization = "subject.O"
	IdentitySAN          = "SAN"
)

// ClientIdentity extracts an identity from cert. It returns "" when the
// certificate lacks the requested field.
func ClientIdentity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case IdentityCommonName:
		return cert.Subject.CommonName
	case IdentityOrgUnit:
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}
	case IdentityOrganization:
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}
	case IdentitySAN:
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}
	return ""
}

// peerCertificate returns the verified client leaf certificate, if any.
func peerCertificate(r *http.Request) *x509.Certificate {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return nil
	}
	return r.TLS.PeerCertificates[0]
}

// IdentityMiddleware names the tenant of a request after its client
// certificate. A tenant already in the context (from an API key) wins.
// Requests without a usable certificate pass through unchanged.
func IdentityMiddleware(source string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if source == "" || logging.GetTenant(r.Context()) != "" {
				next.ServeHTTP(w, r)
				return
			}
			if id := ClientIdentity(peerCertificate(r), source); id != "" {
				r = r.WithContext(logging.WithTenant(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
