package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// expiryWarning is how close to expiry a loaded certificate is logged as a warning.
const expiryWarning = 30 * 24 * time.Hour

// leaf parses the first certificate of cert's chain.
func leaf(cert *tls.Certificate) (*x509.Certificate, error) {
	if cert == nil || len(cert.Certificate) == 0 {
		return nil, errors.New("certificate chain is empty")
	}
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	x, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return x, nil
}

// ValidateCertificate checks that cert is within its validity period at now.
func ValidateCertificate(cert *tls.Certificate, now time.Time) error {
	x, err := leaf(cert)
	if err != nil {
		return err
	}
	if now.Before(x.NotBefore) {
		return fmt.Errorf("certificate is not yet valid (valid from %s)", x.NotBefore.Format(time.RFC3339))
	}
	if now.After(x.NotAfter) {
		return fmt.Errorf("certificate expired on %s", x.NotAfter.Format(time.RFC3339))
	}
	return nil
}
