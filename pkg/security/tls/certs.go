package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"
)

// ValidateCertificate parses the leaf of cert and checks that it is
// currently within its validity window.
func ValidateCertificate(cert *tls.Certificate) error {
	if cert == nil || len(cert.Certificate) == 0 {
		return fmt.Errorf("certificate chain is empty")
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) {
		return fmt.Errorf("certificate not valid until %s", leaf.NotBefore.Format(time.RFC3339))
	}
	if now.After(leaf.NotAfter) {
		return fmt.Errorf("certificate expired on %s", leaf.NotAfter.Format(time.RFC3339))
	}

	return nil
}

// DaysUntilExpiry returns the number of whole days until the certificate
// expires. Negative when already expired.
func DaysUntilExpiry(cert *x509.Certificate) int {
	return int(time.Until(cert.NotAfter).Hours() / 24)
}
