package tls

import (
	"crypto/tls"
	"fmt"
	"time"

	"mercator-hq/ganymede/pkg/config"
)

// reloadInterval is how often certificate files are checked for changes.
const reloadInterval = 5 * time.Minute

// Build constructs the listener TLS configuration. It returns (nil, nil,
// nil) when TLS is disabled. The returned Reloader has the certificate
// loaded; start Watch on it to pick up renewals.
func Build(cfg config.TLSConfig) (*tls.Config, *Reloader, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	if cfg.CertFile == "" {
		return nil, nil, fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if cfg.KeyFile == "" {
		return nil, nil, fmt.Errorf("key_file is required when TLS is enabled")
	}

	reloader := NewReloader(cfg.CertFile, cfg.KeyFile, reloadInterval)
	if err := reloader.Load(); err != nil {
		return nil, nil, fmt.Errorf("load certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		GetCertificate: reloader.GetCertificateFunc(),
		MinVersion:     tls.VersionTLS12,
	}
	return tlsConfig, reloader, nil
}
