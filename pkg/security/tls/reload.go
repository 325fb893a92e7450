package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reloader serves the current certificate to the TLS listener and reloads
// it from disk when the files change.
type Reloader struct {
	certFile string
	keyFile  string
	interval time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	cert     *tls.Certificate
	certTime time.Time
	keyTime  time.Time
}

// NewReloader creates a reloader that polls the certificate files every
// interval. Call Load before serving, then Watch to start polling.
func NewReloader(certFile, keyFile string, interval time.Duration) *Reloader {
	return &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		interval: interval,
		logger:   slog.Default().With("component", "tls"),
	}
}

// Load reads and validates the certificate from disk.
func (r *Reloader) Load() error {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return err
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return err
	}

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return err
	}
	if err := ValidateCertificate(&cert); err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.certTime = certInfo.ModTime()
	r.keyTime = keyInfo.ModTime()
	r.mu.Unlock()

	r.logLoaded(&cert)
	return nil
}

// Watch polls the certificate files until ctx is cancelled, reloading when
// either file's modification time advances. Reload failures keep the
// previous certificate in service.
func (r *Reloader) Watch(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.changed() {
				continue
			}
			if err := r.Load(); err != nil {
				r.logger.Error("certificate reload failed",
					"cert_file", r.certFile,
					"error", err,
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// GetCertificateFunc returns a callback for tls.Config.GetCertificate, so
// new connections pick up a reloaded certificate immediately.
func (r *Reloader) GetCertificateFunc() func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.cert, nil
	}
}

func (r *Reloader) changed() bool {
	certInfo, err := os.Stat(r.certFile)
	if err != nil {
		return false
	}
	keyInfo, err := os.Stat(r.keyFile)
	if err != nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return certInfo.ModTime().After(r.certTime) || keyInfo.ModTime().After(r.keyTime)
}

func (r *Reloader) logLoaded(cert *tls.Certificate) {
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return
	}

	days := DaysUntilExpiry(leaf)
	if days < 30 {
		r.logger.Warn("certificate expiring soon",
			"subject", leaf.Subject.CommonName,
			"expires_in_days", days,
		)
		return
	}
	r.logger.Info("certificate loaded",
		"subject", leaf.Subject.CommonName,
		"expires_in_days", days,
	)
}
