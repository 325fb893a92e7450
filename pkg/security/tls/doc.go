// Package tls builds the server's TLS listener configuration.
//
// Certificates are loaded from PEM files named in configuration and
// validated for expiry at load time. A background reloader polls the
// files for changes so renewed certificates (for example from an ACME
// client writing in place) are picked up without a restart.
package tls
