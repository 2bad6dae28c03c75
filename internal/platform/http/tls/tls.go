// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

// Package tls builds the server certificate configuration and the root pool
// used to verify peers.
package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/config"
	"github.com/MahdiBaghbani/fedgraph-go/internal/platform/logutil"
)

var (
	ErrInvalidTLSMode = errors.New("invalid TLS mode")
	ErrMissingCert    = errors.New("missing certificate or key file")
)

// DefaultSelfSignedDir is where selfsigned mode keeps its key pair.
const DefaultSelfSignedDir = ".fedgraph/certs"

const selfSignedValidity = 365 * 24 * time.Hour

// ServerConfig returns the listener TLS config for cfg.Mode, or nil in off
// mode. hostname goes into a generated certificate.
func ServerConfig(cfg *config.TLSConfig, hostname string, log *slog.Logger) (*cryptotls.Config, error) {
	log = logutil.NoopIfNil(log)

	var (
		cert cryptotls.Certificate
		err  error
	)
	switch cfg.Mode {
	case "", "off":
		return nil, nil
	case "static":
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return nil, ErrMissingCert
		}
		cert, err = cryptotls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate: %w", err)
		}
		log.Info("loaded static TLS certificate", "cert_file", cfg.CertFile)
	case "selfsigned":
		dir := cfg.SelfSignedDir
		if dir == "" {
			dir = DefaultSelfSignedDir
		}
		cert, err = loadOrCreateSelfSigned(dir, hostname, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTLSMode, cfg.Mode)
	}

	return &cryptotls.Config{
		Certificates: []cryptotls.Certificate{cert},
		MinVersion:   cryptotls.VersionTLS12,
	}, nil
}

func loadOrCreateSelfSigned(dir, hostname string, log *slog.Logger) (cryptotls.Certificate, error) {
	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")

	if cert, err := cryptotls.LoadX509KeyPair(certFile, keyFile); err == nil {
		log.Info("loaded existing self-signed certificate", "cert_file", certFile)
		return cert, nil
	}

	certPEM, keyPEM, expires, err := generateSelfSigned(hostname)
	if err != nil {
		return cryptotls.Certificate{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to create cert directory: %w", err)
	}
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return cryptotls.Certificate{}, fmt.Errorf("failed to write key: %w", err)
	}
	log.Info("generated self-signed certificate", "hostname", hostname, "cert_file", certFile, "expires", expires)

	return cryptotls.X509KeyPair(certPEM, keyPEM)
}

// generateSelfSigned returns a PEM certificate and EC key valid for
// hostname and the loopback names.
func generateSelfSigned(hostname string) (certPEM, keyPEM []byte, expires time.Time, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"fedgraph development"}, CommonName: hostname},
		NotBefore:             now,
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}
	if ip := net.ParseIP(hostname); ip != nil {
		template.IPAddresses = append(template.IPAddresses, ip)
	} else if hostname != "" && hostname != "localhost" {
		template.DNSNames = append(template.DNSNames, hostname)
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, time.Time{}, fmt.Errorf("failed to marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, template.NotAfter, nil
}
