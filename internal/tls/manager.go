package tls

import (
	"crypto/tls"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type TLSConfig struct {
	EnableTLS  bool
	CertFile   string
	KeyFile    string
	DevCertDir string
	Host       string
}

// TLSManager serves the configured certificate pair, or a self-signed
// development certificate when none is configured.
type TLSManager struct {
	config *TLSConfig
	logger *zap.Logger

	mu   sync.Mutex
	cert *tls.Certificate
}

func NewTLSManager(config *TLSConfig, logger *zap.Logger) *TLSManager {
	return &TLSManager{config: config, logger: logger}
}

// Load resolves the certificate once so startup fails fast on a bad pair.
func (m *TLSManager) Load() error {
	_, err := m.GetCertificate(nil)
	return err
}

func (m *TLSManager) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cert != nil {
		return m.cert, nil
	}

	if m.config.CertFile != "" && m.config.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.config.CertFile, m.config.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate pair: %w", err)
		}
		m.cert = &cert
		return m.cert, nil
	}

	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if h := m.config.Host; h != "" && h != "localhost" && h != "127.0.0.1" && h != "0.0.0.0" {
		hosts = append(hosts, h)
	}
	cert, err := NewDevCertGenerator(m.config.DevCertDir, m.logger).GenerateCert(hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	m.cert = &cert
	return m.cert, nil
}

func (m *TLSManager) GetTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
}
