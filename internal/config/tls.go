package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ExecutorTLS builds the client TLS config used for the backup executor and
// security scanner. Returns nil, nil when neither a client certificate nor a
// CA is configured.
func (c *Config) ExecutorTLS() (*tls.Config, error) {
	if c.ExecutorTLSCert == "" && c.ExecutorTLSKey == "" && c.ExecutorTLSCACert == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if c.ExecutorTLSCert != "" || c.ExecutorTLSKey != "" {
		cert, err := tls.LoadX509KeyPair(c.ExecutorTLSCert, c.ExecutorTLSKey)
		if err != nil {
			return nil, fmt.Errorf("load executor client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.ExecutorTLSCACert != "" {
		caPEM, err := os.ReadFile(c.ExecutorTLSCACert)
		if err != nil {
			return nil, fmt.Errorf("read executor CA cert: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse executor CA cert")
		}
		tlsConfig.RootCAs = pool
	}

	if c.ExecutorTLSServerName != "" {
		tlsConfig.ServerName = c.ExecutorTLSServerName
	}

	return tlsConfig, nil
}
