// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package tls

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RootPool merges the system roots with the PEM certificates in caFile and
// the *.pem / *.crt files directly inside caDir. It returns nil when both
// are empty, which leaves verification on the system defaults.
func RootPool(caFile, caDir string) (*x509.CertPool, error) {
	if caFile == "" && caDir == "" {
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	files := []string{}
	if caFile != "" {
		files = append(files, caFile)
	}
	if caDir != "" {
		entries, err := os.ReadDir(caDir)
		if err != nil {
			return nil, fmt.Errorf("root_ca_dir: %w", err)
		}
		for _, e := range entries {
			name := strings.ToLower(e.Name())
			if !e.Type().IsRegular() || !(strings.HasSuffix(name, ".pem") || strings.HasSuffix(name, ".crt")) {
				continue
			}
			files = append(files, filepath.Join(caDir, e.Name()))
		}
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("root CA %q: %w", f, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("root CA %q: no valid PEM certificates found", f)
		}
	}
	return pool, nil
}
