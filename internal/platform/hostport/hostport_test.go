// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package hostport

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		authority string
		scheme    string
		want      string
		wantErr   bool
	}{
		{authority: "social.example:443", scheme: "https", want: "social.example"},
		{authority: "social.example:80", scheme: "http", want: "social.example"},
		{authority: "social.example:8443", scheme: "https", want: "social.example:8443"},
		{authority: "social.example:443", scheme: "http", want: "social.example:443"},
		{authority: "social.example:80", scheme: "HTTPS", want: "social.example:80"},
		{authority: "Social.EXAMPLE", scheme: "https", want: "social.example"},
		{authority: "  social.example ", scheme: "https", want: "social.example"},
		{authority: "[::1]", scheme: "https", want: "[::1]"},
		{authority: "[::1]:443", scheme: "https", want: "[::1]"},
		{authority: "[2001:db8::1]:9200", scheme: "http", want: "[2001:db8::1]:9200"},
		{authority: "192.0.2.1:80", scheme: "http", want: "192.0.2.1"},
		{authority: "bücher.example", scheme: "https", want: "xn--bcher-kva.example"},
		{authority: "BÜCHER.example:8443", scheme: "https", want: "xn--bcher-kva.example:8443"},
		{authority: "https://social.example", scheme: "https", wantErr: true},
		{authority: "social.example/api", scheme: "https", wantErr: true},
		{authority: "", scheme: "https", wantErr: true},
		{authority: "   ", scheme: "https", wantErr: true},
		{authority: ":8080", scheme: "http", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.authority+"|"+tt.scheme, func(t *testing.T) {
			got, err := Normalize(tt.authority, tt.scheme)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b   string
		scheme string
		want   bool
	}{
		{"social.example", "SOCIAL.example:443", "https", true},
		{"social.example", "social.example:80", "http", true},
		{"social.example", "social.example:8443", "https", false},
		{"bücher.example", "xn--bcher-kva.example", "https", true},
		{"social.example", "other.example", "https", false},
		{"", "", "https", false},
	}

	for _, tt := range tests {
		if got := Equal(tt.a, tt.b, tt.scheme); got != tt.want {
			t.Errorf("Equal(%q, %q, %q) = %v, want %v", tt.a, tt.b, tt.scheme, got, tt.want)
		}
	}
}

func TestFromURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "https://Social.Example:443/api/note/1", want: "social.example"},
		{raw: "http://localhost:8080", want: "localhost:8080"},
		{raw: "https://bücher.example/", want: "xn--bcher-kva.example"},
		{raw: "social.example", wantErr: true},
		{raw: "acct:alice@social.example", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := FromURL(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("FromURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("FromURL(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestURLOnHost(t *testing.T) {
	tests := []struct {
		raw       string
		authority string
		want      bool
	}{
		{"https://peer.example/api/note/1", "peer.example", true},
		{"https://peer.example:443/api/note/1", "PEER.example", true},
		{"http://peer.example:8080/x", "peer.example:8080", true},
		{"https://peer.example:8443/x", "peer.example", false},
		{"https://evil.example/peer.example", "peer.example", false},
		{"https://peer.example.evil.example/x", "peer.example", false},
		{"/api/note/1", "peer.example", false},
		{"https://peer.example/x", "", false},
	}

	for _, tt := range tests {
		if got := URLOnHost(tt.raw, tt.authority); got != tt.want {
			t.Errorf("URLOnHost(%q, %q) = %v, want %v", tt.raw, tt.authority, got, tt.want)
		}
	}
}
