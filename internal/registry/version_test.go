// Savora - Recipe Recommendation and Model Monitoring Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/savora

package registry

import "testing"

func TestIsValidVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    bool
	}{
		{"plain semver", "1.2.3", true},
		{"initial", "0.1.0", true},
		{"zero", "0.0.0", true},
		{"two components", "1.2", false},
		{"four components", "1.2.3.4", false},
		{"leading zero", "01.2.3", false},
		{"negative", "-1.2.3", false},
		{"non numeric", "a.b.c", false},
		{"prerelease suffix", "1.2.3-rc1", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidVersion(tt.version); got != tt.want {
				t.Errorf("IsValidVersion(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"equal", "1.2.3", "1.2.3", 0},
		{"major wins", "2.0.0", "1.9.9", 1},
		{"minor wins", "1.3.0", "1.2.9", 1},
		{"patch wins", "1.2.3", "1.2.4", -1},
		{"double digit minor", "1.10.0", "1.9.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompareVersions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestHighestVersion(t *testing.T) {
	tests := []struct {
		name     string
		versions []string
		want     string
	}{
		{"picks highest", []string{"1.0.0", "1.2.0", "1.1.0"}, "1.2.0"},
		{"skips invalid", []string{"garbage", "0.2.0"}, "0.2.0"},
		{"empty", nil, ""},
		{"all invalid", []string{"x", "y"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HighestVersion(tt.versions); got != tt.want {
				t.Errorf("HighestVersion(%v) = %q, want %q", tt.versions, got, tt.want)
			}
		})
	}
}

func TestBumpMinor(t *testing.T) {
	got, err := BumpMinor("1.2.3")
	if err != nil {
		t.Fatalf("BumpMinor() error = %v", err)
	}
	if got != "1.3.0" {
		t.Errorf("BumpMinor(1.2.3) = %q, want 1.3.0", got)
	}

	if _, err := BumpMinor("nope"); err == nil {
		t.Error("BumpMinor(nope) error = nil, want error")
	}
}
