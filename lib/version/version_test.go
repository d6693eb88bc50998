// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func stubBuildInfo(t *testing.T, settings ...debug.BuildSetting) {
	t.Helper()
	original := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: settings}, true
	}
	t.Cleanup(func() { readBuildInfo = original })
}

func TestCommitFromBuildInfo(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"no vcs", nil, "unknown"},
		{"clean", []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}}, "0123456789ab"},
		{"dirty", []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc123"},
			{Key: "vcs.modified", Value: "true"},
		}, "abc123-dirty"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stubBuildInfo(t, test.settings...)
			if got := Commit(); got != test.want {
				t.Errorf("Commit() = %q, want %q", got, test.want)
			}
		})
	}
}

func TestInjectedCommitWins(t *testing.T) {
	stubBuildInfo(t, debug.BuildSetting{Key: "vcs.revision", Value: "fromtoolchain"})
	original := GitCommit
	GitCommit = "injected"
	t.Cleanup(func() { GitCommit = original })

	if got := Commit(); got != "injected" {
		t.Errorf("Commit() = %q, want injected", got)
	}
	if info := Info(); info != Version+" (injected)" {
		t.Errorf("Info() = %q", info)
	}
	if full := Full(); !strings.HasPrefix(full, Info()) || !strings.Contains(full, "Go: ") {
		t.Errorf("Full() = %q", full)
	}
}
