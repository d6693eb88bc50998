// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of the yatfs binary.
//
// [Version] and [GitCommit] can be injected at build time via -ldflags:
//
//	go build -ldflags "-X github.com/yatfs/yatfs/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When GitCommit is not injected, the VCS revision recorded by the Go
// toolchain is used if present.
package version
