// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML file that configures a yatfs mount.
//
// The file is named by the --config flag ([LoadFile]) or the
// YATFS_CONFIG environment variable ([Load]). There is no discovery and
// no per-field environment override. [Default] supplies every value the
// file leaves out, and unknown keys are rejected so typos surface at
// mount time instead of silently falling back to defaults.
//
// Path fields expand ${VAR} and ${VAR:-default}.
//
// [Config.Validate] reports every problem at once, joined with
// errors.Join.
package config
