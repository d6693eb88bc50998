// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the yatfs
// socket protocol (lib/service) and its users.
//
// Encoding is deterministic: the same value always yields the same
// bytes. For buffers:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For sockets:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
