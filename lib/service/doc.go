// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package service implements the CBOR request-response protocol yatfs
// speaks over Unix sockets with external helper processes, such as a
// torrent metadata provider.
//
// Each connection carries exactly one exchange. The client writes one
// CBOR map holding an "action" field plus action-specific fields; the
// server answers with one [Response] envelope and closes:
//
//	{ok: true, data: <cbor>}
//	{ok: false, error: "message", code: "not_found"}
//
// The optional code lets clients map failures back onto sentinel
// errors without parsing messages. Handlers produce it by returning an
// [*Error].
package service
