// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

// Package torrent obtains and decodes torrent metainfo for yatfs.
//
// [Decode] turns raw metainfo bytes into a [Descriptor]: the info hash,
// the ordered file list that content references index into, and the
// piece geometry needed to map a file byte range onto pieces.
//
// A [Source] produces raw metainfo for an info hash. [DirSource] reads
// "<hex hash>.torrent" files from a directory, [SocketSource] asks a
// helper process over the lib/service protocol, and [FuncSource] wraps
// an injected Go function. [ParseSourceSpec] builds one from the
// --torrent_callback command-line form.
//
// [Resolver] sits in front of a Source, decoding each torrent once and
// sharing the result between concurrent callers.
package torrent
