// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package torrent

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yatfs/yatfs/lib/codec"
	"github.com/yatfs/yatfs/lib/service"
)

// Source produces raw metainfo bytes for an info hash. Implementations
// return an error wrapping ErrNotFound when they have nothing for the
// hash.
type Source interface {
	TorrentData(ctx context.Context, hash Hash) ([]byte, error)
}

// DirSource reads "<hex hash>.torrent" from Dir.
type DirSource struct {
	Dir string
}

// TorrentData implements Source.
func (s DirSource) TorrentData(ctx context.Context, hash Hash) ([]byte, error) {
	name := hash.String() + ".torrent"
	for _, candidate := range []string{name, strings.ToUpper(hash.String()) + ".torrent"} {
		data, err := os.ReadFile(filepath.Join(s.Dir, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading torrent %s: %w", hash, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s in %s: %w", name, s.Dir, ErrNotFound)
}

// Save writes raw into Dir under the name TorrentData looks for.
func (s DirSource) Save(hash Hash, raw []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating torrent directory: %w", err)
	}
	final := filepath.Join(s.Dir, hash.String()+".torrent")
	temporary, err := os.CreateTemp(s.Dir, ".torrent-*")
	if err != nil {
		return fmt.Errorf("saving torrent %s: %w", hash, err)
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(raw); err != nil {
		temporary.Close()
		return fmt.Errorf("saving torrent %s: %w", hash, err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("saving torrent %s: %w", hash, err)
	}
	if err := os.Rename(temporary.Name(), final); err != nil {
		return fmt.Errorf("saving torrent %s: %w", hash, err)
	}
	return nil
}

// FuncSource adapts a function to Source. An empty result counts as
// not found.
type FuncSource func(ctx context.Context, hash Hash) ([]byte, error)

// TorrentData implements Source.
func (f FuncSource) TorrentData(ctx context.Context, hash Hash) ([]byte, error) {
	data, err := f(ctx, hash)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("torrent %s: callback returned nothing: %w", hash, ErrNotFound)
	}
	return data, nil
}

// ActionTorrentData is the lib/service action a SocketSource calls.
// The request carries the hex info hash in "hash"; the response data
// is {data: <metainfo bytes>}.
const ActionTorrentData = "torrent-data"

// TorrentDataRequest is the request body of ActionTorrentData.
type TorrentDataRequest struct {
	Action string `cbor:"action"`
	Hash   string `cbor:"hash"`
}

// TorrentDataResponse is the response data of ActionTorrentData.
type TorrentDataResponse struct {
	Data []byte `cbor:"data"`
}

// SocketSource asks a helper process listening on a Unix socket.
type SocketSource struct {
	client *service.Client
}

// NewSocketSource returns a source that calls the helper at
// socketPath.
func NewSocketSource(socketPath string) *SocketSource {
	return &SocketSource{client: service.NewClient(socketPath)}
}

// TorrentData implements Source.
func (s *SocketSource) TorrentData(ctx context.Context, hash Hash) ([]byte, error) {
	var response TorrentDataResponse
	err := s.client.Call(ctx, ActionTorrentData, map[string]any{"hash": hash.String()}, &response)
	if err != nil {
		var serviceError *service.Error
		if errors.As(err, &serviceError) && serviceError.Code == service.CodeNotFound {
			return nil, fmt.Errorf("torrent %s: %s: %w", hash, serviceError.Message, ErrNotFound)
		}
		return nil, fmt.Errorf("torrent %s from %s: %w", hash, s.client.SocketPath(), err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("torrent %s: helper returned nothing: %w", hash, ErrNotFound)
	}
	return response.Data, nil
}

// TorrentDataHandler answers ActionTorrentData from source. A hash the
// source does not have is reported with service.CodeNotFound, which a
// SocketSource turns back into ErrNotFound.
func TorrentDataHandler(source Source) service.ActionFunc {
	return func(ctx context.Context, raw []byte) (any, error) {
		var request TorrentDataRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("decoding %s request: %w", ActionTorrentData, err)
		}
		hash, err := ParseHash(request.Hash)
		if err != nil {
			return nil, err
		}
		data, err := source.TorrentData(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return nil, service.NotFound("torrent %s not found", hash)
		}
		if err != nil {
			return nil, err
		}
		return TorrentDataResponse{Data: data}, nil
	}
}

// Sources tries each source in order and returns the first data
// found. Errors other than ErrNotFound stop the search.
type Sources []Source

// TorrentData implements Source.
func (s Sources) TorrentData(ctx context.Context, hash Hash) ([]byte, error) {
	for _, source := range s {
		data, err := source.TorrentData(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return data, err
	}
	return nil, fmt.Errorf("torrent %s: %w", hash, ErrNotFound)
}

// Registry maps names to sources selectable with "func:<name>". It is
// explicit state, built at startup and passed where needed.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds source under name. Names are unique.
func (r *Registry) Register(name string, source Source) error {
	if name == "" || strings.ContainsAny(name, ":/") {
		return fmt.Errorf("invalid source name %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}
	r.sources[name] = source
	return nil
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[name]
	return source, ok
}

// Names lists the registered names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	return names
}

// ParseSourceSpec builds a Source from a --torrent_callback value:
//
//	unix:<socket path>   SocketSource
//	func:<name>, <name>  source registered in registry
func ParseSourceSpec(spec string, registry *Registry) (Source, error) {
	kind, rest, hasKind := strings.Cut(spec, ":")
	if !hasKind {
		kind, rest = "func", spec
	}
	switch kind {
	case "unix":
		if rest == "" {
			return nil, fmt.Errorf("torrent callback %q: empty socket path", spec)
		}
		return NewSocketSource(rest), nil
	case "func":
		if registry == nil {
			return nil, fmt.Errorf("torrent callback %q: no sources registered", spec)
		}
		source, ok := registry.Lookup(rest)
		if !ok {
			return nil, fmt.Errorf("torrent callback %q: no source registered as %q", spec, rest)
		}
		return source, nil
	default:
		return nil, fmt.Errorf("torrent callback %q: unknown kind %q (want unix: or func:)", spec, kind)
	}
}
