// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package routine

import (
	"container/list"

	"github.com/yatfs/yatfs/lib/torrent"
)

// pieceKey names one piece of one torrent.
type pieceKey struct {
	hash  torrent.Hash
	piece int
}

// pieceCache is a least-recently-used cache of verified pieces bounded
// by total bytes. It is owned by the routine goroutine and not safe for
// concurrent use.
type pieceCache struct {
	capacity int64
	size     int64
	order    *list.List // front is most recently used
	entries  map[pieceKey]*list.Element
}

type cacheEntry struct {
	key  pieceKey
	data []byte
}

func newPieceCache(capacity int64) *pieceCache {
	return &pieceCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[pieceKey]*list.Element),
	}
}

func (c *pieceCache) get(key pieceKey) ([]byte, bool) {
	element, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(element)
	return element.Value.(*cacheEntry).data, true
}

// put stores data, evicting the least recently used pieces to stay
// within capacity. A piece larger than the whole cache is not stored.
func (c *pieceCache) put(key pieceKey, data []byte) {
	size := int64(len(data))
	if size > c.capacity {
		return
	}
	if element, ok := c.entries[key]; ok {
		c.size -= int64(len(element.Value.(*cacheEntry).data))
		element.Value.(*cacheEntry).data = data
		c.size += size
		c.order.MoveToFront(element)
	} else {
		c.entries[key] = c.order.PushFront(&cacheEntry{key: key, data: data})
		c.size += size
	}
	for c.size > c.capacity {
		oldest := c.order.Back()
		entry := oldest.Value.(*cacheEntry)
		c.order.Remove(oldest)
		delete(c.entries, entry.key)
		c.size -= int64(len(entry.data))
	}
}

func (c *pieceCache) len() int { return len(c.entries) }

func (c *pieceCache) bytes() int64 { return c.size }
