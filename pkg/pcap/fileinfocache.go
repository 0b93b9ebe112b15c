package pcap

import (
	lru "github.com/hashicorp/golang-lru"
)

// FileInfo is the derived, cacheable view of one container file: enough to
// answer most IndexStore questions about it without re-reading the
// sidecar's full packet list.
type FileInfo struct {
	Name           string
	Hash           string
	Size           uint64
	PacketCount    uint64
	StartTimestamp uint64
	EndTimestamp   uint64
}

func fileInfoFromIndex(f FileIndex) FileInfo {
	return FileInfo{
		Name:           f.Name,
		Hash:           f.Hash,
		Size:           f.Size,
		PacketCount:    f.PacketCount,
		StartTimestamp: f.StartTimestamp,
		EndTimestamp:   f.EndTimestamp,
	}
}

// FileInfoCache is an LRU over per-file FileInfo views, keyed by file path.
// It is a pure optimization: its absence never changes what a Reader
// returns, only how much work it repeats to get there.
type FileInfoCache struct {
	lru *lru.Cache
}

// NewFileInfoCache creates a cache holding at most size entries.
func NewFileInfoCache(size int) (*FileInfoCache, error) {
	const op = "fileinfocache.new"

	c, err := lru.New(size)
	if err != nil {
		return nil, newError(KindInvalidArgument, op, "failed to create LRU cache", err)
	}
	return &FileInfoCache{lru: c}, nil
}

// Get returns the cached FileInfo for path, if present.
func (c *FileInfoCache) Get(path string) (FileInfo, bool) {
	v, ok := c.lru.Get(path)
	if !ok {
		return FileInfo{}, false
	}
	return v.(FileInfo), true
}

// Insert stores info under path, evicting the least recently used entry if
// the cache is full.
func (c *FileInfoCache) Insert(path string, info FileInfo) {
	c.lru.Add(path, info)
}

// Clear empties the cache.
func (c *FileInfoCache) Clear() {
	c.lru.Purge()
}
