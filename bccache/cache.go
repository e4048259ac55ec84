// Copyright 2024 The probejs Authors
// This file is part of probejs.

package bccache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"os"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/edsrzf/mmap-go"
	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/probejs/probejs/atom"
	"github.com/probejs/probejs/value"
)

// Cache is the two-tier bytecode cache: a bounded in-memory fastcache.Cache
// tier in front of a goleveldb on-disk tier, both keyed by Key(source).
// Every value handed to the disk tier is snappy-compressed first — compiled
// bytecode is mostly repetitive opcode bytes and atom/constant names, which
// snappy shrinks considerably for the cost of a cheap decode on lookup.
type Cache struct {
	mem   *fastcache.Cache
	disk  *leveldb.DB
	table *atom.Table
}

// Open creates or reuses an on-disk cache rooted at dir, backed by an
// memBytes-sized in-memory tier. table is the atom.Table CodeObject.Atoms
// entries are interned into/out of on every Lookup/Store.
func Open(dir string, memBytes int, table *atom.Table) (*Cache, error) {
	disk, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{
		mem:   fastcache.New(memBytes),
		disk:  disk,
		table: table,
	}, nil
}

// Close releases the on-disk tier's file handles. The in-memory tier needs
// no explicit teardown.
func (c *Cache) Close() error {
	return c.disk.Close()
}

// Key derives a cache key from source text, the same bytes Context.Eval
// compiles from — two evaluations of identical source always collide on
// the same entry regardless of filename.
func Key(source string) []byte {
	sum := sha256.Sum256([]byte(source))
	return sum[:]
}

// Lookup returns the cached CodeObject for key, checking the in-memory tier
// before falling back to disk. A disk hit is promoted into the in-memory
// tier so repeated lookups in the same process stay off goleveldb entirely.
func (c *Cache) Lookup(key []byte) (*value.CodeObject, bool) {
	if blob, ok := c.mem.HasGet(nil, key); ok {
		if code, err := c.decodeBlob(blob); err == nil {
			return code, true
		}
	}

	compressed, err := c.disk.Get(key, nil)
	if err != nil {
		return nil, false
	}
	blob, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, false
	}
	code, err := c.decodeBlob(blob)
	if err != nil {
		return nil, false
	}
	c.mem.Set(key, blob)
	return code, true
}

// Store persists code under key in both tiers.
func (c *Cache) Store(key []byte, code *value.CodeObject) error {
	blob, err := c.encodeBlob(code)
	if err != nil {
		return err
	}
	c.mem.Set(key, blob)
	return c.disk.Put(key, snappy.Encode(nil, blob), nil)
}

func (c *Cache) encodeBlob(code *value.CodeObject) ([]byte, error) {
	rec, err := encode(code, c.table)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Cache) decodeBlob(blob []byte) (*value.CodeObject, error) {
	var rec codeRecord
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&rec); err != nil {
		return nil, err
	}
	return decode(&rec, c.table)
}

// SavePrecompiled writes code to path as a standalone snappy-compressed gob
// blob, bypassing the two-tier cache entirely — the format `cmd/probejs
// build` produces for an embedder that wants to ship a precompiled bundle
// alongside its binary instead of warming a cache at first run.
func SavePrecompiled(path string, code *value.CodeObject, table *atom.Table) error {
	rec, err := encode(code, table)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}
	return os.WriteFile(path, snappy.Encode(nil, buf.Bytes()), 0o644)
}

// LoadPrecompiled reads a file SavePrecompiled wrote, memory-mapping it
// rather than reading it into a heap buffer — the file is typically read
// exactly once at process startup and then discarded, so mmap's zero-copy
// page-in is strictly cheaper than an explicit read for anything but a tiny
// bundle.
func LoadPrecompiled(path string, table *atom.Table) (*value.CodeObject, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer mapped.Unmap()

	blob, err := snappy.Decode(nil, mapped)
	if err != nil {
		return nil, err
	}
	var rec codeRecord
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&rec); err != nil {
		return nil, err
	}
	return decode(&rec, table)
}
