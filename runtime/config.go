// Copyright 2024 The probejs Authors
// This file is part of probejs.

package runtime

import (
	"os"

	"github.com/naoina/toml"
)

// Config holds the embedder-tunable limits a Runtime enforces, loadable
// from a TOML file the way go-ethereum (the teacher's upstream) loads its
// own node config.
type Config struct {
	// MaxHeapBytes bounds the Go heap a running script may grow to: at
	// loop back-edges, on the InterruptPollOpcodes cadence, the VM samples
	// the live heap size and throws a RangeError once it exceeds this
	// limit; zero means unbounded.
	MaxHeapBytes int64 `toml:"max_heap_bytes"`

	// MaxCallDepth bounds nested bytecode-function calls; a Context
	// inherits this into the VM it builds. Zero selects the VM's own
	// built-in default.
	MaxCallDepth int `toml:"max_call_depth"`

	// InterruptPollOpcodes is how many backward branches (the GOTO
	// family's loop back-edges) pass between checks of a host-installed
	// interrupt callback (§5 "host-installable interrupt checks ...
	// polled at backward-branch opcodes"); zero selects the VM's own
	// built-in default. The same cadence paces the MaxHeapBytes check;
	// with neither a callback (Context.SetInterruptHandler) nor a heap
	// limit installed, no polling happens at all.
	InterruptPollOpcodes int `toml:"interrupt_poll_opcodes"`

	// SourceMapPath, if set, is loaded and consulted when materializing a
	// stack trace so positions in pre-compiled/minified input map back to
	// their original source.
	SourceMapPath string `toml:"source_map_path"`

	// BytecodeCacheDir, if set, turns on the persisted bytecode cache
	// (§6): Context.Eval looks up a CodeObject by source hash before
	// compiling, and stores one after compiling on a miss. Empty disables
	// caching — every Eval call compiles from scratch.
	BytecodeCacheDir string `toml:"bytecode_cache_dir"`

	// BytecodeCacheMemBytes sizes the cache's in-memory tier. Zero selects
	// a small built-in default.
	BytecodeCacheMemBytes int `toml:"bytecode_cache_mem_bytes"`
}

// DefaultConfig returns the zero-value Config (no limits enforced, no
// source map), the Runtime's behavior absent any embedder configuration.
func DefaultConfig() Config {
	return Config{}
}

// LoadConfig reads and parses a TOML config file at path.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
