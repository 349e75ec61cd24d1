// Package shader compiles WGSL to SPIR-V through naga and caches the result
// by source hash.
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/naga"
	"github.com/zeebo/xxh3"

	"github.com/gogpu/wgcore/internal/blobcache"
	"github.com/gogpu/wgcore/internal/logging"
	"github.com/gogpu/wgcore/internal/telemetry"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// ErrInvalidSPIRV is returned for code that is not a SPIR-V module.
var ErrInvalidSPIRV = errors.New("shader: not a SPIR-V module")

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(source string) ([]uint32, error) {
	start := time.Now()
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("shader: compile: %w", err)
	}
	telemetry.CompileDuration(time.Since(start))
	return Words(spirvBytes)
}

// Words converts little-endian SPIR-V bytes to words and checks the magic
// number.
func Words(spirvBytes []byte) ([]uint32, error) {
	if len(spirvBytes) < 4 || len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSPIRV, len(spirvBytes))
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrInvalidSPIRV, words[0])
	}
	return words, nil
}

// Compiler compiles WGSL and remembers the SPIR-V of recent sources.
// Failed compilations are not cached. Compiler is safe for concurrent use.
type Compiler struct {
	cache   *blobcache.Cache[uint64, []uint32]
	compile func(string) ([]uint32, error)
}

// DefaultCacheBudget is the default SPIR-V byte budget of a Compiler.
const DefaultCacheBudget = 4 << 20

// NewCompiler creates a compiler whose cache holds up to budget bytes of
// SPIR-V. A budget of 0 selects DefaultCacheBudget.
func NewCompiler(budget int) *Compiler {
	if budget <= 0 {
		budget = DefaultCacheBudget
	}
	return &Compiler{
		cache:   blobcache.New[uint64, []uint32](budget, func(w []uint32) int { return 4 * len(w) }),
		compile: CompileWGSL,
	}
}

// Compile returns the SPIR-V for source, compiling it on a cache miss.
func (c *Compiler) Compile(source string) ([]uint32, error) {
	key := xxh3.HashString(source)
	if spirv, ok := c.cache.Get(key); ok {
		telemetry.CacheOp("spirv", "hit")
		return spirv, nil
	}
	telemetry.CacheOp("spirv", "miss")

	spirv, err := c.compile(source)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, spirv)
	logging.Logger().Debug("shader: compiled", "words", len(spirv), "key", key)
	return spirv, nil
}

// Stats returns statistics of the SPIR-V cache.
func (c *Compiler) Stats() blobcache.Stats { return c.cache.Stats() }
