package shader

import (
	"errors"
	"testing"
)

const computeWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = data[id.x] * 2u;
}
`

// ===== Compile Tests =====

func TestCompileWGSL(t *testing.T) {
	spirv, err := CompileWGSL(computeWGSL)
	if err != nil {
		t.Fatalf("CompileWGSL() error = %v", err)
	}
	if len(spirv) < 5 || spirv[0] != spirvMagic {
		t.Errorf("CompileWGSL() produced %d words, first = %#x", len(spirv), spirv)
	}
}

func TestCompileWGSLInvalid(t *testing.T) {
	if _, err := CompileWGSL("fn broken( {"); err == nil {
		t.Error("CompileWGSL() of invalid source should fail")
	}
}

func TestWords(t *testing.T) {
	words, err := Words([]byte{0x03, 0x02, 0x23, 0x07, 0x01, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Words() error = %v", err)
	}
	if len(words) != 2 || words[0] != spirvMagic || words[1] != 1 {
		t.Errorf("Words() = %#x, want [magic 1]", words)
	}

	for _, bad := range [][]byte{nil, {1, 2, 3}, {0, 0, 0, 0}, {0x03, 0x02, 0x23, 0x07, 0x01}} {
		if _, err := Words(bad); !errors.Is(err, ErrInvalidSPIRV) {
			t.Errorf("Words(%v) error = %v, want ErrInvalidSPIRV", bad, err)
		}
	}
}

// ===== Compiler Tests =====

func TestCompilerCaches(t *testing.T) {
	c := NewCompiler(0)
	calls := 0
	c.compile = func(string) ([]uint32, error) {
		calls++
		return []uint32{spirvMagic, uint32(calls)}, nil
	}

	a, _ := c.Compile("a")
	b, _ := c.Compile("a")
	if calls != 1 {
		t.Errorf("compile calls = %d, want 1", calls)
	}
	if &a[0] != &b[0] {
		t.Error("cached compile should return the same blob")
	}
	_, _ = c.Compile("b")
	if calls != 2 {
		t.Errorf("compile calls = %d, want 2", calls)
	}
	if s := c.Stats(); s.Hits != 1 || s.Len != 2 {
		t.Errorf("Stats = %+v, want 1 hit and 2 entries", s)
	}
}

func TestCompilerDoesNotCacheErrors(t *testing.T) {
	c := NewCompiler(0)
	fail := errors.New("bad source")
	calls := 0
	c.compile = func(string) ([]uint32, error) {
		calls++
		return nil, fail
	}
	for range 2 {
		if _, err := c.Compile("x"); !errors.Is(err, fail) {
			t.Errorf("Compile() error = %v, want %v", err, fail)
		}
	}
	if calls != 2 {
		t.Errorf("compile calls = %d, want 2", calls)
	}
}
