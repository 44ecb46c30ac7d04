package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestAcquireCreatesUniqueDirs(t *testing.T) {
	p := NewProvisioner(t.TempDir())

	const n = 64
	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := p.Acquire()
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[ws.Dir] {
				t.Errorf("Directory %s handed out twice", ws.Dir)
			}
			seen[ws.Dir] = true
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("Expected %d workspaces, got %d", n, len(seen))
	}
}

func TestReleaseRemovesEverything(t *testing.T) {
	p := NewProvisioner(t.TempDir())
	ws, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteFile("main.c", []byte("int main(){return 0;}")); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(ws.Dir, "nested", "deeper"), 0o755); err != nil {
		t.Fatal(err)
	}

	p.Release(ws)
	if _, err := os.Stat(ws.Dir); !os.IsNotExist(err) {
		t.Errorf("Workspace should be gone, stat err = %v", err)
	}

	// second release and nil release are harmless
	p.Release(ws)
	p.Release(nil)
}

func TestReleaseSwallowsMissingDir(t *testing.T) {
	p := NewProvisioner(t.TempDir())
	ws, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(ws.Dir); err != nil {
		t.Fatal(err)
	}
	p.Release(ws)
}

func TestAcquireFailsOnUnusableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	p := NewProvisioner(file)

	if _, err := p.Acquire(); err == nil {
		t.Error("Expected acquire under a regular file to fail")
	}
}

func TestWriteFileRejectsPaths(t *testing.T) {
	p := NewProvisioner(t.TempDir())
	ws, err := p.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Release(ws)

	for _, name := range []string{"", "..", "../escape.c", "sub/main.c", "/etc/passwd"} {
		if err := ws.WriteFile(name, nil); !errors.Is(err, ErrInvalidFileName) {
			t.Errorf("%q: expected ErrInvalidFileName, got %v", name, err)
		}
	}
}

func TestCappedBufferTruncates(t *testing.T) {
	b := newCappedBuffer(5)

	n, err := b.Write([]byte("abc"))
	if n != 3 || err != nil {
		t.Fatalf("Unexpected write result %d %v", n, err)
	}
	n, err = b.Write([]byte("defgh"))
	if n != 5 || err != nil {
		t.Fatalf("Overflowing write should still report full length, got %d %v", n, err)
	}
	if b.String() != "abcde" {
		t.Errorf("Expected abcde, got %q", b.String())
	}
	if !b.Truncated() {
		t.Error("Expected truncated flag")
	}
}

func TestCappedBufferKeepsRunesWhole(t *testing.T) {
	b := newCappedBuffer(4)

	// "aé" is 3 bytes; "ж" would straddle the limit
	if _, err := b.Write([]byte("aéжz")); err != nil {
		t.Fatal(err)
	}
	if b.String() != "aé" {
		t.Errorf("Expected cut at a rune boundary, got %q", b.String())
	}
	if !utf8.ValidString(b.String()) || !b.Truncated() {
		t.Error("Expected valid UTF-8 and truncated flag")
	}
	if _, err := b.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if b.String() != "aé" {
		t.Errorf("Writes after truncation must be dropped, got %q", b.String())
	}
}
