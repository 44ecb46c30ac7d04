package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrInvalidFileName = errors.New("invalid workspace file name")

// Workspace is a directory owned by exactly one execution.
type Workspace struct {
	ID  string
	Dir string

	once sync.Once
}

// WriteFile places a file directly inside the workspace.
func (w *Workspace) WriteFile(name string, content []byte) error {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFileName, name)
	}
	return os.WriteFile(filepath.Join(w.Dir, name), content, 0o600)
}

// Provisioner hands out workspaces under Root.
type Provisioner struct {
	Root string
}

func NewProvisioner(root string) *Provisioner {
	if root == "" {
		root = os.TempDir()
	}
	return &Provisioner{Root: root}
}

// Acquire creates a fresh, uniquely named directory.
func (p *Provisioner) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return nil, fmt.Errorf("prepare workspace root: %w", err)
	}
	id := uuid.NewString()
	dir, err := os.MkdirTemp(p.Root, "run-"+id[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	log.Debug().Str("module", "sandbox").Str("run_id", id).Str("dir", dir).Msg("workspace acquired")
	return &Workspace{ID: id, Dir: dir}, nil
}

// Release removes the workspace recursively. Errors are logged, never returned.
func (p *Provisioner) Release(w *Workspace) {
	if w == nil {
		return
	}
	w.once.Do(func() {
		if err := os.RemoveAll(w.Dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Str("module", "sandbox").Str("run_id", w.ID).Str("dir", w.Dir).Msg("workspace cleanup failed")
			return
		}
		log.Debug().Str("module", "sandbox").Str("run_id", w.ID).Msg("workspace released")
	})
}
