package trial

import (
	"fmt"
	"os"
	"path/filepath"

	"responsio/pkg/contract"
)

// Scratch is one trial's private baseline directory.
type Scratch struct {
	Dir string
}

// ScratchDir is where AcquireScratch puts a trial's baselines.
func ScratchDir(root string, kind contract.Kind, index int) string {
	return filepath.Join(root, string(kind), fmt.Sprintf("trial-%d", index))
}

// AcquireScratch empties and recreates root/<kind>/trial-<index>.
// Leftovers from an interrupted run are removed first.
func AcquireScratch(root string, kind contract.Kind, index int) (*Scratch, error) {
	if root == "" {
		return nil, contract.ErrPathInvalid
	}
	dir := ScratchDir(root, kind, index)
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Scratch{Dir: dir}, nil
}

// Release removes the directory and everything in it.
func (s *Scratch) Release() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}
