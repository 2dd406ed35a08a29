package runner

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a process-level pidfile lock guarding against concurrent runs
// for the same day.
type Lock struct {
	path string
}

// AcquireLock creates an exclusive pidfile in dir. Returns an error when
// another run already holds it.
func AcquireLock(dir, name string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, name+".lock")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("already running (lock held at %s)", path)
		}
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return &Lock{path: path}, nil
}

// Release removes the pidfile
func (l *Lock) Release() error {
	return os.Remove(l.path)
}
