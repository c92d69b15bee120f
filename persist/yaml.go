package persist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/delaneyj/watchparty/observer"
)

// Persister stores named record snapshots.
type Persister interface {
	Save(ctx context.Context, name string, o *observer.Object) error
	Load(ctx context.Context, sys *observer.System, name string) (*observer.Object, error)
}

// YAMLPersister is a file-based persister writing one <name>.yaml per record.
type YAMLPersister struct {
	dir string
}

// NewYAMLPersister creates a YAMLPersister, ensuring the directory exists.
func NewYAMLPersister(dir string) (*YAMLPersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &YAMLPersister{dir: dir}, nil
}

func (p *YAMLPersister) path(name string) string {
	return filepath.Join(p.dir, name+".yaml")
}

func (p *YAMLPersister) Save(ctx context.Context, name string, o *observer.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(o)
	if err != nil {
		return err
	}
	fn := p.path(name)
	if err := os.WriteFile(fn, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", fn, err)
	}
	return nil
}

func (p *YAMLPersister) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fn := p.path(name)
	data, err := os.ReadFile(fn)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("record %q: %w", name, os.ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", fn, err)
	}
	return data, nil
}

// Load reads a snapshot into a new record owned by sys.
func (p *YAMLPersister) Load(ctx context.Context, sys *observer.System, name string) (*observer.Object, error) {
	data, err := p.read(ctx, name)
	if err != nil {
		return nil, err
	}
	return Unmarshal(sys, data)
}

// LoadInto restores a snapshot onto an existing record.
func (p *YAMLPersister) LoadInto(ctx context.Context, name string, o *observer.Object) error {
	data, err := p.read(ctx, name)
	if err != nil {
		return err
	}
	return Restore(o, data)
}

// Autosave saves o under name after every flush that changed anything in
// it. Save failures are reported through the system's error handler.
func Autosave(ctx context.Context, p Persister, name string, o *observer.Object) observer.StopFunc {
	return o.System().Watch(func() any {
		return o
	}, func(any, any) error {
		return p.Save(ctx, name, o)
	}, observer.Deep(), observer.Label("autosave "+name))
}
