// Package store loads letters and signatures for export.
//
// Lookups return (nil, nil) when the row does not exist; errors are reserved
// for failures of the backing store.
package store

import (
	"context"
	"sync"

	"github.com/lvillar/letterpdf/model"
)

// Letters loads a letter with its branch code and template relation.
type Letters interface {
	GetLetter(ctx context.Context, id string) (*model.Letter, error)
}

// Signatures loads signature images.
type Signatures interface {
	GetSignature(ctx context.Context, id string) (*model.Signature, error)
}

// Memory is an in-process store for the CLI and tests.
type Memory struct {
	mu         sync.RWMutex
	letters    map[string]*model.Letter
	signatures map[string]*model.Signature
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		letters:    make(map[string]*model.Letter),
		signatures: make(map[string]*model.Signature),
	}
}

// PutLetter stores l under l.ID.
func (m *Memory) PutLetter(l *model.Letter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.letters[l.ID] = l
}

// PutSignature stores s under s.ID.
func (m *Memory) PutSignature(s *model.Signature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures[s.ID] = s
}

// GetLetter implements Letters.
func (m *Memory) GetLetter(ctx context.Context, id string) (*model.Letter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.letters[id], nil
}

// GetSignature implements Signatures.
func (m *Memory) GetSignature(ctx context.Context, id string) (*model.Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.signatures[id], nil
}
