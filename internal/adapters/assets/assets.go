// Package assets is the badge metadata registry: every organization and
// applicant badge has one metadata document, and applicant badges point at
// their organization's collection.
package assets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/growth/internal/domain/model"
	"github.com/okian/growth/pkg/logger"
)

// Badge class symbols.
const (
	SymbolOrganization = "GRWTH"
	SymbolScore        = "SCORE"
)

// Metadata describes one badge.
type Metadata struct {
	Mint       model.Key `json:"mint"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	URI        string    `json:"uri"`
	Collection model.Key `json:"collection"`
	Verified   bool      `json:"verified"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Registry is the contract consumed by the service.
type Registry interface {
	CreateMetadata(ctx context.Context, md Metadata) error
	UpdateMetadata(ctx context.Context, mint model.Key, uri string) error
	IsCollectionVerified(ctx context.Context, mint model.Key) (bool, error)
	VerifyCollectionItem(ctx context.Context, mint, collection model.Key) error
	Get(ctx context.Context, mint model.Key) (Metadata, error)
}

// Backend stores metadata documents. Load returns ErrNotFound for an unknown mint.
type Backend interface {
	Load(ctx context.Context, mint model.Key) (Metadata, error)
	Save(ctx context.Context, md Metadata) error
}

// Catalog implements Registry over a Backend. Read-modify-write cycles are
// serialized within the process.
type Catalog struct {
	backend Backend
	mu      sync.Mutex
	now     func() time.Time
	logger  logger.Logger
}

var _ Registry = (*Catalog)(nil)

// NewCatalog creates a Catalog over b.
func NewCatalog(b Backend, opts ...Option) *Catalog {
	c := &Catalog{
		backend: b,
		now:     time.Now,
		logger:  logger.Get().Named("assets"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewMemory creates a Catalog that keeps documents in process.
func NewMemory(opts ...Option) *Catalog {
	return NewCatalog(NewMemoryBackend(), opts...)
}

// CreateMetadata registers md. Verification always starts false.
func (c *Catalog) CreateMetadata(ctx context.Context, md Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.backend.Load(ctx, md.Mint); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, md.Mint)
	} else if !isNotFound(err) {
		return err
	}
	md.Verified = false
	md.UpdatedAt = c.now().UTC()
	if err := c.backend.Save(ctx, md); err != nil {
		return fmt.Errorf("save metadata %s: %w", md.Mint, err)
	}
	c.logger.Debug(ctx, "metadata created",
		logger.String("mint", md.Mint.String()),
		logger.String("name", md.Name),
		logger.String("uri", md.URI),
	)
	return nil
}

// UpdateMetadata points mint at uri.
func (c *Catalog) UpdateMetadata(ctx context.Context, mint model.Key, uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, err := c.backend.Load(ctx, mint)
	if err != nil {
		return err
	}
	md.URI = uri
	md.UpdatedAt = c.now().UTC()
	if err := c.backend.Save(ctx, md); err != nil {
		return fmt.Errorf("save metadata %s: %w", mint, err)
	}
	return nil
}

// IsCollectionVerified reports whether mint is a verified member of its collection.
func (c *Catalog) IsCollectionVerified(ctx context.Context, mint model.Key) (bool, error) {
	md, err := c.backend.Load(ctx, mint)
	if err != nil {
		return false, err
	}
	return md.Verified && md.Collection != model.NilKey, nil
}

// VerifyCollectionItem marks mint as a verified member of collection. It is a
// no-op when already verified.
func (c *Catalog) VerifyCollectionItem(ctx context.Context, mint, collection model.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	md, err := c.backend.Load(ctx, mint)
	if err != nil {
		return err
	}
	if md.Collection != collection {
		return fmt.Errorf("%w: %s not in %s", ErrCollectionMismatch, mint, collection)
	}
	if md.Verified {
		return nil
	}
	md.Verified = true
	md.UpdatedAt = c.now().UTC()
	if err := c.backend.Save(ctx, md); err != nil {
		return fmt.Errorf("save metadata %s: %w", mint, err)
	}
	c.logger.Info(ctx, "collection item verified",
		logger.String("mint", mint.String()),
		logger.String("collection", collection.String()),
	)
	return nil
}

// Get returns the metadata of mint.
func (c *Catalog) Get(ctx context.Context, mint model.Key) (Metadata, error) {
	return c.backend.Load(ctx, mint)
}

// MemoryBackend keeps documents in a map.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[model.Key]Metadata
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[model.Key]Metadata)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(_ context.Context, mint model.Key) (Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.docs[mint]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, mint)
	}
	return md, nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(_ context.Context, md Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[md.Mint] = md
	return nil
}
