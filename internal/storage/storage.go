package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eugenenazirov/knife-inventory/internal/solver"
)

var (
	// ErrNotFound indicates no inventory has been stored for the appliance.
	ErrNotFound = errors.New("appliance inventory not found")
	// ErrInvalidInventory indicates the inventory cannot be stored.
	ErrInvalidInventory = errors.New("inventory must name an appliance")
)

// Inventory is the resolved cookbook set of one appliance.
type Inventory struct {
	Appliance  string           `json:"appliance"`
	Version    string           `json:"version"`
	Cookbooks  solver.Cookbooks `json:"cookbooks"`
	ResolvedAt time.Time        `json:"resolvedAt"`
}

func (i Inventory) clone() Inventory {
	i.Cookbooks = i.Cookbooks.Clone()
	return i
}

// Storage provides access to resolved appliance inventories.
type Storage interface {
	Get(appliance string) (Inventory, error)
	List() ([]Inventory, error)
	Put(inv Inventory) error
}

// MemoryStorage keeps inventories in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu          sync.RWMutex
	inventories map[string]Inventory
}

// NewMemoryStorage initialises an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		inventories: make(map[string]Inventory),
	}
}

// Get returns a copy of the inventory stored for appliance.
func (s *MemoryStorage) Get(appliance string) (Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.inventories[appliance]
	if !ok {
		return Inventory{}, ErrNotFound
	}
	return inv.clone(), nil
}

// List returns copies of all inventories sorted by appliance name.
func (s *MemoryStorage) List() ([]Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Inventory, 0, len(s.inventories))
	for _, inv := range s.inventories {
		out = append(out, inv.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Appliance < out[j].Appliance
	})
	return out, nil
}

// Put stores a copy of inv, replacing any previous inventory of the appliance.
func (s *MemoryStorage) Put(inv Inventory) error {
	if strings.TrimSpace(inv.Appliance) == "" {
		return ErrInvalidInventory
	}

	stored := inv.clone()
	s.mu.Lock()
	s.inventories[inv.Appliance] = stored
	s.mu.Unlock()

	return nil
}
