package service

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/AnTengye/contractgraph/config"
	"github.com/AnTengye/contractgraph/model"
)

// ContractStore is an in-memory store of contract jobs and their results.
// Results outlive the store only in the archive.
type ContractStore struct {
	mu           sync.RWMutex
	contracts    map[string]*model.Contract
	maxContracts int // 0 = unlimited
}

func NewContractStore(cfg *config.StoreConfig) *ContractStore {
	return &ContractStore{
		contracts:    make(map[string]*model.Contract),
		maxContracts: max(cfg.MaxContracts, 0),
	}
}

// Save inserts or replaces a contract and evicts old ones beyond the limit.
func (s *ContractStore) Save(contract *model.Contract) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract.UpdatedAt = time.Now()
	s.contracts[contract.ID] = contract
	s.evict()
}

// Get returns a copy of the contract so callers never race with updates.
func (s *ContractStore) Get(id string) *model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

// GetByTenant returns copies of the tenant's contracts, newest first.
func (s *ContractStore) GetByTenant(tenant string) []*model.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Contract
	for _, c := range s.contracts {
		if c.Tenant == tenant {
			cp := *c
			result = append(result, &cp)
		}
	}
	slices.SortFunc(result, func(a, b *model.Contract) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return result
}

func (s *ContractStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contracts, id)
}

func (s *ContractStore) UpdateStatus(id, status, errMsg string) {
	s.update(id, func(c *model.Contract) {
		c.Status = status
		c.ErrorMsg = errMsg
	})
}

func (s *ContractStore) SetTaskID(id, taskID string) {
	s.update(id, func(c *model.Contract) {
		c.MineruTaskID = taskID
	})
}

// SetResult stores a resolved extraction and completes the contract.
func (s *ContractStore) SetResult(id string, result *model.ExtractionResult) {
	s.update(id, func(c *model.Contract) {
		c.Result = result
		c.Provenance = result.Provenance
		c.Status = model.StatusCompleted
		c.ErrorMsg = ""
	})
}

// ClaimExtraction moves a pending or converting contract to extracting and
// returns a copy of it. Only one caller can claim a contract; later callers
// get false, as do callers for unknown or finished contracts.
func (s *ContractStore) ClaimExtraction(id string) (*model.Contract, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok || c.Terminal() || c.Status == model.StatusExtracting {
		return nil, false
	}
	c.Status = model.StatusExtracting
	c.ErrorMsg = ""
	c.UpdatedAt = time.Now()
	cp := *c
	return &cp, true
}

// update applies fn to a stored contract. Unknown ids are ignored; the
// contract may have been deleted or evicted while its job ran.
func (s *ContractStore) update(id string, fn func(*model.Contract)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contracts[id]; ok {
		fn(c)
		c.UpdatedAt = time.Now()
	}
}

// evict drops the oldest contracts beyond maxContracts. Finished contracts
// go first so running jobs keep their record. Must be called with the lock
// held.
func (s *ContractStore) evict() {
	excess := len(s.contracts) - s.maxContracts
	if s.maxContracts <= 0 || excess <= 0 {
		return
	}

	victims := make([]*model.Contract, 0, len(s.contracts))
	for _, c := range s.contracts {
		victims = append(victims, c)
	}
	slices.SortFunc(victims, func(a, b *model.Contract) int {
		if a.Terminal() != b.Terminal() {
			if a.Terminal() {
				return -1
			}
			return 1
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	for _, c := range victims[:excess] {
		slog.Info("evicting contract",
			"contract_id", c.ID,
			"status", c.Status,
			"created_at", c.CreatedAt,
		)
		delete(s.contracts, c.ID)
	}
}

// Count returns the number of contracts in the store
func (s *ContractStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}
