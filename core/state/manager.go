package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"vaultrisk/storage"
)

// Manager owns the backing database and hands out journals. Every request
// reads and writes through one journal and either commits it or drops it.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a journal over the current committed state.
func (m *Manager) Begin() *Journal {
	return &Journal{manager: m, writes: make(map[string][]byte)}
}

// View returns a journal intended for reads only. Writes made through it are
// never committed unless Commit is called explicitly.
func (m *Manager) View() *Journal {
	return m.Begin()
}

func (m *Manager) read(key []byte) ([]byte, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

// Journal buffers writes over the manager's database. Reads observe buffered
// writes first. A nil value in writes marks a deletion.
type Journal struct {
	manager   *Manager
	writes    map[string][]byte
	committed bool
}

func (j *Journal) get(key []byte) ([]byte, error) {
	if value, ok := j.writes[string(key)]; ok {
		return value, nil
	}
	return j.manager.read(key)
}

func (j *Journal) put(key []byte, value []byte) {
	j.writes[string(key)] = append([]byte{}, value...)
}

func (j *Journal) del(key []byte) {
	j.writes[string(key)] = nil
}

// Pending reports the number of buffered keys.
func (j *Journal) Pending() int { return len(j.writes) }

// Commit writes every buffered mutation in one batch. A journal can be
// committed once.
func (j *Journal) Commit() error {
	if j.committed {
		return fmt.Errorf("state: journal already committed")
	}
	keys := make([]string, 0, len(j.writes))
	for key := range j.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	j.manager.mu.Lock()
	defer j.manager.mu.Unlock()
	batch := j.manager.db.NewBatch()
	for _, key := range keys {
		value := j.writes[key]
		if value == nil {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	j.committed = true
	j.writes = make(map[string][]byte)
	return nil
}

// Discard drops every buffered mutation.
func (j *Journal) Discard() {
	j.writes = make(map[string][]byte)
}

var (
	marketPrefix      = []byte("market:")
	totalsPrefix      = []byte("totals:")
	supplyPrefix      = []byte("supply:")
	sharesPrefix      = []byte("shares:")
	interestPrefix    = []byte("interest:")
	positionPrefix    = []byte("position:")
	positionsHashKey  = []byte("positions-hash:")
	positionIndexKey  = []byte("position-index:")
	riskParametersKey = ethcrypto.Keccak256([]byte("risk-parameters"))
)

func compositeKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func vaultKey(prefix []byte, vault common.Address) []byte {
	return compositeKey(prefix, vault.Bytes())
}

func accountKey(prefix []byte, vault, account common.Address) []byte {
	return compositeKey(prefix, vault.Bytes(), account.Bytes())
}

func positionKey(account common.Address, key common.Hash) []byte {
	return compositeKey(positionPrefix, account.Bytes(), key.Bytes())
}
