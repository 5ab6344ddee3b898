package decoder

import "sync"

// LockCreate serializes Create for families with CapSerializedCreate.
const LockCreate = "create"

type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var (
	lockMu   sync.Mutex
	lockTab  *lockTable
	lockRefs int
)

// Locks is a reference to the process-wide lock registry. The registry is
// created by the first AcquireLocks and torn down when the last reference
// is released.
type Locks struct {
	tab  *lockTable
	once sync.Once
}

// AcquireLocks returns a new reference to the lock registry.
func AcquireLocks() *Locks {
	lockMu.Lock()
	defer lockMu.Unlock()
	if lockTab == nil {
		lockTab = &lockTable{locks: make(map[string]*sync.Mutex)}
	}
	lockRefs++
	return &Locks{tab: lockTab}
}

// Lock returns the mutex registered under name, creating it on first use.
// All references acquired while the registry lives share the same mutexes.
func (l *Locks) Lock(name string) *sync.Mutex {
	l.tab.mu.Lock()
	defer l.tab.mu.Unlock()
	m, ok := l.tab.locks[name]
	if !ok {
		m = new(sync.Mutex)
		l.tab.locks[name] = m
	}
	return m
}

// Release drops the reference. Releasing more than once has no effect.
func (l *Locks) Release() {
	l.once.Do(func() {
		lockMu.Lock()
		defer lockMu.Unlock()
		lockRefs--
		if lockRefs == 0 {
			lockTab = nil
		}
	})
}
