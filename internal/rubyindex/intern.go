package rubyindex

import (
	"sync"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
)

// FqnID is the interned handle for an FQN, used as the primary map key
// everywhere an FQN would otherwise require a structural comparison.
type FqnID uint64

// interner assigns a stable FqnID to each distinct FQN it sees, guarded by
// its own lock so that interning never contends with the index's main
// mutex.
type interner struct {
	mu     sync.Mutex
	byKey  map[string]FqnID
	byID   []rubyfqn.FQN
	nextID FqnID
}

func newInterner() *interner {
	return &interner{
		byKey: make(map[string]FqnID),
	}
}

// intern returns fqn's id, assigning a new one on first sight.
func (in *interner) intern(fqn rubyfqn.FQN) FqnID {
	key := fqnKey(fqn)

	in.mu.Lock()
	defer in.mu.Unlock()

	if id, ok := in.byKey[key]; ok {
		return id
	}
	id := in.nextID
	in.nextID++
	in.byKey[key] = id
	in.byID = append(in.byID, fqn)
	return id
}

// lookup returns the FQN for id. Panics on an id this interner never
// issued, which would indicate a cross-index FqnID leak.
func (in *interner) lookup(id FqnID) rubyfqn.FQN {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.byID[id]
}

// fqnKey builds a structural key distinguishing FQN kind, owner path, and
// method name, so that e.g. InstanceMethod and ModuleMethod with the same
// owner/name never collide.
func fqnKey(fqn rubyfqn.FQN) string {
	return fqn.Kind.String() + "\x00" + fqn.String() + "\x00" + string(fqn.Method)
}
