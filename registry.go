package hdfs

import (
	"fmt"
	"sort"
	"sync"

	hdfserrors "github.com/mtth/hdfs/errors"
	"github.com/mtth/hdfs/hdfstypes"
)

// Factory builds a client from an externally assembled configuration.
type Factory func(cfg *hdfstypes.ClientConfig) (*Client, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// RegisterClient associates a string identifier with a client
// constructor. Configuration loaders resolve identifiers through this
// registry at load time; there is no name-based reflection anywhere.
// Registering an identifier twice panics, the same way a duplicate
// expvar or flag registration does.
func RegisterClient(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("hdfs: client %q registered twice", name))
	}
	registry[name] = factory
}

// NewRegistered builds a client using the factory registered under name.
func NewRegistered(name string, cfg *hdfstypes.ClientConfig) (*Client, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, hdfserrors.New("registry",
			fmt.Errorf("%w: unknown client %q (registered: %v)",
				hdfserrors.ErrInvalidConfig, name, RegisteredClients()))
	}
	return factory(cfg)
}

// RegisteredClients returns the sorted identifiers currently registered.
func RegisteredClients() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	// The plain constructor doubles as the "insecure" client: whatever
	// authentication there is lives in the injected session.
	RegisterClient("insecure", NewFromConfig)
}
