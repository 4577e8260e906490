package datasource

import (
	"sort"
	"sync"
)

// AdapterInfo describes a registered endpoint adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Dialect     string `json:"dialect"`
}

// AdapterRegistration pairs adapter info with its opener.
type AdapterRegistration struct {
	Info AdapterInfo
	Open Opener
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// Lookup returns the opener for an endpoint type.
func Lookup(endpointType string) (Opener, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[endpointType]
	if !ok {
		return nil, false
	}
	return reg.Open, true
}

// RegisteredAdapters returns info for every registered adapter, ordered by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}
