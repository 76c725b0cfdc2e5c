package tools

import (
	"sync"

	"github.com/cabinmind/copilot/pkg/models"
)

// VehicleState is the single process-wide store of vehicle fields (§3, §4.8,
// §9 "Ownership of VehicleState"). It is owned by the execution layer;
// handlers receive a reference for the duration of a call, and snapshots
// returned to callers are value copies. Writes are serialized by a single
// mutex; reads are lock-free snapshots of scalar fields — callers accept
// occasionally-stale reads, per §4.8.
type VehicleState struct {
	mu     sync.Mutex
	fields models.VehicleStateSnapshot
}

// NewVehicleState creates an empty store.
func NewVehicleState() *VehicleState {
	return &VehicleState{fields: make(models.VehicleStateSnapshot)}
}

// Set writes a single field under the store's mutex.
func (v *VehicleState) Set(key string, value any) {
	v.mu.Lock()
	v.fields[key] = value
	v.mu.Unlock()
}

// SetMany writes several fields atomically with respect to other writers.
func (v *VehicleState) SetMany(values map[string]any) {
	v.mu.Lock()
	for k, val := range values {
		v.fields[k] = val
	}
	v.mu.Unlock()
}

// Get returns a field's current value and whether it was set.
func (v *VehicleState) Get(key string) (any, bool) {
	v.mu.Lock()
	val, ok := v.fields[key]
	v.mu.Unlock()
	return val, ok
}

// GetString returns a field as a string, or "" if unset/wrong type.
func (v *VehicleState) GetString(key string) string {
	val, ok := v.Get(key)
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}

// GetFloat returns a field as a float64, or 0 if unset/wrong type.
func (v *VehicleState) GetFloat(key string) float64 {
	val, ok := v.Get(key)
	if !ok {
		return 0
	}
	switch n := val.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// GetBool returns a field as a bool, or false if unset/wrong type.
func (v *VehicleState) GetBool(key string) bool {
	val, ok := v.Get(key)
	if !ok {
		return false
	}
	b, _ := val.(bool)
	return b
}

// Snapshot returns a value-copy of every field, safe to hand to a caller
// that does not hold the store's lock (§9).
func (v *VehicleState) Snapshot() models.VehicleStateSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fields.Clone()
}
