package attributes

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-engine/serval/internal/hashid"
	"github.com/serval-engine/serval/internal/variant"
)

var (
	health = hashid.Of("health")
	speed  = hashid.Of("speed")
	name   = hashid.Of("name")
)

func TestSetGet(t *testing.T) {
	a := New(nil)
	require.True(t, Set(a, health, int32(100)))

	v, ok := Get[int32](a, health)
	assert.True(t, ok)
	assert.Equal(t, int32(100), v)

	_, ok = Get[float32](a, health)
	assert.False(t, ok, "no implicit conversion")

	_, ok = Get[int32](a, speed)
	assert.False(t, ok)
}

func TestTryGet_LeavesOutputOnMismatch(t *testing.T) {
	a := New(nil)
	Set(a, speed, float32(2.5))

	out := int32(7)
	assert.False(t, TryGet(a, speed, &out))
	assert.Equal(t, int32(7), out)

	var f float32
	assert.True(t, TryGet(a, speed, &f))
	assert.Equal(t, float32(2.5), f)
}

func TestContainsHasType(t *testing.T) {
	a := New(nil)
	Set(a, name, hashid.Of("bob"))

	assert.True(t, a.Contains(name))
	assert.True(t, Has[hashid.Id](a, name))
	assert.False(t, Has[int32](a, name))
	assert.Equal(t, variant.Id, a.Type(name))

	assert.False(t, a.Contains(health))
	assert.Equal(t, variant.Invalid, a.Type(health))
}

func TestUpdate(t *testing.T) {
	a := New(nil)

	require.NoError(t, Update(a, health, func(v *int32) { *v += 5 }))
	v, _ := Get[int32](a, health)
	assert.Equal(t, int32(5), v, "absent key starts from zero")

	require.NoError(t, Update(a, health, func(v *int32) { *v *= 3 }))
	v, _ = Get[int32](a, health)
	assert.Equal(t, int32(15), v)
}

func TestUpdate_RejectsKindMismatch(t *testing.T) {
	a := New(nil)
	Set(a, speed, float32(1.5))

	called := false
	err := Update(a, speed, func(v *int32) { called = true })

	assert.ErrorIs(t, err, ErrTagMismatch)
	assert.False(t, called)
	f, ok := Get[float32](a, speed)
	assert.True(t, ok)
	assert.Equal(t, float32(1.5), f, "stored value untouched")
}

func TestUpdate_ConcurrentIncrementsAreNotLost(t *testing.T) {
	a := New(nil)

	var wg sync.WaitGroup
	for range 64 {
		wg.Go(func() {
			assert.NoError(t, Update(a, health, func(v *int32) { *v++ }))
		})
	}
	wg.Wait()

	v, _ := Get[int32](a, health)
	assert.Equal(t, int32(64), v)
}

func TestUpdate_RacingSetOfAnotherKind(t *testing.T) {
	a := New(nil)
	Set(a, health, int32(0))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var applied, mismatched int
	for i := range 32 {
		if i == 16 {
			wg.Go(func() { Set(a, health, true) })
		}
		wg.Go(func() {
			err := Update(a, health, func(v *int32) { *v++ })
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrTagMismatch)
				mismatched++
				return
			}
			applied++
		})
	}
	wg.Wait()

	assert.Equal(t, 32, applied+mismatched)
	assert.Equal(t, variant.Boolean, a.Type(health), "an update never overwrites the newer kind")
}

// plainBackend hides Memory's Updater.
type plainBackend struct{ Backend }

func TestUpdate_PlainBackend(t *testing.T) {
	a := New(plainBackend{NewMemory()})

	require.NoError(t, Update(a, health, func(v *int32) { *v = 7 }))
	v, ok := Get[int32](a, health)
	assert.True(t, ok)
	assert.Equal(t, int32(7), v)

	Set(a, health, float32(1))
	assert.ErrorIs(t, Update(a, health, func(v *int32) { *v = 8 }), ErrTagMismatch)
}

func TestSet_ReplacesKind(t *testing.T) {
	a := New(nil)
	Set(a, health, int32(1))
	Set(a, health, true)
	assert.Equal(t, variant.Boolean, a.Type(health))
}

func TestMemory_SnapshotRestore(t *testing.T) {
	m := NewMemory()
	a := New(m)
	Set(a, health, int32(3))
	Set(a, speed, float32(4))

	snap := m.Snapshot()
	assert.Len(t, snap, 2)
	assert.Len(t, m.Keys(), 2)

	m.Delete(health)
	assert.False(t, a.Contains(health))

	m.Restore(snap)
	v, ok := Get[int32](a, health)
	assert.True(t, ok)
	assert.Equal(t, int32(3), v)

	assert.False(t, m.Write(name, variant.Value{}))
}
