package command

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-engine/serval/internal/cursor"
	"github.com/serval-engine/serval/internal/hashid"
)

type spawnCmd struct {
	Prefab hashid.Id
	X, Y   float32
}

func (spawnCmd) CommandType() hashid.Id { return hashid.Of("spawn") }

var (
	physics = hashid.Of("physics")
	pause   = hashid.Of("pause")
	focus   = hashid.Of("focus")
)

func quietBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func setupBus(t *testing.T) *Bus {
	t.Helper()
	b := quietBus()
	s, err := b.AddStream("physics")
	require.NoError(t, err)
	s.Accept(spawnCmd{}.CommandType(), 12).Accept(pause, 0).Accept(focus, 4)
	return b
}

func TestAddStream_Duplicate(t *testing.T) {
	b := setupBus(t)
	_, err := b.AddStream("physics")
	assert.ErrorIs(t, err, ErrDuplicateStream)
}

func TestAllocate_Mismatches(t *testing.T) {
	b := setupBus(t)

	tests := []struct {
		name   string
		target hashid.Id
		typ    hashid.Id
		size   int
		reason MismatchReason
	}{
		{"unknown target", hashid.Of("audio"), pause, 0, ReasonNoTarget},
		{"unknown type", physics, hashid.Of("jump"), 0, ReasonNoType},
		{"wrong size", physics, focus, 8, ReasonSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := b.Allocate(tt.target, tt.typ, tt.size)
			assert.Nil(t, buf)
			require.ErrorIs(t, err, ErrNoSlot)

			me, ok := IsMismatch(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, me.Reason)
		})
	}
}

func TestAllocate_LogsWarning(t *testing.T) {
	var out bytes.Buffer
	b := NewBus(slog.New(slog.NewTextHandler(&out, nil)))

	_, err := b.Allocate(physics, pause, 0)
	require.Error(t, err)
	assert.True(t, strings.Contains(out.String(), "level=WARN"), out.String())
	assert.Contains(t, out.String(), "command allocation failed")
}

func TestDelivery_IsDeferredUntilFlip(t *testing.T) {
	b := setupBus(t)
	r, ok := b.Reader(physics)
	require.True(t, ok)

	require.NoError(t, b.SendTag(physics, pause))
	assert.Equal(t, 0, r.Len(), "nothing visible before flip")

	assert.Equal(t, 1, b.Flip())
	assert.Equal(t, 1, r.Len())

	assert.Equal(t, 0, b.Flip())
	assert.Equal(t, 0, r.Len(), "commands are consumed once")
}

func TestSend_TypedRoundTrip(t *testing.T) {
	b := setupBus(t)
	r, _ := b.Reader(physics)

	want := spawnCmd{Prefab: hashid.Of("crate"), X: 1.5, Y: -2}
	require.NoError(t, Send(b, physics, want))
	require.NoError(t, b.SendID(physics, focus, hashid.Of("player")))
	b.Flip()

	recs := r.Records()
	require.Len(t, recs, 2)

	got, err := Decode[spawnCmd](recs[0])
	require.NoError(t, err)
	assert.Equal(t, want, got)

	id, ok := ID(recs[1])
	require.True(t, ok)
	assert.Equal(t, hashid.Of("player"), id)

	_, err = Decode[spawnCmd](recs[1])
	assert.ErrorIs(t, err, ErrNoSlot)
}

func TestSend_WrongSlotSize(t *testing.T) {
	b := quietBus()
	s, err := b.AddStream("physics")
	require.NoError(t, err)
	s.Accept(spawnCmd{}.CommandType(), 8)

	err = Send(b, physics, spawnCmd{})
	me, ok := IsMismatch(err)
	require.True(t, ok)
	assert.Equal(t, 12, me.Size)
	assert.Equal(t, 8, me.Expected)
}

func TestAllocate_RegionsSurviveLaterAllocations(t *testing.T) {
	b := quietBus()
	s, _ := b.AddStream("bulk")
	blob := hashid.Of("blob")
	s.Accept(blob, 1000)
	r, _ := b.Reader(s.ID())

	for i := 0; i < 10; i++ {
		buf, err := b.Allocate(s.ID(), blob, 1000)
		require.NoError(t, err)
		for j := range buf {
			buf[j] = byte(i)
		}
	}
	b.Flip()

	i := 0
	r.Each(func(rec Record) {
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 1000), rec.Data)
		i++
	})
	assert.Equal(t, 10, i)
}

func TestAllocate_RecycledRegionsAreZeroed(t *testing.T) {
	b := setupBus(t)
	r, _ := b.Reader(physics)

	require.NoError(t, b.SendID(physics, focus, hashid.Of("a")))
	b.Flip()
	b.Flip()

	buf, err := b.Allocate(physics, focus, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
	b.Flip()
	assert.Equal(t, 1, r.Len())
}

func TestAllocate_ConcurrentWriters(t *testing.T) {
	b := setupBus(t)
	r, _ := b.Reader(physics)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, b.SendID(physics, focus, hashid.Id(i+1)))
			}
		}()
	}
	wg.Wait()
	b.Flip()

	assert.Equal(t, 800, r.Len())
}

func TestPublish_RetainsGenerationsAboveFloor(t *testing.T) {
	b := setupBus(t)

	for gen := uint64(1); gen <= 3; gen++ {
		require.NoError(t, b.SendID(physics, focus, hashid.Id(gen)))
		assert.Equal(t, 1, b.Publish(gen, 1), "floor 1 keeps everything")
	}

	slow, _ := b.ReaderIn(physics, cursor.Window{From: 1, To: 3})
	var got []hashid.Id
	slow.Each(func(rec Record) {
		id, _ := ID(rec)
		got = append(got, id)
	})
	assert.Equal(t, []hashid.Id{1, 2, 3}, got, "oldest generation first")

	fast, _ := b.ReaderIn(physics, cursor.Window{From: 3, To: 3})
	assert.Equal(t, 1, fast.Len())
	latest, _ := b.Reader(physics)
	assert.Equal(t, 1, latest.Len())

	b.Publish(4, 3)
	assert.Equal(t, 1, slow.Len(), "generations below the floor are released")
	empty, _ := b.ReaderIn(physics, cursor.Window{From: 4, To: 4})
	assert.Zero(t, empty.Len())
	assert.Empty(t, empty.Records())
}
