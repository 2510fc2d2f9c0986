package server_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashdash/protocol"
	"dashdash/server"
)

func newTestWorld(maxPlayers int) *server.World {
	return server.NewWorld(server.WorldConfig{
		MaxPlayers:    maxPlayers,
		SpawnX:        400,
		SpawnY:        300,
		Speed:         5,
		DiagonalSpeed: 3.5,
	})
}

func join(t *testing.T, w *server.World, name, clientID string) server.PlayerID {
	t.Helper()
	id, err := w.Reserve()
	require.NoError(t, err)
	_, err = w.Join(id, name, clientID)
	require.NoError(t, err)
	return id
}

func TestWorld_ReserveRespectsCapacity(t *testing.T) {
	w := newTestWorld(2)

	id1, err := w.Reserve()
	require.NoError(t, err)
	id2, err := w.Reserve()
	require.NoError(t, err)
	assert.Equal(t, server.PlayerID(1), id1)
	assert.Equal(t, server.PlayerID(2), id2)

	// 两个槽位都在握手中，也算满员
	_, err = w.Reserve()
	assert.ErrorIs(t, err, server.ErrServerFull)

	// 释放一个预留槽位后可以再次准入，编号不复用
	assert.True(t, w.Remove(id1))
	id3, err := w.Reserve()
	require.NoError(t, err)
	assert.Equal(t, server.PlayerID(3), id3)
}

func TestWorld_RejectedAdmissionConsumesNoID(t *testing.T) {
	w := newTestWorld(1)
	join(t, w, "a", "a1")

	_, err := w.Reserve()
	require.ErrorIs(t, err, server.ErrServerFull)

	require.True(t, w.Remove(1))
	id, err := w.Reserve()
	require.NoError(t, err)
	assert.Equal(t, server.PlayerID(2), id)
}

func TestWorld_Join(t *testing.T) {
	w := newTestWorld(4)

	id, err := w.Reserve()
	require.NoError(t, err)
	snap, err := w.Join(id, "", "a1")
	require.NoError(t, err)

	require.Len(t, snap, 1)
	assert.Equal(t, protocol.PlayerState{X: 400, Y: 300, Name: "Player1", ClientID: "a1"}, snap[id])
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 0, w.Pending())
	assert.True(t, w.IdentityInUse("a1"))

	_, err = w.Join(99, "ghost", "")
	assert.ErrorIs(t, err, server.ErrUnknownPlayer)
}

func TestWorld_IdentityConflict(t *testing.T) {
	w := newTestWorld(4)
	first := join(t, w, "alice", "a1")
	w.Move(first, protocol.MoveRight, "")
	before, _ := w.Player(first)

	id, err := w.Reserve()
	require.NoError(t, err)
	_, err = w.Join(id, "impostor", "a1")
	require.ErrorIs(t, err, server.ErrIdentityInUse)

	// 已有会话不受影响，失败的槽位被回收
	after, ok := w.Player(first)
	require.True(t, ok)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 0, w.Pending())
	_, ok = w.Player(id)
	assert.False(t, ok)
}

func TestWorld_EmptyIdentityNeverDeduplicated(t *testing.T) {
	w := newTestWorld(4)
	join(t, w, "x", "")
	join(t, w, "y", "")
	assert.Equal(t, 2, w.Len())
}

func TestWorld_MoveAndRename(t *testing.T) {
	w := newTestWorld(4)
	id := join(t, w, "alice", "a1")

	st, ok := w.Move(id, protocol.MoveUp|protocol.MoveRight, "")
	require.True(t, ok)
	assert.Equal(t, 403.5, st.X)
	assert.Equal(t, 296.5, st.Y)
	assert.Equal(t, "alice", st.Name)

	st, ok = w.Move(id, protocol.MoveNone, "alicia")
	require.True(t, ok)
	assert.Equal(t, "alicia", st.Name)
	assert.Equal(t, 403.5, st.X)

	_, ok = w.Move(42, protocol.MoveUp, "")
	assert.False(t, ok)
}

func TestWorld_RemoveFreesIdentity(t *testing.T) {
	w := newTestWorld(4)
	a := join(t, w, "alice", "a1")
	join(t, w, "bob", "b1")

	require.True(t, w.Remove(a))
	assert.False(t, w.Remove(a), "remove is idempotent")
	assert.Equal(t, 1, w.Len())
	assert.False(t, w.IdentityInUse("a1"))
	assert.True(t, w.IdentityInUse("b1"))

	// 身份可立即被新握手复用
	join(t, w, "alice again", "a1")
	assert.Equal(t, 2, w.Len())
}

func TestWorld_ChangeSignalCoalesces(t *testing.T) {
	w := newTestWorld(4)
	id := join(t, w, "alice", "a1")

	for i := 0; i < 10; i++ {
		w.Move(id, protocol.MoveDown, "")
	}
	assert.Len(t, w.Changed(), 1)
	<-w.Changed()
	assert.Len(t, w.Changed(), 0)

	w.Remove(id)
	assert.Len(t, w.Changed(), 1)
}

func TestWorld_SetSpeeds(t *testing.T) {
	w := newTestWorld(4)
	w.SetSpeeds(10, 0)
	speed, diagonal := w.Speeds()
	assert.Equal(t, 10.0, speed)
	assert.Equal(t, 3.5, diagonal)

	id := join(t, w, "alice", "")
	st, _ := w.Move(id, protocol.MoveLeft, "")
	assert.Equal(t, 390.0, st.X)
}

func TestWorld_ConcurrentAdmissionNeverExceedsCapacity(t *testing.T) {
	const maxPlayers = 5
	w := newTestWorld(maxPlayers)

	var (
		wg       sync.WaitGroup
		overflow atomic.Int32
		stop     = make(chan struct{})
	)

	// 采样协程：任意时刻玩家数都不超过上限
	sampler := make(chan struct{})
	go func() {
		defer close(sampler)
		for {
			select {
			case <-stop:
				return
			default:
				if w.Len() > maxPlayers {
					overflow.Add(1)
				}
			}
		}
	}()

	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := w.Reserve()
				if err != nil {
					continue
				}
				if _, err := w.Join(id, "", fmt.Sprintf("c%d", i%3)); err != nil {
					continue
				}
				w.Move(id, protocol.MoveRight, "")
				w.Remove(id)
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-sampler

	assert.Zero(t, overflow.Load())
	assert.Equal(t, 0, w.Len())
	assert.Equal(t, 0, w.Pending())
	for i := 0; i < 3; i++ {
		assert.False(t, w.IdentityInUse(fmt.Sprintf("c%d", i)))
	}
}
