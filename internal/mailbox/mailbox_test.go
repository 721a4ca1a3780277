package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_LatestWins(t *testing.T) {
	m := New[int]()
	assert.True(t, m.Put(1))
	assert.True(t, m.Put(2))
	assert.True(t, m.Put(3))

	assert.True(t, m.HasItem())
	v, ok := m.Take()
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.False(t, m.HasItem())
	assert.Equal(t, 2, m.Dropped())
}

func TestMailbox_TakeBlocksUntilPut(t *testing.T) {
	m := New[string]()
	got := make(chan string, 1)

	go func() {
		v, _ := m.Take()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Take returned before Put")
	case <-time.After(20 * time.Millisecond):
	}

	m.Put("job")
	select {
	case v := <-got:
		assert.Equal(t, "job", v)
	case <-time.After(time.Second):
		t.Fatal("Take did not wake up")
	}
}

func TestMailbox_CloseWakesTakers(t *testing.T) {
	m := New[int]()
	done := make(chan bool, 2)
	for range 2 {
		go func() {
			_, ok := m.Take()
			done <- ok
		}()
	}

	time.Sleep(10 * time.Millisecond)
	m.Close()
	m.Close()

	for range 2 {
		select {
		case ok := <-done:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("Close did not wake Take")
		}
	}

	assert.False(t, m.Put(1))
	assert.Nil(t, m.TryTake())
}

func TestMailbox_TryTake(t *testing.T) {
	m := New[int]()
	assert.Nil(t, m.TryTake())

	m.Put(7)
	v := m.TryTake()
	require.NotNil(t, v)
	assert.Equal(t, 7, *v)
	assert.Nil(t, m.TryTake())
}
