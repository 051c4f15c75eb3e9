package natscomm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInboxPopPreservesFIFOPerSourceTag(t *testing.T) {
	b := newInbox()
	b.push(1, 7, []byte("first"))
	b.push(1, 7, []byte("second"))

	require.Equal(t, []byte("first"), b.pop(1, 7))
	require.Equal(t, []byte("second"), b.pop(1, 7))
}

func TestInboxKeepsSourceTagPairsIndependent(t *testing.T) {
	b := newInbox()
	b.push(1, 1, []byte("a"))
	b.push(2, 1, []byte("b"))
	b.push(1, 2, []byte("c"))

	require.Equal(t, []byte("a"), b.pop(1, 1))
	require.Equal(t, []byte("b"), b.pop(2, 1))
	require.Equal(t, []byte("c"), b.pop(1, 2))
}

func TestInboxPopBlocksUntilPush(t *testing.T) {
	b := newInbox()
	done := make(chan []byte, 1)
	go func() { done <- b.pop(3, 0) }()

	select {
	case <-done:
		t.Fatal("pop returned before any push")
	case <-time.After(20 * time.Millisecond):
	}

	b.push(3, 0, []byte("late"))
	require.Equal(t, []byte("late"), <-done)
}

func TestInboxPeekSizeReportsHeadLengthWithoutConsuming(t *testing.T) {
	b := newInbox()
	b.push(4, 0, []byte("xyz"))

	require.Equal(t, 3, b.peekSize(4, 0))
	// peekSize must not have consumed the message.
	require.Equal(t, []byte("xyz"), b.pop(4, 0))
}
