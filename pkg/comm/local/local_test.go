package local_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmehnert/distributed-string-sorting/pkg/comm/local"
)

func TestAlltoallExchangesFixedSizeRecords(t *testing.T) {
	group := local.NewGroup(3)
	results := make([][]byte, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for r := 0; r < 3; r++ {
		r := r
		go func() {
			defer wg.Done()
			send := make([]byte, 3)
			for d := 0; d < 3; d++ {
				send[d] = byte(r*10 + d)
			}
			recv, err := group[r].Alltoall(context.Background(), send, 1)
			require.NoError(t, err)
			results[r] = recv
		}()
	}
	wg.Wait()

	for dst := 0; dst < 3; dst++ {
		for src := 0; src < 3; src++ {
			require.Equal(t, byte(src*10+dst), results[dst][src])
		}
	}
}

func TestAlltoallvExchangesVariableSizedChunks(t *testing.T) {
	group := local.NewGroup(2)
	var recvData [2][]byte
	var recvCounts [2][]int
	var wg sync.WaitGroup
	wg.Add(2)

	// PE0 sends "aa" (for PE0) then "bbbb" (for PE1).
	go func() {
		defer wg.Done()
		send := []byte("aabbbb")
		counts := []int{2, 4}
		displs := []int{0, 2}
		recv, cnts, _, err := group[0].Alltoallv(context.Background(), send, counts, displs)
		require.NoError(t, err)
		recvData[0], recvCounts[0] = recv, cnts
	}()
	// PE1 sends "c" (for PE0) then "dd" (for PE1).
	go func() {
		defer wg.Done()
		send := []byte("cdd")
		counts := []int{1, 2}
		displs := []int{0, 1}
		recv, cnts, _, err := group[1].Alltoallv(context.Background(), send, counts, displs)
		require.NoError(t, err)
		recvData[1], recvCounts[1] = recv, cnts
	}()
	wg.Wait()

	// PE0 receives "aa" from PE0 and "c" from PE1.
	require.Equal(t, []int{2, 1}, recvCounts[0])
	require.Equal(t, "aac", string(recvData[0]))
	// PE1 receives "bbbb" from PE0 and "dd" from PE1.
	require.Equal(t, []int{4, 2}, recvCounts[1])
	require.Equal(t, "bbbbdd", string(recvData[1]))
}

func TestExscanSingleComputesExclusivePrefixSum(t *testing.T) {
	group := local.NewGroup(3)
	values := []int64{5, 2, 7}
	results := make([]int64, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for r := 0; r < 3; r++ {
		r := r
		go func() {
			defer wg.Done()
			out, err := group[r].ExscanSingle(context.Background(), values[r], func(a, b int64) int64 { return a + b })
			require.NoError(t, err)
			results[r] = out
		}()
	}
	wg.Wait()
	require.Equal(t, []int64{0, 5, 7}, results)
}

func TestBcastDeliversRootsData(t *testing.T) {
	group := local.NewGroup(3)
	results := make([][]byte, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for r := 0; r < 3; r++ {
		r := r
		go func() {
			defer wg.Done()
			var payload []byte
			if r == 1 {
				payload = []byte("root says hi")
			}
			out, err := group[r].Bcast(context.Background(), payload, 1)
			require.NoError(t, err)
			results[r] = out
		}()
	}
	wg.Wait()
	for r := 0; r < 3; r++ {
		require.Equal(t, "root says hi", string(results[r]))
	}
}

func TestSendRecvDeliversByTagAndSource(t *testing.T) {
	group := local.NewGroup(2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, group[0].Send(context.Background(), 1, 7, []byte("payload")))
	}()
	go func() {
		defer wg.Done()
		data, err := group[1].Recv(context.Background(), 0, 7)
		require.NoError(t, err)
		require.Equal(t, "payload", string(data))
	}()
	wg.Wait()
}

func TestSendRejectsOutOfRangeDestination(t *testing.T) {
	group := local.NewGroup(2)
	err := group[0].Send(context.Background(), 5, 0, []byte("x"))
	require.Error(t, err)
}
