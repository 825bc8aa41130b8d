package session

import (
	"sync"
	"testing"
)

func TestTransportCloseIsConcurrencySafe(t *testing.T) {
	// Leave and a server-side disconnect can both reach Close; neither order
	// may panic on a double close of the done channel.
	tr := NewTransport("ws://localhost/ws")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Close()
		}()
	}
	wg.Wait()

	tr.Close()
}
