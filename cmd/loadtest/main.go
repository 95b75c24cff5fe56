package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corvid/scrawl/pkg/client"
	"github.com/corvid/scrawl/pkg/protocol"
)

// Stats tracks delivery metrics across all simulated clients
type Stats struct {
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	sendErrors       atomic.Int64
	connectionErrors atomic.Int64
}

func main() {
	addr := flag.String("addr", "localhost:8080", "Server address (host:port)")
	rooms := flag.Int("rooms", 4, "Number of rooms to create")
	clientsPerRoom := flag.Int("clients", 5, "Clients per room")
	rate := flag.Int("rate", 20, "Draw events per second per client")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	log.Printf("Load test: %d rooms × %d clients, %d events/sec each, for %v",
		*rooms, *clientsPerRoom, *rate, *duration)

	stats := &Stats{}
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *rooms; i++ {
		wg.Add(1)
		go func(roomIdx int) {
			defer wg.Done()
			runRoom(*addr, roomIdx, *clientsPerRoom, *rate, *duration, stats)
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	sent := stats.messagesSent.Load()
	received := stats.messagesReceived.Load()

	fmt.Println()
	fmt.Println("=== Load Test Results ===")
	fmt.Printf("Duration:          %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Messages sent:     %d (%.0f/sec)\n", sent, float64(sent)/elapsed.Seconds())
	fmt.Printf("Messages received: %d (%.0f/sec)\n", received, float64(received)/elapsed.Seconds())
	fmt.Printf("Send errors:       %d\n", stats.sendErrors.Load())
	fmt.Printf("Connection errors: %d\n", stats.connectionErrors.Load())

	// Every draw fans out to clientsPerRoom-1 peers, so expected receives
	// are roughly sent × (clients-1), plus the join broadcasts.
	if *clientsPerRoom > 1 && sent > 0 {
		expected := sent * int64(*clientsPerRoom-1)
		fmt.Printf("Delivery ratio:    %.1f%% of expected draw fan-out\n",
			100*float64(received)/float64(expected))
	}
}

// runRoom drives one room: the first client creates it, everyone joins, then
// all clients stream draw events until the duration elapses.
func runRoom(addr string, roomIdx, clientCount, rate int, duration time.Duration, stats *Stats) {
	creator, err := client.Connect(addr)
	if err != nil {
		log.Printf("Room %d: creator dial failed: %v", roomIdx, err)
		stats.connectionErrors.Add(1)
		return
	}

	roomID, err := creator.CreateRoom()
	if err != nil {
		log.Printf("Room %d: create_room failed: %v", roomIdx, err)
		stats.connectionErrors.Add(1)
		creator.Close()
		return
	}

	clients := []*client.Client{creator}
	for i := 1; i < clientCount; i++ {
		c, err := client.Connect(addr)
		if err != nil {
			log.Printf("Room %d: client dial failed: %v", roomIdx, err)
			stats.connectionErrors.Add(1)
			continue
		}
		clients = append(clients, c)
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		if err := c.JoinRoom(roomID); err != nil {
			stats.sendErrors.Add(1)
			continue
		}

		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()
			for {
				if _, err := c.Next(0); err != nil {
					return
				}
				stats.messagesReceived.Add(1)
			}
		}(c)

		wg.Add(1)
		go func(c *client.Client) {
			defer wg.Done()
			drawLoop(c, roomID, rate, duration, stats)
		}(c)
	}

	// Drawing stops when the duration elapses; closing the sockets unblocks
	// the readers.
	time.Sleep(duration + time.Second)
	for _, c := range clients {
		c.Close()
	}
	wg.Wait()
}

// drawLoop streams a random-walk stroke at the configured rate
func drawLoop(c *client.Client, roomID string, rate int, duration time.Duration, stats *Stats) {
	interval := time.Second / time.Duration(rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.Now().Add(duration)
	x, y := rand.Float64()*800, rand.Float64()*600
	begun := false

	for time.Now().Before(deadline) {
		<-ticker.C

		x += rand.Float64()*10 - 5
		y += rand.Float64()*10 - 5
		point := protocol.Point{X: x, Y: y}

		var err error
		if !begun {
			err = c.BeginDraw(roomID, point)
			begun = true
		} else {
			err = c.UpdateDraw(roomID, point)
		}
		if err != nil {
			stats.sendErrors.Add(1)
			return
		}
		stats.messagesSent.Add(1)
	}
}
