package ws

import (
	"log"
	"time"
)

// Sweeper periodically pings every live connection so dead peers are
// detected and reaped between messages.
type Sweeper struct {
	hub       *Hub
	interval  time.Duration
	ticker    *time.Ticker
	stopChan  chan struct{}
	isRunning bool
}

func NewSweeper(hub *Hub, interval time.Duration) *Sweeper {
	return &Sweeper{
		hub:      hub,
		interval: interval,
	}
}

func (sw *Sweeper) Start() error {
	if sw.isRunning {
		log.Println("Connection sweeper is already running.")
		return nil
	}
	sw.ticker = time.NewTicker(sw.interval)
	sw.stopChan = make(chan struct{})
	sw.isRunning = true
	go func() {
		log.Println("Connection sweeper started.")
		for {
			select {
			case <-sw.stopChan:
				log.Println("Connection sweeper stopping...")
				sw.ticker.Stop()
				sw.isRunning = false
				log.Println("Connection sweeper stopped.")
				return
			case <-sw.ticker.C:
				sw.hub.pingAll()
			}
		}
	}()
	return nil
}

func (sw *Sweeper) Stop() error {
	if !sw.isRunning {
		log.Println("Connection sweeper is not running.")
		return nil
	}
	close(sw.stopChan)
	return nil
}

func (sw *Sweeper) IsRunning() bool {
	return sw.isRunning
}
