package server

import (
	"sync"

	"feedreader/models"

	log "github.com/sirupsen/logrus"
)

// Broadcaster passes load and menu events on to SSE clients
type Broadcaster struct {
	sync.RWMutex
	loadClients map[string]chan models.LoadEvent
	menuClients map[string]chan models.MenuEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		loadClients: make(map[string]chan models.LoadEvent),
		menuClients: make(map[string]chan models.MenuEvent),
	}
}

// NotifyLoad implements loader.Notifier
func (b *Broadcaster) NotifyLoad(event models.LoadEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.loadClients {
		select {
		case client <- event: // Non-blocking send
		default:
			log.Warnf("Client channel full, skipping load event for client: %v", id)
		}
	}
}

func (b *Broadcaster) NotifyMenu(event models.MenuEvent) {
	b.RLock()
	defer b.RUnlock()

	for id, client := range b.menuClients {
		select {
		case client <- event:
		default:
			log.Warnf("Client channel full, skipping menu event for client: %v", id)
		}
	}
}

func (b *Broadcaster) AddClient(key string, loadClient chan models.LoadEvent, menuClient chan models.MenuEvent) {
	b.Lock()
	defer b.Unlock()
	b.loadClients[key] = loadClient
	b.menuClients[key] = menuClient
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.loadClients),
	}).Info("Adding client to broadcaster")
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.loadClients[key]; ok {
		close(client)
		delete(b.loadClients, key)
	}

	if client, ok := b.menuClients[key]; ok {
		close(client)
		delete(b.menuClients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.loadClients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Clients() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.loadClients)
}

func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.loadClients {
		close(client)
		delete(b.loadClients, key)
	}
	for key, client := range b.menuClients {
		close(client)
		delete(b.menuClients, key)
	}
}
