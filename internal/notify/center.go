package notify

import (
	"sync"
	"time"

	"github.com/jfehre/countdart/panel/internal/logger"
)

const historySize = 20

// Notification is a transient, colored banner shown to the user.
type Notification struct {
	ID      uint64    `json:"id"`
	Kind    string    `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	Color   string    `json:"color"`
	Time    time.Time `json:"time"`
}

// Center collects reported errors and fans the resulting notifications out
// to subscribers. Slow subscribers miss notifications instead of blocking.
type Center struct {
	mu      sync.Mutex
	nextSeq uint64
	nextID  int
	clients map[int]chan Notification
	history []Notification
	log     *logger.ModuleLogger
}

// NewCenter creates an empty notification center.
func NewCenter() *Center {
	return &Center{
		clients: make(map[int]chan Notification),
		log:     logger.For("Notify"),
	}
}

// Report converts err into a notification and publishes it. Nil is ignored.
func (c *Center) Report(err error) {
	if err == nil {
		return
	}
	c.log.Warn("%s error: %v", KindOf(err), err)
	c.Publish(Notification{
		Kind:    KindOf(err).String(),
		Title:   "Error",
		Message: err.Error(),
		Color:   "red",
	})
}

// Info publishes a non-error notification.
func (c *Center) Info(title, message string) {
	c.Publish(Notification{Kind: "info", Title: title, Message: message, Color: "green"})
}

// Publish stamps n and delivers it to every subscriber.
func (c *Center) Publish(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSeq++
	n.ID = c.nextSeq
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	c.history = append(c.history, n)
	if len(c.history) > historySize {
		c.history = c.history[len(c.history)-historySize:]
	}

	for _, ch := range c.clients {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribe registers a subscriber and returns its id and channel.
func (c *Center) Subscribe() (int, <-chan Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan Notification, 8)
	c.clients[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Center) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ch, ok := c.clients[id]; ok {
		close(ch)
		delete(c.clients, id)
	}
}

// Recent returns the most recent notifications, oldest first.
func (c *Center) Recent() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.history))
	copy(out, c.history)
	return out
}

// Count returns how many notifications have been published.
func (c *Center) Count() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextSeq
}
