package browse

import (
	"time"

	"osusume/pkg/models"
)

const (
	EventSelection       = "selection.update"
	EventRecommendations = "recommendations.update"
	EventSearch          = "search.update"
)

type Event struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Keyword   string         `json:"keyword,omitempty"`
	Items     []models.Anime `json:"items"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

// Publisher fans session events out to connected clients.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }
