package domain

import "time"

// Hit is one tracking hit accepted by the relay, already rebuilt as a
// collector query string. The relay forwards it verbatim.
type Hit struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	ReceivedAt time.Time `json:"received_at"`
}

// HitBatch groups hits that travel through the queue together and are
// delivered to the collector as one bulk payload.
type HitBatch struct {
	ID   string `json:"id"`
	Hits []Hit  `json:"hits"`
}
