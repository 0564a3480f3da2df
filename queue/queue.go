// Package queue transportiert Analyse-Jobs vom Dispatcher zu den Workern.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrClosed wird von Enqueue nach Close zurückgegeben.
var ErrClosed = errors.New("queue closed")

// Job referenziert eine Analyse, deren Ergebnis noch berechnet werden muss.
type Job struct {
	ID         uuid.UUID `json:"id"`
	AnalysisID uint      `json:"analysis_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob erstellt einen Job mit frischer ID.
func NewJob(analysisID uint) Job {
	return Job{ID: uuid.New(), AnalysisID: analysisID, EnqueuedAt: time.Now().UTC()}
}

// Handler verarbeitet einen Job. Fehler werden geloggt, der Job gilt trotzdem als zugestellt.
type Handler func(ctx context.Context, job Job) error

// Queue ist das Transport-Interface zwischen Dispatcher und Worker.
type Queue interface {
	// Enqueue übergibt einen Job, ohne auf dessen Verarbeitung zu warten.
	Enqueue(ctx context.Context, job Job) error
	// Start verarbeitet Jobs, bis ctx beendet oder die Queue geschlossen ist.
	Start(ctx context.Context, h Handler) error
	Close() error
}

func encodeJob(j Job) ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	return b, nil
}

func decodeJob(b []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	return j, nil
}
