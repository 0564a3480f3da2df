package services

import (
	"context"
	"sync"
	"sync/atomic"

	"metabolitics-api/models"
	"metabolitics-api/providers"
	"metabolitics-api/queue"
)

type fakeBackend struct {
	method models.Method
	result *providers.Result
	err    error

	calls  int32
	mu     sync.Mutex
	inputs []providers.AnalysisInput
}

func (b *fakeBackend) Method() models.Method { return b.method }

func (b *fakeBackend) Analyze(_ context.Context, in providers.AnalysisInput) (*providers.Result, error) {
	atomic.AddInt32(&b.calls, 1)
	b.mu.Lock()
	b.inputs = append(b.inputs, in)
	b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return &providers.Result{Pathways: b.result.Pathways.Clone(), Reactions: b.result.Reactions.Clone()}, nil
}

func (b *fakeBackend) Calls() int { return int(atomic.LoadInt32(&b.calls)) }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) Sent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Start(context.Context, queue.Handler) error { return nil }
func (q *recordingQueue) Close() error                               { return nil }

func (q *recordingQueue) AnalysisIDs() []uint {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]uint, 0, len(q.jobs))
	for _, j := range q.jobs {
		ids = append(ids, j.AnalysisID)
	}
	return ids
}

func testVocabulary() *Vocabulary {
	return NewVocabulary(
		map[string]string{"HMDB0000122": "glc__D_c", "Glucose": "glc__D_c", "C00031": "glc__D_c", "HMDB0000190": "lac__L_c"},
		[]string{"glc__D_c", "lac__L_c", "C00031", "C1"},
	)
}
