package permission

import "context"

// WorkerFacade wraps a blocking Facade implementation and offloads each
// call onto a bounded pool of goroutines, so a slow OS permission prompt
// never ties up the request-handling reactor (spec.md §4.8, §5: "blocking
// OS calls ... run on a dedicated blocking-task pool").
type WorkerFacade struct {
	backend Facade
	sem     chan struct{}
}

// NewWorkerFacade wraps backend with a pool of at most concurrency
// simultaneous in-flight calls.
func NewWorkerFacade(backend Facade, concurrency int) *WorkerFacade {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &WorkerFacade{backend: backend, sem: make(chan struct{}, concurrency)}
}

type result struct {
	status Status
	err    error
}

func (w *WorkerFacade) Check(ctx context.Context, permissionID string) (Status, error) {
	return w.run(ctx, func() (Status, error) { return w.backend.Check(ctx, permissionID) })
}

func (w *WorkerFacade) Request(ctx context.Context, permissionID string) (Status, error) {
	return w.run(ctx, func() (Status, error) { return w.backend.Request(ctx, permissionID) })
}

func (w *WorkerFacade) run(ctx context.Context, fn func() (Status, error)) (Status, error) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-w.sem }()

	done := make(chan result, 1)
	go func() {
		status, err := fn()
		done <- result{status, err}
	}()

	select {
	case r := <-done:
		return r.status, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
