package draftflow

import "github.com/mpislabs/draftflow/pkg/worker"

// NewWorker creates a worker that leases queued jobs, collects their sources
// and generates their first draft. Start it with Worker.Start.
func (e *Engine) NewWorker(opts ...WorkerOption) *Worker {
	return worker.NewWorker(e.machine, e.registry, e.ingestor, e.generator, opts...)
}
