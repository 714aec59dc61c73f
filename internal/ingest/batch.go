package ingest

import (
	"context"
	"sync"
)

type job struct {
	index int
	task  Task
}

// ProgressFunc is called after each task of a batch finishes. done counts
// finished tasks. Calls are serialized.
type ProgressFunc func(done, total int, res Result)

// ProcessBatch runs tasks on a pool of workers and returns their results in
// task order. Tasks are independent; a failed task does not stop the batch.
// Tasks not started before ctx is done fail with the context error.
func (s *Service) ProcessBatch(ctx context.Context, tasks []Task, workers int, progress ProgressFunc) []Result {
	if workers < 1 {
		workers = 1
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan job, len(tasks))
	results := make([]Result, len(tasks))

	var (
		mu        sync.Mutex
		processed int
		wg        sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := range jobs {
				var res Result
				if err := ctx.Err(); err != nil {
					res = Result{Task: j.task, Err: wrapStage("cancelled", err, j.task.DocumentID)}
				} else {
					s.logger.Debug().
						Int("worker", workerID).
						Int("index", j.index+1).
						Str("student_id", j.task.StudentID).
						Msg("Worker processing document")

					s.metrics.WorkerStarted()
					res = s.Process(ctx, j.task)
					s.metrics.WorkerDone()
				}
				res.Index = j.index
				results[j.index] = res

				mu.Lock()
				processed++
				if progress != nil {
					progress(processed, len(tasks), res)
				}
				mu.Unlock()
			}
		}(w)
	}

	for i, task := range tasks {
		jobs <- job{index: i, task: task}
	}
	close(jobs)

	wg.Wait()
	return results
}
