package pool

import (
	"context"
	"sync"
)

// DefaultWorkers размер пула по умолчанию для запросов к провайдерам
const DefaultWorkers = 8

// Run выполняет fn для каждого индекса из [0, n) не более чем в workers
// горутинах одновременно. Задачи раздаются по порядку индексов, завершаются
// в произвольном порядке. Ошибки отдельных задач fn обрабатывает сама.
//
// При отмене ctx новые задачи не запускаются, уже запущенные получают
// отмененный контекст. Run возвращает ctx.Err(), если до отмены были
// розданы не все задачи.
func Run(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) error {
	if n <= 0 {
		return ctx.Err()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > n {
		workers = n
	}

	tasks := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				fn(ctx, i)
			}
		}()
	}

	var err error
dispatch:
	for i := 0; i < n; i++ {
		// Отмена проверяется до выбора, иначе select может раздать задачу после отмены
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case tasks <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		}
	}
	close(tasks)
	wg.Wait()
	return err
}
