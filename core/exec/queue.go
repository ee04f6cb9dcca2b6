package exec

import (
	"container/heap"
	"sync"

	"github.com/parexlabs/parex/common"
)

// TxTaskQueue orders pending attempts by ascending block index, so retries
// re-enter the schedule ahead of everything that may depend on them.
type TxTaskQueue []*TxTask

func (h TxTaskQueue) Len() int           { return len(h) }
func (h TxTaskQueue) Less(i, j int) bool { return h[i].Index < h[j].Index }
func (h TxTaskQueue) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *TxTaskQueue) Push(t interface{}) {
	*h = append(*h, t.(*TxTask))
}

func (h *TxTaskQueue) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// QueueWithRetry feeds the wave scheduler. Fresh tasks and aborted retries
// share one priority queue keyed on block index.
type QueueWithRetry struct {
	lock  sync.Mutex
	queue TxTaskQueue
}

func NewQueueWithRetry(capacity int) *QueueWithRetry {
	return &QueueWithRetry{queue: make(TxTaskQueue, 0, capacity)}
}

func (q *QueueWithRetry) Add(task *TxTask) {
	q.lock.Lock()
	defer q.lock.Unlock()
	task.status = StatusPending
	heap.Push(&q.queue, task)
}

// ReTry requeues an aborted attempt under its next incarnation.
func (q *QueueWithRetry) ReTry(task *TxTask) {
	task.Incarnation++
	q.Add(task)
}

func (q *QueueWithRetry) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.queue.Len()
}

// PopWave drains up to width tasks for one optimistic wave, never two from
// the same sender: a sender's second transaction reads the nonce the first
// one writes, so running them together only manufactures aborts. Skipped
// tasks stay queued for the next wave.
func (q *QueueWithRetry) PopWave(width int) []*TxTask {
	q.lock.Lock()
	defer q.lock.Unlock()

	var (
		wave    []*TxTask
		skipped []*TxTask
		senders = map[common.Address]struct{}{}
	)
	for len(wave) < width && q.queue.Len() > 0 {
		task := heap.Pop(&q.queue).(*TxTask)
		if _, busy := senders[task.Tx.From]; busy {
			skipped = append(skipped, task)
			continue
		}
		senders[task.Tx.From] = struct{}{}
		task.status = StatusExecuting
		wave = append(wave, task)
	}
	for _, task := range skipped {
		heap.Push(&q.queue, task)
	}
	return wave
}
