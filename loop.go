package pusher

import "sync"

// taskQueue 事件循环的任务队列
// 无界 FIFO：投递从不阻塞，处理函数中再次投递不会死锁
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	notify chan struct{}
	closed bool
	done   chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push 追加任务，队列关闭后返回 false
func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// take 取出当前全部任务
func (q *taskQueue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := q.tasks
	q.tasks = nil
	return tasks
}

// drain 执行任务直到队列为空（包括执行中新投递的），返回执行数量
func (q *taskQueue) drain() int {
	n := 0
	for {
		tasks := q.take()
		if len(tasks) == 0 {
			return n
		}
		for _, fn := range tasks {
			fn()
		}
		n += len(tasks)
	}
}

// run 事件循环主体，close 后执行完剩余任务再返回
func (q *taskQueue) run() {
	defer close(q.done)

	for range q.notify {
		q.drain()

		q.mu.Lock()
		closed := q.closed && len(q.tasks) == 0
		q.mu.Unlock()
		if closed {
			return
		}
	}
}

// close 停止接收任务（可重复调用）
func (q *taskQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// 唤醒循环检查关闭状态
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
