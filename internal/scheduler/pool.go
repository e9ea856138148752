package scheduler

import "sync"

// Pool runs tasks with bounded concurrency and never queues: a submission
// that finds every slot busy is refused
type Pool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPool creates a pool with size slots
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// TrySubmit starts task if a slot is free and reports whether it did
func (p *Pool) TrySubmit(task func()) bool {
	select {
	case p.sem <- struct{}{}:
	default:
		return false
	}

	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		task()
	}()
	return true
}

// InFlight is the number of running tasks
func (p *Pool) InFlight() int {
	return len(p.sem)
}

// Size is the number of slots
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Wait blocks until every started task has returned
func (p *Pool) Wait() {
	p.wg.Wait()
}
