package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a periodic background job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Manager runs the job queue together with the periodic tasks.
type Manager struct {
	queue   *Queue
	tasks   []Task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewManager(queue *Queue, tasks ...Task) *Manager {
	return &Manager{queue: queue, tasks: tasks}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and one ticker goroutine per task.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	if m.queue != nil {
		m.queue.Start()
	}
	for _, t := range m.tasks {
		if t.Interval <= 0 {
			log.Warnf("[JobQueue Manager] Task %s has no interval, skipped", t.Name)
			continue
		}
		m.wg.Add(1)
		go m.taskWorker(t, m.stopCh)
	}
	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the tasks, then the queue.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	if m.queue != nil {
		m.queue.Stop()
	}
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) taskWorker(t Task, stopCh <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", t.Name, t.Interval)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if err := runTask(context.Background(), t); err != nil {
				log.Errorf("[JobQueue Manager] %v", err)
			}
		}
	}
}

// RunOnce runs every task a single time, e.g. from the CLI.
func (m *Manager) RunOnce(ctx context.Context) error {
	var errs []error
	for _, t := range m.tasks {
		if err := runTask(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func runTask(ctx context.Context, t Task) error {
	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	return nil
}
