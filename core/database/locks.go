package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

var ErrLockTimeout = errors.New("lock acquisition timeout")

const lockPollInterval = 50 * time.Millisecond

// AdvisoryLock is an exclusive flock on a file under the lock directory.
type AdvisoryLock struct {
	path string
	file *os.File
}

func NewAdvisoryLock(lockDir, name string) (*AdvisoryLock, error) {
	if err := os.MkdirAll(lockDir, 0755); err != nil {
		return nil, err
	}

	return &AdvisoryLock{
		path: filepath.Join(lockDir, name+".lock"),
	}, nil
}

// Acquire polls until the lock is held, ctx is done or timeout elapses.
// A zero timeout waits for ctx only.
func (l *AdvisoryLock) Acquire(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		ok, err := l.TryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, l.path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

func (l *AdvisoryLock) TryAcquire() (bool, error) {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return false, err
	}

	err = syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return false, nil
		}
		return false, err
	}

	l.file = file
	return true, nil
}

func (l *AdvisoryLock) Release() error {
	if l.file == nil {
		return nil
	}

	err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return err
	}
	return closeErr
}

func (l *AdvisoryLock) IsHeld() bool {
	return l.file != nil
}

// LockManager serializes work per name within the process and, through
// AdvisoryLock, across processes sharing the lock directory.
type LockManager struct {
	lockDir string
	mu      sync.Mutex
	local   map[string]chan struct{}
}

func NewLockManager(lockDir string) *LockManager {
	return &LockManager{
		lockDir: lockDir,
		local:   make(map[string]chan struct{}),
	}
}

func (lm *LockManager) slot(name string) chan struct{} {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	ch, ok := lm.local[name]
	if !ok {
		ch = make(chan struct{}, 1)
		lm.local[name] = ch
	}
	return ch
}

// Lock acquires the named lock and returns the function that releases it.
func (lm *LockManager) Lock(ctx context.Context, name string, timeout time.Duration) (func() error, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	slot := lm.slot(name)
	select {
	case slot <- struct{}{}:
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
	}

	lock, err := NewAdvisoryLock(lm.lockDir, name)
	if err != nil {
		<-slot
		return nil, err
	}

	if err := lock.Acquire(waitCtx, 0); err != nil {
		<-slot
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, name)
		}
		return nil, err
	}

	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			err = lock.Release()
			<-slot
		})
		return err
	}, nil
}
