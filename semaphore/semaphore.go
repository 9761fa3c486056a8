// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

package semaphore

import "context"

// Semaphore is the interface for the counting semaphores limiting concurrency
// per enricher and for the shared DNS resolution pool.
type Semaphore interface {
	// Acquire blocks until a resource count has been obtained
	Acquire()

	// AcquireCtx blocks until a resource count has been obtained or the
	// context expires, returning false in the latter case
	AcquireCtx(ctx context.Context) bool

	// TryAcquire attempts to obtain a resource count without blocking
	TryAcquire() bool

	// Release returns a resource count to the semaphore
	Release()
}

// SimpleSemaphore implements a synchronization object
// type capable of being a counting semaphore.
type SimpleSemaphore struct {
	c chan struct{}
}

// NewSimpleSemaphore returns a SimpleSemaphore initialized to max resource counts.
func NewSimpleSemaphore(max int) Semaphore {
	if max <= 0 {
		max = 1
	}

	sem := &SimpleSemaphore{
		c: make(chan struct{}, max),
	}

	for i := 0; i < max; i++ {
		sem.c <- struct{}{}
	}
	return sem
}

// Acquire blocks until a resource count has been obtained.
func (s *SimpleSemaphore) Acquire() {
	<-s.c
}

// AcquireCtx blocks until a resource count has been obtained or the context
// is done. The method returns true when the count was acquired.
func (s *SimpleSemaphore) AcquireCtx(ctx context.Context) bool {
	select {
	case <-s.c:
		return true
	case <-ctx.Done():
		return false
	}
}

// TryAcquire attempts to obtain a resource count without blocking.
// The method returns true when successful in acquiring the resource count.
func (s *SimpleSemaphore) TryAcquire() bool {
	select {
	case <-s.c:
		return true
	default:
		return false
	}
}

// Release returns a resource count to the semaphore.
func (s *SimpleSemaphore) Release() {
	s.c <- struct{}{}
}
