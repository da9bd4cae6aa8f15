//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

const maxEvents = 128

// epollReactor implements Reactor using level-triggered epoll.
type epollReactor struct {
	epfd      int
	callbacks sync.Map // map[int]FDCallback
	events    [maxEvents]unix.EpollEvent
}

// NewReactor creates the platform reactor.
func NewReactor() (Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{epfd: epfd}, nil
}

func toEpoll(events FDEventType) uint32 {
	var ev uint32 = unix.EPOLLRDHUP
	if events&EventRead != 0 {
		ev |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

// Register adds a file descriptor to the epoll watch list.
func (r *epollReactor) Register(fd int, events FDEventType, cb FDCallback) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	r.callbacks.Store(fd, cb)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		r.callbacks.Delete(fd)
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

// Modify changes the interest set of fd.
func (r *epollReactor) Modify(fd int, events FDEventType) error {
	ev := unix.EpollEvent{Events: toEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

// Unregister removes a file descriptor from the epoll watch list.
func (r *epollReactor) Unregister(fd int) error {
	r.callbacks.Delete(fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// Poll blocks and dispatches ready descriptors.
// timeoutMs < 0 means block infinitely.
func (r *epollReactor) Poll(timeoutMs int) (int, error) {
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.EpollWait(r.epfd, r.events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil // interrupted by signal, normal
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)

		val, ok := r.callbacks.Load(fd)
		if !ok {
			continue
		}

		var eventType FDEventType
		if ev.Events&unix.EPOLLIN != 0 {
			eventType |= EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			eventType |= EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			eventType |= EventError
		}

		val.(FDCallback)(fd, eventType)
	}
	return n, nil
}

// Close releases the epoll file descriptor.
func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
