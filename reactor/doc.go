// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides readiness multiplexing: an epoll reactor driving
// many relay sessions and a poll(2) waiter for single-connection roundtrips.
package reactor
