// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package transport establishes non-blocking stream sockets for protocol
// connections: TCP with TCP_NODELAY, Unix sockets (including the Linux
// abstract namespace) and in-process socket pairs. Sockets expose scatter
// and gather I/O directly over the descriptor.
package transport
