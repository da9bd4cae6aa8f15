// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package protocol implements the object protocol runtime: interface
// descriptors, objects bound to per-opcode operation tables, the display,
// callback and registry core interfaces, and the Connection that frames,
// dispatches and writes messages over one non-blocking stream socket.
//
// A typical client drives the connection from its own event loop:
//
//	conn, _ := protocol.Dial(ctx, transport.NetworkTCP, "host:port")
//	reg, _ := conn.Display().GetRegistry()
//	_ = reg.SetListener(&protocol.RegistryListener{...}, nil)
//	_ = conn.Roundtrip(ctx)
//
// Servers accept with Accept, publish globals with AddGlobal and call
// Read, Dispatch and Flush whenever the descriptor is ready.
package protocol
