// Package relay
// Author: momentics <momentics@gmail.com>
//
// Pass-through relay for the object protocol. Messages are framed with
// the receive ring and written on unchanged, so the relay never needs to
// know the interfaces that flow through it.
package relay
