// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory reuse for the transport layer.
// Read buffers handed from a socket pump to a connection are recycled here
// instead of being reallocated per read.
package pool
