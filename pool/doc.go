// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable I/O buffers for the reactor.
//
// BufferPool keeps two rings of fixed-size buffers: a core ring allocated up front
// (anonymous mmap on Linux when Direct is set) and an overflow ring grown on demand
// and dropped once it has been idle longer than the keep-alive. When both rings are
// exhausted Get falls back to an untracked heap buffer, so it never blocks or fails.
package pool
