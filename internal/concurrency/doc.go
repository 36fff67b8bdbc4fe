// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Task executors for reactor callbacks and OS thread pinning for the reactor loop.
//
// Executor runs tasks on a fixed set of worker goroutines with a bounded queue;
// tasks of one connection may run in parallel or out of order. SerialExecutor runs
// every task on one goroutine in submission order, from an unbounded FIFO.
package concurrency
