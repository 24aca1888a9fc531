// Package tasks memoises expensive endpoint computations and runs them
// asynchronously.
//
// Every request is reduced to a key built from the endpoint name, a digest
// of the request payload and the software version. The first request for a
// key records a queued entry, starts a worker and returns immediately; later
// requests see the entry's current status and, once it is terminal, its
// stored result. Terminal entries are kept until a version bump makes their
// keys unreachable, at which point the Sweeper removes them.
//
// Entries move through queued → in_progress → completed | error. Workers run
// detached from the request that started them and record a terminal status,
// including when the computation panics. If that write keeps failing, or the
// runner is closed before the worker ends, the key is deleted instead and the
// next identical request starts over.
package tasks
