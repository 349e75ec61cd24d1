// Package event tracks asynchronous GPU operations and completes their
// callbacks exactly once.
//
// Every asynchronous API creates an [Event] describing where its readiness
// comes from: an OS receiver, or a [WaitDevice] that knows how to wait on a
// backend timeline. Depending on its [CallbackMode] the event is then:
//
//   - tracked as a future that callers resolve with [Manager.WaitAny];
//   - tracked for polling by [Manager.ProcessPollEvents];
//   - left to the caller, which completes it inline when it notices
//     readiness (spontaneous mode).
//
// Callbacks never run while the manager holds a lock, so a callback may call
// back into the manager. Shutting the manager down completes every pending
// event with [CompletionShutdown].
package event
