// Package processor runs the dispatch loop that connects the execution link
// to the runners.
//
// The loop runs at a fixed maximum rate (128 ticks per second by default).
// Each tick it:
//   - drains every ready request from the link without blocking
//   - dispatches them in drain order; a rejected request gets an immediate
//     failure response
//   - drains every completed runner response from the completion channel and
//     forwards it to the link
//   - sleeps for whatever is left of the tick period, or starts the next tick
//     immediately when the tick overran
//
// Exactly one response is produced per accepted request: either the loop
// reports a synchronous rejection, or the runner that accepted the request
// reports its completion, never both.
//
// Failure handling:
//   - Job failures (rejection, non-zero exit, command not startable) are
//     failure responses and never stop the loop
//   - A disconnected inbound, outbound or completion channel is unrecoverable:
//     Run logs it and returns a *FatalError; there is no retry
//
// Limitations:
//   - No graceful drain: cancelling the context stops the loop even if
//     runners are still in flight
//   - No retry or backoff of failed requests
package processor
