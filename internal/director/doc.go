// Package director is the public entry point of the system.
//
// # Overview
//
// The Director turns a request into a plan and drives its execution:
//
//	request -> analyzer -> planner -> protocol engine -> agent
//
// ProcessRequest and ExecuteWorkflow both pass through one fixed-size
// admission gate (a weighted semaphore, default capacity 10) before doing
// any work, so workflow and ad-hoc executions share a single concurrency
// ceiling. Waiters block until a slot frees; a caller-supplied context
// cancellation is the only way to abandon a queued wait.
//
// Plan actions execute in order and stop at the first failure, reporting
// the actions executed so far rather than rolling back.
//
// # Agent lifecycle
//
// RegisterAgent drives the agent's own Initialize before the registry is
// touched: if initialization fails, registration does not proceed.
// UnregisterAgent removes the descriptor, signals the live connection to
// disconnect, and calls the agent's Shutdown, so the registry never
// contradicts the agent's actual reachability.
package director
