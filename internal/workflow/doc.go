// Package workflow holds named multi-step procedures and runs them
// through the protocol engine.
//
// Definitions are registered on an Engine instance; there is no global
// registry. Execution is strictly ordered: each step resolves an agent by
// capability, issues one command, and the first failure aborts the run
// with the completed steps reported in the result.
package workflow
