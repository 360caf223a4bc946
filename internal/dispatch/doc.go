// Package dispatch runs the per-query pipeline of the host: ask the
// reasoning engine which tool to use, repair or fall back when its answer
// is not a valid envelope, invoke the tool and synthesize the final answer.
package dispatch
