// Package planner implements the multi-step tool-use loop that agents route
// user-facing requests through.
//
// RunMultiStepTask sends the running transcript and the registry's tool
// definitions to a model, executes at most one tool call at a time, feeds the
// result back, and stops on the first answer without tool calls. The loop is
// capped by Task.MaxIterations tool invocations. A failing tool is recorded as
// a failed step and reported to the model as a tool error; the loop continues.
package planner
