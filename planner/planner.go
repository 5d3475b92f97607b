package planner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/logging"
	"github.com/hupe1980/brandmesh/model"
	"github.com/hupe1980/brandmesh/tool"
)

// DefaultMaxIterations caps tool invocations when a Task leaves it unset.
const DefaultMaxIterations = 8

// TruncatedSummary is the final result of a capped run that never produced
// assistant text.
const TruncatedSummary = "Stopped after reaching the tool call limit before a final answer was produced."

var (
	tracer = otel.Tracer("brandmesh/planner")
	meter  = otel.GetMeterProvider().Meter("brandmesh/planner")
)

// StepHook is invoked after every executed step. Errors are logged only.
type StepHook func(ctx context.Context, step Step) error

// Task describes one planner run.
type Task struct {
	UserQuery          string
	SystemInstructions string
	// History is prepended to the transcript before the user query.
	History []core.Content
	Tools   *tool.Registry
	Model   model.Model
	// MaxIterations bounds tool invocations; zero means DefaultMaxIterations.
	MaxIterations  int
	Effort         model.Effort
	OnStepComplete StepHook
	// ToolContext scopes tool calls. Nil yields an empty scope.
	ToolContext *core.ToolContext
}

// Step records one tool invocation.
type Step struct {
	Index    int           `json:"index"`
	Tool     string        `json:"tool"`
	CallID   string        `json:"call_id"`
	Args     string        `json:"args"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Effects  []core.Effect `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the step's tool returned an error.
func (s Step) Failed() bool { return s.Error != "" }

// Outcome is the result of a planner run.
type Outcome struct {
	FinalResult string
	Steps       []Step
	// ModelCalls counts completion requests.
	ModelCalls int
	Truncated  bool
	// Effects gathers the effects of all successful steps in order.
	Effects []core.Effect
	Usage   model.TokenUsage
}

// Options configure a Planner.
type Options struct {
	Logger logging.Logger
}

// Planner runs tasks.
type Planner struct {
	opts Options
}

// New creates a Planner.
func New(optFns ...func(o *Options)) *Planner {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Planner{opts: opts}
}

// RunMultiStepTask runs task with a default Planner.
func RunMultiStepTask(ctx context.Context, task Task) (Outcome, error) {
	return New().Run(ctx, task)
}

// ErrNoModel is returned when a task has no model.
var ErrNoModel = errors.New("planner: task has no model")

// Run executes task. A completion error ends the run and is returned together
// with the partial outcome gathered so far.
func (p *Planner) Run(ctx context.Context, task Task) (out Outcome, err error) {
	if task.Model == nil {
		return Outcome{}, ErrNoModel
	}

	limit := task.MaxIterations
	if limit <= 0 {
		limit = DefaultMaxIterations
	}

	ctx, span := tracer.Start(ctx, "planner.run", trace.WithAttributes(
		attribute.String("model", task.Model.Info().Name),
		attribute.Int("max_iterations", limit),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.Int("steps", len(out.Steps)), attribute.Bool("truncated", out.Truncated))
		if err != nil {
			span.RecordError(err)
		}

		if dl, ok := p.opts.Logger.(logging.DomainLogger); ok {
			dl.LogPlannerRun(len(out.Steps), out.Truncated, time.Since(start), err)
			return
		}

		p.opts.Logger.Info("planner.run.finished",
			"steps", len(out.Steps),
			"model_calls", out.ModelCalls,
			"truncated", out.Truncated,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)
	}()

	tc := task.ToolContext
	if tc == nil {
		tc = core.NewToolContext(ctx, core.Scope{}, nil, p.opts.Logger)
	}
	tc = tc.WithContext(ctx)

	var defs []model.ToolDefinition
	if task.Tools != nil {
		defs = task.Tools.Definitions()
	}

	transcript := make([]core.Content, 0, len(task.History)+1)
	transcript = append(transcript, task.History...)
	transcript = append(transcript, core.NewTextContent(core.RoleUser, task.UserQuery))

	invocations := &budget{max: limit}
	lastText := ""

	for {
		callStart := time.Now()
		resp, err := model.Collect(ctx, task.Model, model.Request{
			Instructions: task.SystemInstructions,
			Contents:     transcript,
			Tools:        defs,
			Effort:       task.Effort,
		})
		out.ModelCalls++
		p.logModelCall(task.Model, resp.Usage, time.Since(callStart), err)
		if err != nil {
			out.FinalResult = lastText
			return out, fmt.Errorf("planner: model call %d: %w", out.ModelCalls, err)
		}

		addUsage(&out.Usage, resp.Usage)

		if text := resp.Content.Text(); text != "" {
			lastText = text
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			out.FinalResult = resp.Content.Text()
			return out, nil
		}

		resp.Content.Role = core.RoleAssistant
		transcript = append(transcript, resp.Content)

		results := core.Content{Role: core.RoleTool}

		for _, call := range calls {
			if invocations.take() != nil {
				out.Truncated = true
				out.FinalResult = lastText
				if out.FinalResult == "" {
					out.FinalResult = TruncatedSummary
				}

				return out, nil
			}

			step := p.execute(ctx, task.Tools, tc, len(out.Steps)+1, call)
			out.Steps = append(out.Steps, step)

			if !step.Failed() {
				out.Effects = append(out.Effects, step.Effects...)
			}

			results.Parts = append(results.Parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: step.Output,
				Error:    step.Error,
			}})

			if task.OnStepComplete != nil {
				if hookErr := task.OnStepComplete(ctx, step); hookErr != nil {
					p.opts.Logger.Warn("planner.step.hook_failed", "step", step.Index, "tool", step.Tool, "error", hookErr.Error())
				}
			}
		}

		transcript = append(transcript, results)
	}
}

// execute runs a single tool call inside its own span.
func (p *Planner) execute(ctx context.Context, tools *tool.Registry, tc *core.ToolContext, index int, call core.FunctionCall) Step {
	ctx, span := tracer.Start(ctx, "planner.step", trace.WithAttributes(
		attribute.String("tool", call.Name),
		attribute.Int("index", index),
	))
	defer span.End()

	step := Step{Index: index, Tool: call.Name, CallID: call.ID, Args: call.Arguments}
	start := time.Now()

	var (
		res tool.Result
		err error
	)

	if tools == nil {
		err = tool.NewToolError(call.Name, "no tools registered", tool.CodeNotFound)
	} else {
		res, err = tools.Dispatch(tc.WithContext(ctx).WithCall(call.ID), call.Name, call.Arguments)
	}

	step.Duration = time.Since(start)

	attrs := otelmetric.WithAttributes(attribute.String("tool", call.Name), attribute.Bool("error", err != nil))
	if counter, cerr := meter.Int64Counter("brandmesh.planner.tool_calls"); cerr == nil {
		counter.Add(ctx, 1, attrs)
	}

	if dl, ok := p.opts.Logger.(logging.DomainLogger); ok {
		dl.LogToolCall(call.Name, step.Duration, err == nil, err)
	}

	if err != nil {
		step.Error = err.Error()
		span.RecordError(err)
		p.opts.Logger.Warn("planner.step.failed", "step", index, "tool", call.Name, "error", step.Error)

		return step
	}

	step.Output = res.Output
	step.Effects = res.Effects

	p.opts.Logger.Debug("planner.step.executed", "step", index, "tool", call.Name, "duration_ms", step.Duration.Milliseconds())

	return step
}

func (p *Planner) logModelCall(m model.Model, usage *model.TokenUsage, dur time.Duration, err error) {
	dl, ok := p.opts.Logger.(logging.DomainLogger)
	if !ok {
		return
	}

	tokens := 0
	if usage != nil {
		tokens = usage.TotalTokens
	}

	dl.LogLLMCall(m.Info().Name, tokens, dur, err == nil, err)
}

func addUsage(total *model.TokenUsage, u *model.TokenUsage) {
	if u == nil {
		return
	}

	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
