package bqanalyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/bq"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/checkpoint"
	"github.com/epirlabs/bqanalyst/pkg/bqanalyst/observability"
)

// DefaultSystemPrompt guides the model through the tool surface.
const DefaultSystemPrompt = `You are a data analyst working against Google BigQuery.

Answer questions by inspecting the available data and running read-only SQL.
Work in this order:
1. Use list_datasets to find the datasets in the project.
2. Use list_tables to see what a dataset contains.
3. Use get_table_schema before writing SQL against a table.
4. Use execute_sql with a single SELECT statement to get the answer.

Only SELECT queries are permitted. Results are capped, so aggregate in SQL
rather than fetching raw rows. When a query fails, read the error, fix the
SQL, and try again. Give the final answer in plain language with the numbers
that support it.`

// DefaultRecursionLimit bounds model steps per query.
const DefaultRecursionLimit = 15

// ErrRecursionLimit is returned when a query exceeds its step budget
// without the model producing a final answer.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// Analyst runs conversational data analysis over BigQuery with every step
// checkpointed, so a conversation survives process restarts and can be
// resumed by thread id.
type Analyst struct {
	llm   LLM
	tools *bq.Tools
	saver *checkpoint.Saver

	systemPrompt   string
	recursionLimit int

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// AnalystOption configures an Analyst.
type AnalystOption func(*Analyst)

// WithSystemPrompt overrides the system prompt.
func WithSystemPrompt(prompt string) AnalystOption {
	return func(a *Analyst) { a.systemPrompt = prompt }
}

// WithRecursionLimit overrides the per-query step budget.
func WithRecursionLimit(n int) AnalystOption {
	return func(a *Analyst) { a.recursionLimit = n }
}

// WithLogger enables structured logging of agent activity.
func WithLogger(l *slog.Logger) AnalystOption {
	return func(a *Analyst) { a.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m observability.MetricsRecorder) AnalystOption {
	return func(a *Analyst) { a.metrics = m }
}

// WithSpans enables tracing.
func WithSpans(s observability.SpanManager) AnalystOption {
	return func(a *Analyst) { a.spans = s }
}

// NewAnalyst creates an Analyst over the given model, tool set, and
// checkpoint saver.
func NewAnalyst(llm LLM, tools *bq.Tools, saver *checkpoint.Saver, opts ...AnalystOption) *Analyst {
	a := &Analyst{
		llm:            llm,
		tools:          tools,
		saver:          saver,
		systemPrompt:   DefaultSystemPrompt,
		recursionLimit: DefaultRecursionLimit,
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// QueryResult is the outcome of one agent query.
type QueryResult struct {
	// Response is the model's final answer.
	Response string `json:"response"`

	// ThreadID identifies the conversation; pass it back to continue.
	ThreadID string `json:"thread_id"`

	// Steps counts model turns taken to produce the answer.
	Steps int `json:"steps"`

	// ToolCalls counts tool invocations across all steps.
	ToolCalls int `json:"tool_calls"`

	// ToolResults counts tool result messages appended to the transcript.
	ToolResults int `json:"tool_results"`
}

// Query runs one user question on the given thread. An existing thread
// resumes from its latest checkpoint with the full transcript; an unknown
// thread starts fresh. Every model turn and every batch of tool results is
// committed before the loop proceeds, so a crash mid-query loses at most
// the step in flight.
func (a *Analyst) Query(ctx context.Context, threadID, input string) (_ *QueryResult, err error) {
	ctx, span := a.spans.StartQuerySpan(ctx, threadID)
	defer func() { a.spans.EndSpanWithError(span, err) }()
	done := observability.TimedOperation()
	logger := observability.EnrichLogger(a.logger, threadID, "")
	observability.LogQueryStart(logger, threadID, len(input))
	defer func() {
		if err != nil {
			observability.LogQueryError(logger, threadID, err, done())
		}
	}()

	msgs, ref, versions, step, err := a.resume(ctx, threadID)
	if err != nil {
		return nil, err
	}

	msgs = append(msgs, Message{Role: RoleUser, Content: input})
	step++
	ref, versions, err = a.commit(ctx, ref, msgs, versions, "input", step)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{ThreadID: threadID}
	for {
		if result.Steps >= a.recursionLimit {
			return nil, fmt.Errorf("%w after %d steps", ErrRecursionLimit, result.Steps)
		}

		stepStart := time.Now()
		reply, err := a.llm.Complete(ctx, a.systemPrompt, msgs, analystTools)
		a.metrics.RecordAgentStep(ctx, time.Since(stepStart), len(reply.ToolCalls), err)
		if err != nil {
			return nil, fmt.Errorf("model step %d: %w", result.Steps+1, err)
		}
		result.Steps++

		msgs = append(msgs, Message{
			Role:      RoleAssistant,
			Content:   reply.Text,
			ToolCalls: reply.ToolCalls,
		})
		step++
		ref, versions, err = a.commit(ctx, ref, msgs, versions, "loop", step)
		if err != nil {
			return nil, err
		}

		if len(reply.ToolCalls) == 0 {
			result.Response = reply.Text
			break
		}

		toolMsgs, err := a.runToolCalls(ctx, ref, reply.ToolCalls)
		if err != nil {
			return nil, err
		}
		result.ToolCalls += len(reply.ToolCalls)
		result.ToolResults += len(toolMsgs)

		msgs = append(msgs, toolMsgs...)
		step++
		ref, versions, err = a.commit(ctx, ref, msgs, versions, "loop", step)
		if err != nil {
			return nil, err
		}
	}

	observability.LogQueryComplete(logger, threadID, done(), result.Steps, result.ToolCalls)
	return result, nil
}

// resume loads the thread's latest transcript, or starts fresh when the
// thread has no checkpoint yet.
func (a *Analyst) resume(ctx context.Context, threadID string) ([]Message, checkpoint.Ref, checkpoint.ChannelVersions, int, error) {
	ref := checkpoint.Ref{ThreadID: threadID}

	tuple, err := a.saver.GetTuple(ctx, ref)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return nil, ref, checkpoint.ChannelVersions{}, 0, nil
	}
	if err != nil {
		return nil, checkpoint.Ref{}, nil, 0, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	msgs, err := messagesFromValue(tuple.Checkpoint.ChannelValues[MessagesChannel])
	if err != nil {
		return nil, checkpoint.Ref{}, nil, 0, err
	}

	step := 0
	if v, ok := tuple.Metadata["step"]; ok {
		switch n := v.(type) {
		case float64:
			step = int(n)
		case int:
			step = n
		}
	}
	return msgs, tuple.Ref, tuple.Checkpoint.ChannelVersions, step, nil
}

// runToolCalls executes one assistant turn's tool calls, persists the
// results as pending writes against the current checkpoint, and returns
// them as transcript messages.
func (a *Analyst) runToolCalls(ctx context.Context, ref checkpoint.Ref, calls []ToolCall) ([]Message, error) {
	taskID := uuid.NewString()
	msgs := make([]Message, 0, len(calls))
	writes := make([]checkpoint.ChannelWrite, 0, len(calls))
	for _, call := range calls {
		content, isError := a.executeTool(ctx, call)
		msg := Message{
			Role:       RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			IsError:    isError,
		}
		msgs = append(msgs, msg)
		writes = append(writes, checkpoint.ChannelWrite{Channel: MessagesChannel, Value: msg})
	}

	if err := a.saver.PutWrites(ctx, ref, taskID, "", writes); err != nil {
		return nil, fmt.Errorf("persist tool results: %w", err)
	}
	return msgs, nil
}

// commit checkpoints the transcript, chaining onto parent. Returns the new
// checkpoint ref and the updated channel versions.
func (a *Analyst) commit(ctx context.Context, parent checkpoint.Ref, msgs []Message, versions checkpoint.ChannelVersions, source string, step int) (checkpoint.Ref, checkpoint.ChannelVersions, error) {
	next, err := checkpoint.NextVersion(versions[MessagesChannel])
	if err != nil {
		return checkpoint.Ref{}, nil, err
	}

	updated := checkpoint.ChannelVersions{MessagesChannel: next}
	for channel, version := range versions {
		if channel != MessagesChannel {
			updated[channel] = version
		}
	}

	cp := &checkpoint.Checkpoint{
		ID:              checkpoint.NewID(),
		Timestamp:       time.Now().UTC(),
		ChannelValues:   map[string]any{MessagesChannel: msgs},
		ChannelVersions: updated,
	}
	md := checkpoint.Metadata{"source": source, "step": step}

	ref, err := a.saver.Put(ctx, parent, cp, md, checkpoint.ChannelVersions{MessagesChannel: next})
	if err != nil {
		return checkpoint.Ref{}, nil, fmt.Errorf("commit checkpoint: %w", err)
	}
	return ref, updated, nil
}

// HistoryEntry is one checkpoint in a thread's history.
type HistoryEntry struct {
	CheckpointID string              `json:"checkpoint_id"`
	Timestamp    time.Time           `json:"timestamp"`
	Source       string              `json:"source,omitempty"`
	Step         int                 `json:"step,omitempty"`
	Messages     []Message           `json:"messages"`
	ParentID     string              `json:"parent_id,omitempty"`
	Metadata     checkpoint.Metadata `json:"metadata,omitempty"`
}

// History returns the thread's checkpoints newest-first, each with the
// transcript it captured. An unknown thread yields an empty history.
func (a *Analyst) History(ctx context.Context, threadID string, limit int) ([]HistoryEntry, error) {
	return ThreadHistory(ctx, a.saver, threadID, limit)
}

// ThreadHistory reads a thread's checkpoint history directly from a saver.
// It is the saver-only form of Analyst.History for tooling that inspects
// threads without wiring up the model.
func ThreadHistory(ctx context.Context, saver *checkpoint.Saver, threadID string, limit int) ([]HistoryEntry, error) {
	tuples, err := saver.List(ctx, checkpoint.ListOptions{
		Ref:   &checkpoint.Ref{ThreadID: threadID},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list thread %s: %w", threadID, err)
	}

	entries := make([]HistoryEntry, 0, len(tuples))
	for _, t := range tuples {
		msgs, err := messagesFromValue(t.Checkpoint.ChannelValues[MessagesChannel])
		if err != nil {
			return nil, err
		}
		entry := HistoryEntry{
			CheckpointID: t.Ref.CheckpointID,
			Timestamp:    t.Checkpoint.Timestamp,
			Messages:     msgs,
			Metadata:     t.Metadata,
		}
		if t.ParentRef != nil {
			entry.ParentID = t.ParentRef.CheckpointID
		}
		if source, ok := t.Metadata["source"].(string); ok {
			entry.Source = source
		}
		switch n := t.Metadata["step"].(type) {
		case float64:
			entry.Step = int(n)
		case int:
			entry.Step = n
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteThread removes every trace of the thread from storage.
func (a *Analyst) DeleteThread(ctx context.Context, threadID string) error {
	return a.saver.DeleteThread(ctx, threadID)
}
