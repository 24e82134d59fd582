package router

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sortwatch/sortwatch/internal/ai"
	"github.com/sortwatch/sortwatch/internal/events"
	"github.com/sortwatch/sortwatch/internal/fswatch"
	"github.com/sortwatch/sortwatch/internal/pending"
	"github.com/sortwatch/sortwatch/internal/types"
)

// maxToolRounds bounds one execution; a run that has not produced an answer
// by then fails rather than looping.
const maxToolRounds = 10

// Executor runs a routed request through the fixed tool surface.
type Executor struct {
	router *Router
	queue  *pending.Queue
	bus    *events.Bus
	log    *zap.Logger
}

// NewExecutor builds an executor. queue receives destructive file operations
// instead of the executor performing them directly.
func NewExecutor(router *Router, queue *pending.Queue, bus *events.Bus, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{router: router, queue: queue, bus: bus, log: log}
}

// Result is the outcome of one executed request.
type Result struct {
	Answer         string
	Tier           string
	Escalated      bool
	Rounds         int
	Classification types.TaskClassification
}

const executorSystemPrompt = `You are a file assistant with tools. Each turn respond with ONLY one JSON object, either:
{"tool": "<name>", "args": {...}}  to call a tool, or
{"done": true, "answer": "<final answer for the user>"}  to finish.

Tools:
- list_files  args: {"dir": string, "depth": int}  -> file paths under dir
- file_info   args: {"path": string}               -> name, size, modified time
- move_file   args: {"source": string, "dest_dir": string, "new_name": string} -> moves immediately, collision-safe
- delete_file args: {"path": string, "reason": string} -> queues a reversible deletion for user approval; nothing is removed yet
- append_report args: {"path": string, "line": string} -> appends one line to a report file

Never invent tool names. Deletions are queued, not performed.`

// Execute routes the request, then runs the tool loop on the selected tier.
// On a model failure it escalates to the maximum tier once and retries the
// remaining rounds there.
func (e *Executor) Execute(ctx context.Context, request string) (*Result, error) {
	c := e.router.Route(ctx, request)
	res, err := e.run(ctx, request, c.Tier)
	if err != nil {
		next := escalate(c.Tier)
		if next == "" {
			return nil, err
		}
		e.router.Metrics().RecordEscalation()
		e.log.Info("escalating request", zap.String("from", c.Tier), zap.String("to", next), zap.Error(err))
		res, err = e.run(ctx, request, next)
		if err != nil {
			return nil, err
		}
		res.Escalated = true
	}
	res.Classification = c
	return res, nil
}

func (e *Executor) run(ctx context.Context, request, tier string) (*Result, error) {
	model := e.router.models.ForTier(tier)
	transcript := []string{"User request: " + request}

	for round := 1; round <= maxToolRounds; round++ {
		raw, err := e.router.client.CompleteJSON(ctx, model, executorSystemPrompt, strings.Join(transcript, "\n\n"))
		if err != nil {
			e.router.Metrics().RecordFailure()
			return nil, fmt.Errorf("model call on %s tier: %w", tier, err)
		}
		if e.bus != nil {
			e.bus.Publish(events.Event{Kind: events.StreamChunk, Source: "executor", Payload: raw})
		}

		step, err := parseStep(raw)
		if err != nil {
			return nil, fmt.Errorf("unparseable step on %s tier: %w", tier, err)
		}

		if step.Done {
			return &Result{Answer: step.Answer, Tier: tier, Rounds: round}, nil
		}

		if e.bus != nil {
			e.bus.Publish(events.Event{Kind: events.ToolStarted, Source: "executor", Payload: step.Tool})
		}
		output := e.callTool(step.Tool, step.Args)
		if e.bus != nil {
			e.bus.Publish(events.Event{Kind: events.ToolFinished, Source: "executor", Payload: step.Tool})
		}

		transcript = append(transcript,
			fmt.Sprintf("Tool call: %s %s", step.Tool, step.Args),
			"Tool result: "+output)
	}

	return nil, fmt.Errorf("no answer after %d tool rounds on %s tier", maxToolRounds, tier)
}

type step struct {
	Tool   string          `json:"tool"`
	Args   json.RawMessage `json:"args"`
	Done   bool            `json:"done"`
	Answer string          `json:"answer"`
}

func parseStep(raw string) (*step, error) {
	body, err := ai.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var s step
	if err := json.Unmarshal([]byte(body), &s); err != nil {
		return nil, fmt.Errorf("decode step: %w", err)
	}
	if !s.Done && s.Tool == "" {
		return nil, fmt.Errorf("step has neither tool nor done")
	}
	return &s, nil
}

// callTool dispatches one tool call. Bad tool names and bad arguments come
// back as result text the model can react to; they never abort the run.
func (e *Executor) callTool(name string, args json.RawMessage) string {
	switch name {
	case "list_files":
		var a struct {
			Dir   string `json:"dir"`
			Depth int    `json:"depth"`
		}
		if err := decodeArgs(args, &a, "dir"); err != nil {
			return "error: " + err.Error()
		}
		files := fswatch.ScanDir(a.Dir, a.Depth)
		if len(files) == 0 {
			return "no files found"
		}
		return strings.Join(files, "\n")

	case "file_info":
		var a struct {
			Path string `json:"path"`
		}
		if err := decodeArgs(args, &a, "path"); err != nil {
			return "error: " + err.Error()
		}
		info, err := os.Stat(a.Path)
		if err != nil {
			return "error: " + err.Error()
		}
		return fmt.Sprintf("name=%s size=%d modified=%s dir=%t",
			info.Name(), info.Size(), info.ModTime().UTC().Format("2006-01-02T15:04:05Z"), info.IsDir())

	case "move_file":
		var a struct {
			Source  string `json:"source"`
			DestDir string `json:"dest_dir"`
			NewName string `json:"new_name"`
		}
		if err := decodeArgs(args, &a, "source", "dest_dir"); err != nil {
			return "error: " + err.Error()
		}
		name := a.NewName
		if name == "" {
			name = filepath.Base(a.Source)
		}
		if err := os.MkdirAll(a.DestDir, 0o755); err != nil {
			return "error: " + err.Error()
		}
		dest := fswatch.ResolveCollision(a.DestDir, name)
		if err := os.Rename(a.Source, dest); err != nil {
			return "error: " + err.Error()
		}
		return "moved to " + dest

	case "delete_file":
		var a struct {
			Path   string `json:"path"`
			Reason string `json:"reason"`
		}
		if err := decodeArgs(args, &a, "path"); err != nil {
			return "error: " + err.Error()
		}
		if e.queue == nil {
			return "error: no pending queue available"
		}
		action, err := e.queue.QueueDeletion(a.Path, a.Reason)
		if err != nil {
			return "error: " + err.Error()
		}
		return fmt.Sprintf("queued deletion %s (awaiting user approval)", action.ID)

	case "append_report":
		var a struct {
			Path string `json:"path"`
			Line string `json:"line"`
		}
		if err := decodeArgs(args, &a, "path", "line"); err != nil {
			return "error: " + err.Error()
		}
		f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return "error: " + err.Error()
		}
		defer f.Close()
		if _, err := f.WriteString(a.Line + "\n"); err != nil {
			return "error: " + err.Error()
		}
		return "appended"

	default:
		return fmt.Sprintf("error: unknown tool %q; available: list_files, file_info, move_file, delete_file, append_report", name)
	}
}

// decodeArgs unmarshals tool arguments and checks required string fields by
// re-decoding into a map. Missing fields are a tool error, not a crash.
func decodeArgs(raw json.RawMessage, dst any, required ...string) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing args")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("bad args: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("bad args: %v", err)
	}
	for _, field := range required {
		v, ok := m[field]
		if !ok {
			return fmt.Errorf("missing required arg %q", field)
		}
		if s, isStr := v.(string); isStr && s == "" {
			return fmt.Errorf("empty required arg %q", field)
		}
	}
	return nil
}
