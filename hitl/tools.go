package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/hitlbridge/types"
)

// 工具名称.
const (
	ToolAskQuestion               = "ask_question"
	ToolRequestApproval           = "request_approval"
	ToolRequestMissingInformation = "request_missing_information"
	ToolClarifyUserIntent         = "clarify_user_intent"
	ToolRequestHumanDecision      = "request_human_decision"
)

// requester 由 WaitCoordinator 实现.
type requester interface {
	RequestAndWait(ctx context.Context, spec RequestSpec) Result
}

// ToolContext 工具绑定的执行上下文，每次调用都带着这些关联 id.
type ToolContext struct {
	ExecutionID string
	TaskID      string
	AgentID     string
	AgentName   string
	TaskName    string
	// Timeout 为 0 时使用工厂的默认超时.
	Timeout time.Duration
}

// ToolParam 工具的一个字符串参数.
type ToolParam struct {
	Name        string
	Description string
	Required    bool
}

// Tool 同步的 字符串入/字符串出 工具。Call 阻塞直到拿到人工回复或超时.
type Tool struct {
	Name        string
	Description string
	Params      []ToolParam
	Call        func(args ...string) string

	invoke func(ctx context.Context, args []string) string
	logger *zap.Logger
}

// CallContext 与 Call 相同，但等待会随 ctx 取消而提前结束.
func (t Tool) CallContext(ctx context.Context, args ...string) string {
	return t.invoke(ctx, args)
}

// Schema 返回用于 LLM function calling 的工具描述.
func (t Tool) Schema() types.ToolSchema {
	schema := types.NewObjectSchema()
	for _, p := range t.Params {
		schema.AddProperty(p.Name, types.NewStringSchema().WithDescription(p.Description))
		if p.Required {
			schema.AddRequired(p.Name)
		}
	}
	params := schemaJSON(t.Name, schema.ToJSON, t.logger)
	return types.ToolSchema{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// emptyObjectSchema 参数 schema 编码失败时的回退值.
var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

func schemaJSON(tool string, encode func() ([]byte, error), logger *zap.Logger) json.RawMessage {
	raw, err := encode()
	if err != nil {
		if logger != nil {
			logger.Error("encode tool parameter schema", zap.String("tool", tool), zap.Error(err))
		}
		return emptyObjectSchema
	}
	return raw
}

// Func 把工具适配为 JSON 调用签名。参数为按参数名组织的 JSON 对象，结果为 JSON 字符串。
// 参数解析失败同样以 [ERROR] 字符串返回，不返回 error.
func (t Tool) Func() types.ToolFunc {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var out string
		var fields map[string]any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &fields); err != nil {
				out = fmt.Sprintf("%s Invalid arguments for %s: %v", ErrorTag, t.Name, err)
				return json.Marshal(out)
			}
		}

		args := make([]string, 0, len(t.Params))
		for _, p := range t.Params {
			v, ok := fields[p.Name]
			if !ok || v == nil {
				if p.Required {
					return json.Marshal(fmt.Sprintf("%s Missing argument %q for %s", ErrorTag, p.Name, t.Name))
				}
				args = append(args, "")
				continue
			}
			if s, isString := v.(string); isString {
				args = append(args, s)
			} else {
				args = append(args, fmt.Sprint(v))
			}
		}
		out = t.invoke(ctx, args)
		return json.Marshal(out)
	}
}

// ToolFactory 构造绑定到某个执行上下文的人工交互工具.
type ToolFactory struct {
	requester  requester
	classifier ApprovalClassifier
	timeout    time.Duration
	logger     *zap.Logger
}

// NewToolFactory 创建工具工厂。classifier 为 nil 时使用 DefaultKeywordClassifier.
func NewToolFactory(r requester, classifier ApprovalClassifier, timeout time.Duration, logger *zap.Logger) *ToolFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = DefaultKeywordClassifier()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ToolFactory{
		requester:  r,
		classifier: classifier,
		timeout:    timeout,
		logger:     logger.With(zap.String("component", "tool_factory")),
	}
}

// BuildTools 返回按名称索引的五个工具.
func (f *ToolFactory) BuildTools(tc ToolContext) map[string]Tool {
	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = f.timeout
	}

	tools := []Tool{
		f.newTool(tc, timeout, ToolAskQuestion,
			"Ask the human operator a question and wait for the answer.",
			[]ToolParam{{Name: "question", Description: "The question to ask", Required: true}},
			func(args []string) (RequestKind, string, map[string]any) {
				return KindQuestion, args[0], nil
			},
			func(_ []string, v string) string { return "Human answered: " + v },
		),
		f.newTool(tc, timeout, ToolRequestApproval,
			"Request human approval for an action before performing it.",
			[]ToolParam{{Name: "description", Description: "What needs approval", Required: true}},
			func(args []string) (RequestKind, string, map[string]any) {
				return KindApproval, args[0], nil
			},
			func(_ []string, v string) string { return fmt.Sprintf("%s: %s", f.classifier.Classify(v), v) },
		),
		f.newTool(tc, timeout, ToolRequestMissingInformation,
			"Ask the human operator for a missing piece of information.",
			[]ToolParam{
				{Name: "info_type", Description: "The kind of information needed", Required: true},
				{Name: "context_info", Description: "Why the information is needed"},
			},
			func(args []string) (RequestKind, string, map[string]any) {
				meta := map[string]any{"info_type": args[0]}
				if args[1] != "" {
					meta["context"] = args[1]
				}
				return KindInformation, "Please provide " + args[0], meta
			},
			func(args []string, v string) string { return fmt.Sprintf("Human provided %s: %s", args[0], v) },
		),
		f.newTool(tc, timeout, ToolClarifyUserIntent,
			"Ask the human operator to clarify an ambiguous request.",
			[]ToolParam{{Name: "ambiguous_request", Description: "The request that needs clarification", Required: true}},
			func(args []string) (RequestKind, string, map[string]any) {
				return KindClarification, "Please clarify what you mean by: " + args[0],
					map[string]any{"original_request": args[0]}
			},
			func(_ []string, v string) string { return "Human clarified: " + v },
		),
		f.newTool(tc, timeout, ToolRequestHumanDecision,
			"Ask the human operator to choose between options.",
			[]ToolParam{{Name: "options", Description: "The options to choose from", Required: true}},
			func(args []string) (RequestKind, string, map[string]any) {
				return KindDecision, "Please choose one of the following options:\n" + args[0],
					map[string]any{"options": args[0]}
			},
			func(_ []string, v string) string { return "Human decided: " + v },
		),
	}

	out := make(map[string]Tool, len(tools))
	for _, t := range tools {
		out[t.Name] = t
	}
	return out
}

type (
	buildSpec    func(args []string) (RequestKind, string, map[string]any)
	formatAnswer func(args []string, value string) string
)

func (f *ToolFactory) newTool(tc ToolContext, timeout time.Duration, name, desc string, params []ToolParam, build buildSpec, format formatAnswer) Tool {
	minArgs := 0
	for _, p := range params {
		if p.Required {
			minArgs++
		}
	}

	invoke := func(ctx context.Context, args []string) string {
		if len(args) < minArgs || len(args) > len(params) {
			f.logger.Error("tool called with wrong number of arguments",
				zap.String("tool", name),
				zap.Int("got", len(args)),
				zap.Int("want", len(params)),
			)
			return fmt.Sprintf("%s Tool %s expects %d argument(s), got %d", ErrorTag, name, len(params), len(args))
		}
		padded := make([]string, len(params))
		copy(padded, args)

		kind, prompt, extra := build(padded)
		res := f.requester.RequestAndWait(ctx, RequestSpec{
			Kind:        kind,
			ExecutionID: tc.ExecutionID,
			TaskID:      tc.TaskID,
			AgentID:     tc.AgentID,
			AgentName:   tc.AgentName,
			TaskName:    tc.TaskName,
			Prompt:      prompt,
			Context:     extra,
			Timeout:     timeout,
		})
		if !res.Responded() {
			return res.String()
		}
		return format(padded, res.Value)
	}

	return Tool{
		Name:        name,
		Description: desc,
		Params:      params,
		Call: func(args ...string) string {
			return invoke(context.Background(), args)
		},
		invoke: invoke,
		logger: f.logger,
	}
}
