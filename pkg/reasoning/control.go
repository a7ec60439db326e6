package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/flowforge/agentcore/pkg/llms"
)

// finishedArgs is the reserved finished pseudo-tool's argument shape.
type finishedArgs struct {
	FinalAnswer string `json:"final_answer" mapstructure:"final_answer" jsonschema:"required,description=The complete answer to give the user."`
}

// requestInputArgs is agent_decide_next's optional nested request.
type requestInputArgs struct {
	Question string `json:"question" mapstructure:"question" jsonschema:"required,description=The question to ask the user before continuing."`
}

type decideNextArgs struct {
	Finish          bool              `json:"finish,omitempty" mapstructure:"finish" jsonschema:"description=True if the turn is complete and final_answer should be returned."`
	FinalAnswer     string            `json:"final_answer,omitempty" mapstructure:"final_answer" jsonschema:"description=Set together with finish=true."`
	RequestInput    *requestInputArgs `json:"request_input,omitempty" mapstructure:"request_input" jsonschema:"description=Set to pause and ask the user a clarifying question."`
	NextPlan        string            `json:"next_plan,omitempty" mapstructure:"next_plan" jsonschema:"description=A short plan for the next tool call, for the transcript."`
	ToolsToConsider []string          `json:"tools_to_consider,omitempty" mapstructure:"tools_to_consider" jsonschema:"description=Tool names worth trying next."`
}

type observeDecideArgs struct {
	ShouldContinue bool   `json:"should_continue" mapstructure:"should_continue" jsonschema:"required,description=False if the last tool result is enough to answer the user."`
	FinalAnswer    string `json:"final_answer,omitempty" mapstructure:"final_answer" jsonschema:"description=Set together with should_continue=false."`
	Observation    string `json:"observation" mapstructure:"observation" jsonschema:"required,description=What the last tool result showed."`
}

type thinkArgs struct {
	Finish         bool   `json:"finish,omitempty" mapstructure:"finish" jsonschema:"description=True if the turn is complete and final_answer should be returned."`
	FinalAnswer    string `json:"final_answer,omitempty" mapstructure:"final_answer" jsonschema:"description=Set together with finish=true."`
	NextActionHint string `json:"next_action_hint,omitempty" mapstructure:"next_action_hint" jsonschema:"description=A short note on what to try next, for the transcript."`
}

// finishedTool is act's reserved pseudo-tool: the model calls it instead
// of a real tool to signal the turn is complete.
var finishedTool = llms.ToolDefinition{
	Name:        "finished",
	Description: "Call this when you have a final answer for the user instead of calling another tool.",
	Parameters:  toolSchema[finishedArgs](),
}

// decideNextTool is react's single Reason-phase control tool.
var decideNextTool = llms.ToolDefinition{
	Name:        "agent_decide_next",
	Description: "Decide whether to finish, ask the user a question, or continue acting.",
	Parameters:  toolSchema[decideNextArgs](),
}

// observeDecideTool is react's Observe-phase control tool.
var observeDecideTool = llms.ToolDefinition{
	Name:        "agent_observe_decide",
	Description: "Decide whether the last tool result is enough to answer, or whether to keep going.",
	Parameters:  toolSchema[observeDecideArgs](),
}

// thinkTool is think-act's single control tool.
var thinkTool = llms.ToolDefinition{
	Name:        "agent_think",
	Description: "Decide whether to finish or what to do next.",
	Parameters:  toolSchema[thinkArgs](),
}

// controlChoice calls the LLM restricted to a single control tool and
// decodes its arguments into dst. If the provider returned no tool call
// (a plain-text response instead), the last JSON object in the text is
// parsed as a fallback, per spec §4.F "react" note.
func controlChoice(ctx context.Context, caller llms.LLMCaller, model string, messages []llms.Message, tool llms.ToolDefinition, dst interface{}) (string, error) {
	resp, err := caller.CallWithTools(ctx, model, messages, []llms.ToolDefinition{tool}, llms.ToolChoiceRequired)
	if err != nil {
		return "", err
	}

	if resp.RequestedToolCalls() {
		return "", mapstructure.Decode(resp.ToolCalls[0].Arguments, dst)
	}

	obj, ok := lastJSONObject(resp.Content)
	if !ok {
		return resp.Content, fmt.Errorf("control call %q returned neither a tool call nor a parseable JSON object", tool.Name)
	}
	return resp.Content, mapstructure.Decode(obj, dst)
}

// lastJSONObject finds the last top-level `{...}` substring in text and
// parses it as a JSON object.
func lastJSONObject(text string) (map[string]interface{}, bool) {
	end := strings.LastIndexByte(text, '}')
	if end < 0 {
		return nil, false
	}
	depth := 0
	for i := end; i >= 0; i-- {
		switch text[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				var obj map[string]interface{}
				if err := json.Unmarshal([]byte(text[i:end+1]), &obj); err != nil {
					return nil, false
				}
				return obj, true
			}
		}
	}
	return nil, false
}

// toolChoiceRequired probes the caller's capability and falls back to
// auto when it doesn't support a forced tool choice (spec §4.F "act":
// "falling back to auto if the provider rejects required").
func toolChoiceRequired(caller llms.LLMCaller) llms.ToolChoice {
	if supports, ok := caller.(llms.SupportsRequiredToolChoice); ok && supports.SupportsRequiredToolChoice() {
		return llms.ToolChoiceRequired
	}
	return llms.ToolChoiceAuto
}
