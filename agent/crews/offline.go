package crews

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/lachopopov/multiagent-system-demo/llm"
	"github.com/lachopopov/multiagent-system-demo/llm/tools"
	"github.com/lachopopov/multiagent-system-demo/tools/procurement"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// OfflineProviderName is reported by OfflineProvider.Name.
const OfflineProviderName = "offline"

var (
	candidateList = regexp.MustCompile(`\[([A-Za-z0-9_\-]+(?:, [A-Za-z0-9_\-]+)*)\]`)
	number        = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

var departments = []string{"Engineering", "Marketing", "HR"}

// OfflineProvider 是内置团队的确定性生成器，无需网络与 API Key。
//
// 发言者选择请求按照采购流程顺序路由；参与者请求先发起角色对应的工具调用，
// 拿到工具结果后再据此给出文本回复。
type OfflineProvider struct {
	logger *zap.Logger
	calls  atomic.Int64
}

// NewOfflineProvider creates an offline provider.
func NewOfflineProvider(logger *zap.Logger) *OfflineProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfflineProvider{logger: logger.With(zap.String("component", "offline_provider"))}
}

func (p *OfflineProvider) Name() string { return OfflineProviderName }

func (p *OfflineProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

// Calls returns the number of completions served.
func (p *OfflineProvider) Calls() int64 { return p.calls.Load() }

func (p *OfflineProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "offline: request has no messages", Provider: OfflineProviderName}
	}

	var msg llm.Message
	if req.Metadata[llm.MetadataPurpose] == llm.PurposeSpeakerSelection {
		msg = llm.Message{Role: llm.RoleAssistant, Content: selectSpeaker(req.Messages[0].Content)}
	} else {
		msg = p.reply(req)
	}

	finish := "stop"
	if len(msg.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	n := p.calls.Add(1)
	p.logger.Debug("offline completion",
		zap.String("participant", req.Metadata[llm.MetadataParticipant]),
		zap.Int("tool_calls", len(msg.ToolCalls)),
	)
	return &llm.ChatResponse{
		ID:        fmt.Sprintf("offline-%d", n),
		Provider:  OfflineProviderName,
		Model:     req.Model,
		Choices:   []llm.ChatChoice{{Index: 0, FinishReason: finish, Message: msg}},
		CreatedAt: time.Now(),
	}, nil
}

// --- speaker selection ---

// selectSpeaker reads the rendered selection prompt and follows procurementRoute.
func selectSpeaker(prompt string) string {
	candidates := parseCandidates(prompt)
	known := append(append([]string{types.SenderUser, HumanProxyAgent, CalculatorAgent}, procurementRoute...), candidates...)
	last, content := lastHistoryLine(prompt, known)

	next := nextSpeaker(last, content)
	if len(candidates) > 0 && !slices.Contains(candidates, next) {
		next = candidates[0]
	}
	return next
}

func nextSpeaker(last, content string) string {
	if strings.HasPrefix(strings.TrimSpace(content), EscalationMarker) {
		return HumanProxyAgent
	}
	i := slices.Index(procurementRoute, last)
	switch {
	case i < 0:
		// 新任务或人工答复之后从头开始
		return IntakeAgent
	case i+1 < len(procurementRoute):
		return procurementRoute[i+1]
	default:
		return HumanProxyAgent
	}
}

// parseCandidates returns the last bracketed name list in prompt.
func parseCandidates(prompt string) []string {
	all := candidateList.FindAllStringSubmatch(prompt, -1)
	if len(all) == 0 {
		return nil
	}
	return strings.Split(all[len(all)-1][1], ", ")
}

// lastHistoryLine finds the last "sender: content" line whose sender is known.
// Role lines share the format but precede the history.
func lastHistoryLine(prompt string, known []string) (sender, content string) {
	for _, line := range strings.Split(prompt, "\n") {
		name, rest, ok := strings.Cut(line, ": ")
		if ok && slices.Contains(known, name) {
			sender, content = name, rest
		}
	}
	return sender, content
}

// --- participant turns ---

func (p *OfflineProvider) reply(req *llm.ChatRequest) llm.Message {
	name := req.Metadata[llm.MetadataParticipant]
	results := trailingToolResults(req.Messages)

	if len(results) == 0 && len(req.Tools) > 0 {
		offered := make(map[string]struct{}, len(req.Tools))
		for _, t := range req.Tools {
			offered[t.Name] = struct{}{}
		}
		var calls []llm.ToolCall
		for i, c := range plan(name, req.Messages) {
			if _, ok := offered[string(c.tool)]; !ok {
				continue
			}
			args, _ := json.Marshal(c.args)
			calls = append(calls, llm.ToolCall{
				ID:        fmt.Sprintf("call_%s_%d", c.tool, i+1),
				Name:      string(c.tool),
				Arguments: args,
			})
		}
		if len(calls) > 0 {
			return llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}
		}
	}
	return llm.Message{Role: llm.RoleAssistant, Content: compose(name, req.Messages, results)}
}

type plannedCall struct {
	tool tools.ToolID
	args map[string]any
}

// toolOutputs maps tool name to the raw text returned for it.
type toolOutputs map[string]string

func (o toolOutputs) decode(id tools.ToolID, v any) bool {
	raw, ok := o[string(id)]
	if !ok || strings.HasPrefix(raw, "Error: ") {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}

func trailingToolResults(msgs []llm.Message) toolOutputs {
	out := toolOutputs{}
	for i := len(msgs) - 1; i >= 0 && msgs[i].Role == llm.RoleTool; i-- {
		out[msgs[i].Name] = msgs[i].Content
	}
	return out
}

func plan(name string, msgs []llm.Message) []plannedCall {
	f := gatherFacts(msgs)
	switch name {
	case IntakeAgent:
		return []plannedCall{
			{tools.ExtractProcurementFields, map[string]any{"text": f.text}},
			{tools.ValidateRequiredFields, map[string]any{"fields": f.fields.Map()}},
			{tools.GenerateRequestID, map[string]any{"seed": f.text}},
		}
	case PolicyAgent:
		if f.budget == 0 {
			return nil
		}
		return []plannedCall{
			{tools.CheckPolicy, map[string]any{"estimated_budget": f.budget, "category": procurement.DefaultCategory}},
			{tools.ApprovalMatrix, map[string]any{"amount": f.budget}},
		}
	case FinanceAgent:
		if f.budget == 0 {
			return nil
		}
		calls := []plannedCall{{tools.ForecastSpend, map[string]any{"amount": f.budget}}}
		if f.department != "" {
			calls = append([]plannedCall{{tools.CheckBudget, map[string]any{"department": f.department, "amount": f.budget}}}, calls...)
		}
		return calls
	case VendorRiskAgent:
		if f.vendor == "" {
			return nil
		}
		return []plannedCall{
			{tools.LookupVendor, map[string]any{"vendor_name": f.vendor}},
			{tools.VendorRiskScore, map[string]any{"vendor_name": f.vendor}},
		}
	case CalculatorAgent:
		id, a, b, ok := parseArithmetic(lastUserText(msgs))
		if !ok {
			return nil
		}
		return []plannedCall{{id, map[string]any{"a": a, "b": b}}}
	}
	return nil
}

func compose(name string, msgs []llm.Message, out toolOutputs) string {
	f := gatherFacts(msgs)
	switch name {
	case IntakeAgent:
		return composeIntake(f, out)
	case PolicyAgent:
		var res procurement.PolicyResult
		var authority string
		if !out.decode(tools.CheckPolicy, &res) {
			return "Cannot check policy: the estimated budget is unknown."
		}
		out.decode(tools.ApprovalMatrix, &authority)
		return fmt.Sprintf("Policy check: %s (%s). Approval authority: %s.", res.PolicyStatus, res.Message, orUnknown(authority))
	case FinanceAgent:
		var forecast string
		if !out.decode(tools.ForecastSpend, &forecast) {
			return "Cannot assess spend: the estimated budget is unknown."
		}
		var budget procurement.BudgetResult
		if !out.decode(tools.CheckBudget, &budget) {
			return fmt.Sprintf("Spend risk is %s. Department is unknown, budget availability not checked.", forecast)
		}
		verdict := "sufficient"
		if !budget.Sufficient {
			verdict = "insufficient"
		}
		return fmt.Sprintf("%s has %d INR available against %d INR requested, budget is %s. Spend risk is %s.",
			f.department, budget.AvailableBudget, f.budget, verdict, forecast)
	case VendorRiskAgent:
		var status procurement.VendorStatus
		var risk procurement.VendorRiskResult
		if !out.decode(tools.LookupVendor, &status) || !out.decode(tools.VendorRiskScore, &risk) {
			return "No vendor preference given, vendor checks skipped."
		}
		contract := "no contract in place"
		if risk.ContractInPlace {
			contract = "contract in place"
		}
		return fmt.Sprintf("Vendor %s: registry status %s, risk %s, %s.",
			status.VendorName, strings.ToLower(status.Status), risk.RiskRating, contract)
	case ReviewerAgent:
		return review(f)
	case CalculatorAgent:
		return composeCalculation(msgs, out)
	}
	return fmt.Sprintf("%s has nothing to add.", orUnknown(name))
}

func composeIntake(f facts, out toolOutputs) string {
	var id string
	out.decode(tools.GenerateRequestID, &id)
	id = orUnknown(id)

	var missing []string
	if !out.decode(tools.ValidateRequiredFields, &missing) {
		missing = procurement.ValidateRequired(f.fields.Map())
	}

	// 抽取不到的部门可以从任务文本中的部门名补上，但要在回复里写明
	var unresolved []string
	assumed := ""
	for _, field := range missing {
		if field == "department" && f.department != "" {
			assumed = fmt.Sprintf(" Department was not extracted, assuming %s from the task text.", f.department)
			continue
		}
		unresolved = append(unresolved, field)
	}
	if len(unresolved) > 0 {
		return fmt.Sprintf("%s: request %s is missing required fields: %s. %s, please provide them.",
			EscalationMarker, id, strings.Join(unresolved, ", "), HumanProxyAgent)
	}
	return fmt.Sprintf("Request %s structured: %d x %s, estimated budget %d %s, department %s, timeline %s, vendor preference %s.%s",
		id, deref(f.fields.Quantity), derefStr(f.fields.ItemName), f.budget, derefStr(f.fields.Currency),
		f.department, derefStr(f.fields.Timeline), orUnknown(f.vendor), assumed)
}

// review applies the procurement rules in order: completeness, budget, policy, vendor.
func review(f facts) string {
	if f.budget == 0 || f.department == "" {
		return fmt.Sprintf("%s: the request lacks an estimated budget or department. %s, please supply them.",
			EscalationMarker, HumanProxyAgent)
	}
	budget := procurement.CheckBudget(f.department, f.budget)
	if !budget.Sufficient {
		return fmt.Sprintf("FINAL_DECISION: REJECTED. %s has %d INR available against %d INR requested.",
			f.department, budget.AvailableBudget, f.budget)
	}
	if policy := procurement.CheckPolicy(f.budget, procurement.DefaultCategory); policy.PolicyStatus == procurement.PolicySoftBlock {
		return fmt.Sprintf("%s: %d INR needs %s (%s). Budget and vendor checks passed. %s, please decide.",
			EscalationMarker, f.budget, procurement.ApprovalAuthority(f.budget), policy.Message, HumanProxyAgent)
	}
	if f.vendor != "" && procurement.LookupVendor(f.vendor).Status != procurement.VendorApproved {
		return fmt.Sprintf("%s: vendor %s is not in the vendor registry. %s, please confirm the vendor.",
			EscalationMarker, f.vendor, HumanProxyAgent)
	}
	return fmt.Sprintf("FINAL_DECISION: APPROVED. %d INR for %s is within policy limits and budget, %s.",
		f.budget, f.department, procurement.ApprovalAuthority(f.budget))
}

func composeCalculation(msgs []llm.Message, out toolOutputs) string {
	for name, raw := range out {
		if msg, failed := strings.CutPrefix(raw, "Error: "); failed {
			return fmt.Sprintf("The %s tool failed: %s. TERMINATE", name, msg)
		}
		var v float64
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			return fmt.Sprintf("The result is %s. TERMINATE", strconv.FormatFloat(v, 'f', -1, 64))
		}
	}
	if _, _, _, ok := parseArithmetic(lastUserText(msgs)); ok {
		return "No calculator tool was available for that operation. TERMINATE"
	}
	return "Please ask for the sum, difference, product, quotient or power of two numbers. TERMINATE"
}

// --- request facts ---

type facts struct {
	text       string
	fields     procurement.Fields
	department string
	budget     int64
	vendor     string
}

// gatherFacts reads every message from the driver and the human approver.
func gatherFacts(msgs []llm.Message) facts {
	var parts []string
	for _, m := range msgs {
		if m.Role == llm.RoleUser && (m.Name == types.SenderUser || m.Name == HumanProxyAgent) {
			parts = append(parts, m.Content)
		}
	}
	f := facts{text: strings.Join(parts, "\n")}
	f.fields = procurement.ExtractFields(f.text)
	if f.fields.EstimatedBudget != nil {
		f.budget = *f.fields.EstimatedBudget
	}
	if f.fields.Department != nil {
		f.department = *f.fields.Department
	} else {
		f.department = findDepartment(f.text)
	}
	if f.fields.VendorPreference != nil {
		f.vendor = *f.fields.VendorPreference
	} else if strings.Contains(strings.ToLower(f.text), "dell") {
		f.vendor = "Dell Preferred Partner"
	}
	return f
}

func findDepartment(text string) string {
	for _, word := range strings.Fields(text) {
		word = strings.Trim(word, ".,;:!?()\"'")
		for _, d := range departments {
			if strings.EqualFold(word, d) {
				return d
			}
		}
	}
	return ""
}

func lastUserText(msgs []llm.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// parseArithmetic finds an operation word and the first two numbers in text.
func parseArithmetic(text string) (tools.ToolID, float64, float64, bool) {
	nums := number.FindAllString(text, 2)
	if len(nums) < 2 {
		return "", 0, 0, false
	}
	a, errA := strconv.ParseFloat(nums[0], 64)
	b, errB := strconv.ParseFloat(nums[1], 64)
	if errA != nil || errB != nil {
		return "", 0, 0, false
	}

	lower := strings.ToLower(text)
	keywords := []struct {
		id    tools.ToolID
		words []string
	}{
		{tools.Power, []string{"power", "^", "raised"}},
		{tools.Divide, []string{"divide", "divided", "quotient", "/"}},
		{tools.Multiply, []string{"multiply", "times", "product", "*"}},
		{tools.Subtract, []string{"subtract", "minus", "difference"}},
		{tools.Add, []string{"add", "plus", "sum", "+"}},
	}
	for _, k := range keywords {
		for _, w := range k.words {
			if strings.Contains(lower, w) {
				return k.id, a, b, true
			}
		}
	}
	return "", 0, 0, false
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefStr(v *string) string {
	if v == nil {
		return "unknown"
	}
	return *v
}
