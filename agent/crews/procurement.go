package crews

import "github.com/lachopopov/multiagent-system-demo/llm/tools"

// Procurement participant names.
const (
	IntakeAgent     = "intake_agent"
	PolicyAgent     = "policy_agent"
	FinanceAgent    = "finance_agent"
	VendorRiskAgent = "vendor_risk_agent"
	ReviewerAgent   = "reviewer_agent"
	HumanProxyAgent = "human_proxy_agent"
)

// EscalationMarker opens a message that hands the decision to the human approver.
const EscalationMarker = "ESCALATE"

// ProcurementTemplate is the speaker selection prompt of the procurement crew.
const ProcurementTemplate = `You are selecting the next agent in a procurement workflow.

Agents and when to use them:
{roles}

Current conversation:
{history}

Select exactly one agent from {participants} to perform the next step.
{policy}
Reply with only the agent name.
`

// ProcurementPolicy is the routing preference rendered into ProcurementTemplate.
const ProcurementPolicy = `Prefer order: intake (structure request) -> policy/finance/vendor_risk (checks) -> reviewer (synthesize).
Choose human_proxy_agent when the reviewer has escalated or when a final human decision is needed.`

// ProcurementHumanPrompt is shown when the human approver is selected.
const ProcurementHumanPrompt = "Reply APPROVED or REJECTED, give feedback, or 'exit' to stop"

const (
	intakePrompt = `You are the procurement intake agent.
Structure the latest procurement request with extract_procurement_fields, check it with validate_required_fields and assign an id with generate_request_id.
Report the structured fields and the request id. If required fields are missing, start your reply with ESCALATE and ask for them.`

	policyPrompt = `You are the procurement policy agent.
Check the estimated budget with check_policy and look up the approval authority with approval_matrix.
Report the policy status and who must approve. Do not make the final decision.`

	financePrompt = `You are the finance agent.
Check departmental budget availability with check_budget and classify the spend with forecast_spend.
Report whether the budget is sufficient and the spend risk. Do not make the final decision.`

	vendorRiskPrompt = `You are the vendor risk agent.
Look up the preferred vendor with lookup_vendor and rate it with vendor_risk_score.
Report the vendor status and risk rating. Do not make the final decision.`

	reviewerPrompt = `You are the procurement reviewer.
Synthesize the intake, policy, finance and vendor findings.
If the request can proceed without further sign-off, reply "FINAL_DECISION: APPROVED" followed by a short rationale.
If it must be refused, reply "FINAL_DECISION: REJECTED" with the reason.
If a human approver must decide, start your reply with ESCALATE and state what needs approval.`
)

// Procurement returns the six-participant procurement crew.
func Procurement() Definition {
	return Definition{
		Name:        "procurement",
		Description: "Procurement request triage with policy, finance and vendor checks and a human approver.",
		Template:    ProcurementTemplate,
		Policy:      ProcurementPolicy,
		Roles: []Role{
			{
				Name:         IntakeAgent,
				Description:  "Extracts and structures procurement request from user input. Use first for new requests.",
				SystemPrompt: intakePrompt,
				Tools:        []tools.ToolID{tools.ExtractProcurementFields, tools.ValidateRequiredFields, tools.GenerateRequestID},
			},
			{
				Name:         PolicyAgent,
				Description:  "Checks policy compliance and approval rules. Use after intake when request is structured.",
				SystemPrompt: policyPrompt,
				Tools:        []tools.ToolID{tools.CheckPolicy, tools.ApprovalMatrix},
			},
			{
				Name:         FinanceAgent,
				Description:  "Validates budget and spend. Use after intake for financial checks.",
				SystemPrompt: financePrompt,
				Tools:        []tools.ToolID{tools.CheckBudget, tools.ForecastSpend},
			},
			{
				Name:         VendorRiskAgent,
				Description:  "Assesses vendor eligibility and risk. Use when vendor is known.",
				SystemPrompt: vendorRiskPrompt,
				Tools:        []tools.ToolID{tools.LookupVendor, tools.VendorRiskScore},
			},
			{
				Name:         ReviewerAgent,
				Description:  "Synthesizes all findings and decides next action (approve/escalate/reject). Use after other agents.",
				SystemPrompt: reviewerPrompt,
			},
			{
				Name:        HumanProxyAgent,
				Description: "Human approver. Select when the reviewer escalates or when final approval/rejection is needed.",
				Human:       true,
			},
		},
	}
}

// procurementRoute is the preferred speaking order of the automated roles.
var procurementRoute = []string{IntakeAgent, PolicyAgent, FinanceAgent, VendorRiskAgent, ReviewerAgent}
