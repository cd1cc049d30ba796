package procurement

import (
	"context"

	"github.com/lachopopov/multiagent-system-demo/llm/tools"
)

type textArgs struct {
	Text string `json:"text"`
}

type fieldsArgs struct {
	Fields map[string]any `json:"fields"`
}

type policyArgs struct {
	EstimatedBudget int64  `json:"estimated_budget"`
	Category        string `json:"category"`
}

type amountArgs struct {
	Amount int64 `json:"amount"`
}

type budgetArgs struct {
	Department string `json:"department"`
	Amount     int64  `json:"amount"`
}

type vendorArgs struct {
	VendorName string `json:"vendor_name"`
}

type seedArgs struct {
	Seed string `json:"seed"`
}

func object(required []string, props map[string]any) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "minimum": 0, "description": desc}
}

// Definitions returns every procurement tool ready for registration.
func Definitions() []tools.Definition {
	return []tools.Definition{
		{
			ID:          tools.ExtractProcurementFields,
			Description: "Extract structured procurement fields from free text.",
			Parameters:  object([]string{"text"}, map[string]any{"text": str("raw request text")}),
			Handler: tools.Typed(func(ctx context.Context, a textArgs) (Fields, error) {
				return ExtractFields(a.Text), nil
			}),
		},
		{
			ID:          tools.ValidateRequiredFields,
			Description: "Identify missing required procurement fields.",
			Parameters: object([]string{"fields"}, map[string]any{
				"fields": map[string]any{"type": "object", "description": "fields returned by extract_procurement_fields"},
			}),
			Handler: tools.Typed(func(ctx context.Context, a fieldsArgs) ([]string, error) {
				return ValidateRequired(a.Fields), nil
			}),
		},
		{
			ID:          tools.CheckPolicy,
			Description: "Validate a procurement amount against policy rules.",
			Parameters: object([]string{"estimated_budget"}, map[string]any{
				"estimated_budget": integer("amount in INR"),
				"category":         str("policy category, default IT_EQUIPMENT"),
			}),
			Handler: tools.Typed(func(ctx context.Context, a policyArgs) (PolicyResult, error) {
				if a.Category == "" {
					a.Category = DefaultCategory
				}
				return CheckPolicy(a.EstimatedBudget, a.Category), nil
			}),
		},
		{
			ID:          tools.ApprovalMatrix,
			Description: "Determine the approval authority for an amount.",
			Parameters:  object([]string{"amount"}, map[string]any{"amount": integer("amount in INR")}),
			Handler: tools.Typed(func(ctx context.Context, a amountArgs) (string, error) {
				return ApprovalAuthority(a.Amount), nil
			}),
		},
		{
			ID:          tools.CheckBudget,
			Description: "Check departmental budget availability.",
			Parameters: object([]string{"department", "amount"}, map[string]any{
				"department": str("department name"),
				"amount":     integer("amount in INR"),
			}),
			Handler: tools.Typed(func(ctx context.Context, a budgetArgs) (BudgetResult, error) {
				return CheckBudget(a.Department, a.Amount), nil
			}),
		},
		{
			ID:          tools.ForecastSpend,
			Description: "Classify the spend risk of an amount.",
			Parameters:  object([]string{"amount"}, map[string]any{"amount": integer("amount in INR")}),
			Handler: tools.Typed(func(ctx context.Context, a amountArgs) (string, error) {
				return ForecastSpend(a.Amount), nil
			}),
		},
		{
			ID:          tools.LookupVendor,
			Description: "Look up vendor status in the vendor registry.",
			Parameters:  object([]string{"vendor_name"}, map[string]any{"vendor_name": str("vendor name")}),
			Handler: tools.Typed(func(ctx context.Context, a vendorArgs) (VendorStatus, error) {
				return LookupVendor(a.VendorName), nil
			}),
		},
		{
			ID:          tools.VendorRiskScore,
			Description: "Return the vendor risk rating.",
			Parameters:  object([]string{"vendor_name"}, map[string]any{"vendor_name": str("vendor name")}),
			Handler: tools.Typed(func(ctx context.Context, a vendorArgs) (VendorRiskResult, error) {
				return VendorRisk(a.VendorName), nil
			}),
		},
		{
			ID:          tools.GenerateRequestID,
			Description: "Generate a procurement request identifier.",
			Parameters:  object([]string{"seed"}, map[string]any{"seed": str("stable text identifying the request")}),
			Handler: tools.Typed(func(ctx context.Context, a seedArgs) (string, error) {
				return RequestID(a.Seed), nil
			}),
		},
	}
}

// Register adds every procurement tool to r.
func Register(r *tools.Registry) error {
	for _, d := range Definitions() {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}
