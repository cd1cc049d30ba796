package tools

// ToolID identifies one member of the closed tool set.
// Registries reject any ID not listed here.
type ToolID string

// Procurement tools
const (
	ExtractProcurementFields ToolID = "extract_procurement_fields"
	ValidateRequiredFields   ToolID = "validate_required_fields"
	CheckPolicy              ToolID = "check_policy"
	ApprovalMatrix           ToolID = "approval_matrix"
	CheckBudget              ToolID = "check_budget"
	ForecastSpend            ToolID = "forecast_spend"
	LookupVendor             ToolID = "lookup_vendor"
	VendorRiskScore          ToolID = "vendor_risk_score"
	GenerateRequestID        ToolID = "generate_request_id"
)

// Calculator tools
const (
	Add      ToolID = "add"
	Subtract ToolID = "subtract"
	Multiply ToolID = "multiply"
	Divide   ToolID = "divide"
	Power    ToolID = "power"
)

var catalog = map[ToolID]struct{}{
	ExtractProcurementFields: {},
	ValidateRequiredFields:   {},
	CheckPolicy:              {},
	ApprovalMatrix:           {},
	CheckBudget:              {},
	ForecastSpend:            {},
	LookupVendor:             {},
	VendorRiskScore:          {},
	GenerateRequestID:        {},
	Add:                      {},
	Subtract:                 {},
	Multiply:                 {},
	Divide:                   {},
	Power:                    {},
}

// Valid reports whether id belongs to the closed tool set.
func (id ToolID) Valid() bool {
	_, ok := catalog[id]
	return ok
}

func (id ToolID) String() string { return string(id) }

// ToolSet is the subset of tools a participant may invoke.
type ToolSet map[ToolID]struct{}

// NewToolSet builds a ToolSet from ids.
func NewToolSet(ids ...ToolID) ToolSet {
	s := make(ToolSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set.
func (s ToolSet) Contains(id ToolID) bool {
	_, ok := s[id]
	return ok
}
