package procurement

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Policy statuses
const (
	PolicySoftBlock = "SOFT_BLOCK"
	PolicyNoIssue   = "NO_ISSUE"
)

// Vendor statuses
const (
	VendorApproved = "APPROVED"
	VendorUnknown  = "UNKNOWN"
)

// Risk levels shared by spend forecasts and vendor ratings.
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// DefaultCategory is the policy category used when none is given.
const DefaultCategory = "IT_EQUIPMENT"

// softBlockThreshold is 50L INR.
const softBlockThreshold = 5_000_000

// RequiredFields lists the fields a request must carry before review.
var RequiredFields = []string{"item_name", "quantity", "estimated_budget", "currency", "department"}

var departmentBudgets = map[string]int64{
	"Engineering": 8_000_000,
	"Marketing":   3_000_000,
	"HR":          2_000_000,
}

var approvedVendors = map[string]struct{}{
	"Apple Authorized Vendor": {},
	"Dell Preferred Partner":  {},
}

// Fields is the structured form of a free-text procurement request.
// Nil pointers mean the field could not be extracted.
type Fields struct {
	ItemName         *string `json:"item_name"`
	Quantity         *int64  `json:"quantity"`
	EstimatedBudget  *int64  `json:"estimated_budget"`
	Currency         *string `json:"currency"`
	Department       *string `json:"department"`
	Timeline         *string `json:"timeline"`
	VendorPreference *string `json:"vendor_preference"`
}

// Map returns the fields keyed by their JSON names, nil for absent values.
func (f Fields) Map() map[string]any {
	m := map[string]any{
		"item_name":         nil,
		"quantity":          nil,
		"estimated_budget":  nil,
		"currency":          nil,
		"department":        nil,
		"timeline":          nil,
		"vendor_preference": nil,
	}
	if f.ItemName != nil {
		m["item_name"] = *f.ItemName
	}
	if f.Quantity != nil {
		m["quantity"] = *f.Quantity
	}
	if f.EstimatedBudget != nil {
		m["estimated_budget"] = *f.EstimatedBudget
	}
	if f.Currency != nil {
		m["currency"] = *f.Currency
	}
	if f.Department != nil {
		m["department"] = *f.Department
	}
	if f.Timeline != nil {
		m["timeline"] = *f.Timeline
	}
	if f.VendorPreference != nil {
		m["vendor_preference"] = *f.VendorPreference
	}
	return m
}

// ExtractFields pulls procurement fields out of free text with fixed keyword rules.
// Matching is case-insensitive.
func ExtractFields(text string) Fields {
	lower := strings.ToLower(text)
	f := Fields{Currency: ptr("INR")}
	if strings.Contains(lower, "macbook") {
		f.ItemName = ptr("MacBook")
	}
	if strings.Contains(lower, "50") {
		f.Quantity = ptr(int64(50))
	}
	if strings.Contains(lower, "75") {
		f.EstimatedBudget = ptr(int64(7_500_000))
	}
	if strings.Contains(lower, "hire") {
		f.Department = ptr("Engineering")
	}
	if strings.Contains(lower, "quarter") {
		f.Timeline = ptr("Next Quarter")
	}
	if strings.Contains(lower, "apple") {
		f.VendorPreference = ptr("Apple Authorized Vendor")
	}
	return f
}

// ValidateRequired returns the required fields that are absent or empty, in RequiredFields order.
// Never nil.
func ValidateRequired(fields map[string]any) []string {
	missing := []string{}
	for _, name := range RequiredFields {
		if !present(fields[name]) {
			missing = append(missing, name)
		}
	}
	return missing
}

// PolicyResult is the outcome of a policy check.
type PolicyResult struct {
	PolicyStatus string `json:"policy_status"`
	Message      string `json:"message"`
}

// CheckPolicy applies the spend limit rule. Category does not change the outcome.
func CheckPolicy(estimatedBudget int64, category string) PolicyResult {
	if estimatedBudget >= softBlockThreshold {
		return PolicyResult{
			PolicyStatus: PolicySoftBlock,
			Message:      "Approval required for purchases above 50L",
		}
	}
	return PolicyResult{
		PolicyStatus: PolicyNoIssue,
		Message:      "Within standard procurement limits",
	}
}

// ApprovalAuthority returns the approver level for amount.
func ApprovalAuthority(amount int64) string {
	switch {
	case amount < 1_000_000:
		return "Manager Approval"
	case amount < softBlockThreshold:
		return "Director Approval"
	default:
		return "VP Approval"
	}
}

// BudgetResult reports department budget availability.
type BudgetResult struct {
	AvailableBudget int64 `json:"available_budget"`
	Sufficient      bool  `json:"sufficient"`
}

// CheckBudget compares amount with the department's mock budget. Unknown departments have none.
func CheckBudget(department string, amount int64) BudgetResult {
	available := departmentBudgets[department]
	return BudgetResult{
		AvailableBudget: available,
		Sufficient:      available >= amount,
	}
}

// ForecastSpend classifies spend risk.
func ForecastSpend(amount int64) string {
	switch {
	case amount > 7_000_000:
		return RiskHigh
	case amount > 3_000_000:
		return RiskMedium
	default:
		return RiskLow
	}
}

// VendorStatus is a vendor registry lookup result.
type VendorStatus struct {
	VendorName string `json:"vendor_name"`
	Status     string `json:"status"`
}

// LookupVendor checks the vendor registry. Names match exactly.
func LookupVendor(vendorName string) VendorStatus {
	status := VendorUnknown
	if _, ok := approvedVendors[vendorName]; ok {
		status = VendorApproved
	}
	return VendorStatus{VendorName: vendorName, Status: status}
}

// VendorRiskResult is a vendor risk rating.
type VendorRiskResult struct {
	VendorName      string `json:"vendor_name"`
	RiskRating      string `json:"risk_rating"`
	ContractInPlace bool   `json:"contract_in_place"`
}

// VendorRisk rates known vendors LOW with a contract in place, everyone else MEDIUM.
func VendorRisk(vendorName string) VendorRiskResult {
	_, known := approvedVendors[vendorName]
	rating := RiskMedium
	if known {
		rating = RiskLow
	}
	return VendorRiskResult{
		VendorName:      vendorName,
		RiskRating:      rating,
		ContractInPlace: known,
	}
}

// RequestID derives a PR-NNNNN identifier from seed. Same seed, same id.
func RequestID(seed string) string {
	sum := blake3.Sum256([]byte(seed))
	n := binary.BigEndian.Uint64(sum[:8])%90000 + 10000
	return fmt.Sprintf("PR-%05d", n)
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case bool:
		return x
	default:
		return true
	}
}

func ptr[T any](v T) *T { return &v }
