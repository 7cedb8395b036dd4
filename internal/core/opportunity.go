package core

// Opportunity is one tracked sales lead. Dates are plain YYYY-MM-DD
// strings so they compare lexicographically in query predicates, which
// is also how the model is prompted to write them.
type Opportunity struct {
	No             int     `json:"no"`
	CreatedAt      string  `json:"created_at"`
	CustomerName   string  `json:"customer_name"`
	OppID          string  `json:"opp_id"`
	OppName        string  `json:"opp_name"`
	DealSize       float64 `json:"deal_size"`
	Deadline       string  `json:"deadline"`
	Stage          string  `json:"stage"`
	Status         string  `json:"status"`
	AMName         string  `json:"am_name"`
	LastActionDate string  `json:"last_action_date"`
	Details        string  `json:"details"`
}

// OpportunityColumns is the canonical column order, used by the CSV
// layout, the query evaluator and the schema advertised to the model.
var OpportunityColumns = []string{
	"no",
	"created_at",
	"customer_name",
	"opp_id",
	"opp_name",
	"deal_size",
	"deadline",
	"stage",
	"status",
	"am_name",
	"last_action_date",
	"details",
}

// OpportunityUpdate carries the fields of an update request. Zero
// values mean "leave unchanged" (string fields) so a request never
// clobbers fields it did not name; DealSize is a pointer for the same
// reason. Details has append semantics, applied by the store.
type OpportunityUpdate struct {
	NewOppID       string
	NewOppName     string
	CustomerName   string
	DealSize       *float64
	Deadline       string
	Stage          string
	Status         string
	AMName         string
	LastActionDate string
	Details        string
}

// Empty reports whether the update names no fields at all.
func (u OpportunityUpdate) Empty() bool {
	return u.NewOppID == "" && u.NewOppName == "" && u.CustomerName == "" && u.DealSize == nil &&
		u.Deadline == "" && u.Stage == "" && u.Status == "" &&
		u.AMName == "" && u.LastActionDate == "" && u.Details == ""
}
