package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/oppsbot/internal/core"
)

const createOpportunitySchema = `
{
  "type": "object",
  "properties": {
    "customer_name": { "type": "string", "description": "Customer the opportunity belongs to" },
    "opp_name": { "type": "string", "description": "Short descriptive name of the opportunity" },
    "opp_id": { "type": "string", "description": "Opportunity id; leave empty to auto-assign" },
    "deal_size": { "type": "number", "description": "Deal size in dollars" },
    "deadline": { "type": "string", "description": "Proposal deadline, YYYY-MM-DD" },
    "stage": { "type": "string", "description": "Sales stage, e.g. qualification, proposal, negotiation" },
    "status": { "type": "string", "description": "open, won or lost; defaults to open" },
    "am_name": { "type": "string", "description": "Account manager name" },
    "details": { "type": "string", "description": "Free-text notes" }
  },
  "required": ["customer_name", "opp_name"]
}
`

const updateOpportunitySchema = `
{
  "type": "object",
  "properties": {
    "opp_id": { "type": "string", "description": "Id of the opportunity to update" },
    "opp_name": { "type": "string", "description": "Name of the opportunity to update, used when opp_id is not given" },
    "new_opp_id": { "type": "string", "description": "Rename the opportunity to this id" },
    "new_opp_name": { "type": "string", "description": "Rename the opportunity to this name" },
    "customer_name": { "type": "string" },
    "deal_size": { "type": "number" },
    "deadline": { "type": "string", "description": "YYYY-MM-DD" },
    "stage": { "type": "string" },
    "status": { "type": "string" },
    "am_name": { "type": "string" },
    "last_action_date": { "type": "string", "description": "YYYY-MM-DD" },
    "details": { "type": "string", "description": "Note to append to the existing details" }
  },
  "required": []
}
`

const queryOpportunitiesSchema = `
{
  "type": "object",
  "properties": {
    "sql": { "type": "string", "description": "Read-only SQL over the single table 'opportunities', e.g. SELECT * FROM opportunities WHERE status = 'open' ORDER BY deadline LIMIT 10" }
  },
  "required": []
}
`

// DefaultQuery is what query_opportunities runs when the model supplies
// no sql argument.
const DefaultQuery = "SELECT * FROM opportunities LIMIT 4"

// Opportunities exposes the opportunity store to the model.
type Opportunities struct {
	store core.OpportunityStore
}

func NewOpportunities(store core.OpportunityStore) *Opportunities {
	return &Opportunities{store: store}
}

func (o *Opportunities) Create(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		CustomerName string  `json:"customer_name"`
		OppName      string  `json:"opp_name"`
		OppID        string  `json:"opp_id"`
		DealSize     float64 `json:"deal_size"`
		Deadline     string  `json:"deadline"`
		Stage        string  `json:"stage"`
		Status       string  `json:"status"`
		AMName       string  `json:"am_name"`
		Details      string  `json:"details"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if input.CustomerName == "" || input.OppName == "" {
		return "", fmt.Errorf("customer_name and opp_name are required")
	}

	id, err := o.store.Create(core.Opportunity{
		CustomerName: input.CustomerName,
		OppID:        input.OppID,
		OppName:      input.OppName,
		DealSize:     input.DealSize,
		Deadline:     input.Deadline,
		Stage:        input.Stage,
		Status:       input.Status,
		AMName:       input.AMName,
		Details:      input.Details,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Opportunity %s added for %s.", id, input.CustomerName), nil
}

func (o *Opportunities) Update(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		OppID          string   `json:"opp_id"`
		OppName        string   `json:"opp_name"`
		NewOppID       string   `json:"new_opp_id"`
		NewOppName     string   `json:"new_opp_name"`
		CustomerName   string   `json:"customer_name"`
		DealSize       *float64 `json:"deal_size"`
		Deadline       string   `json:"deadline"`
		Stage          string   `json:"stage"`
		Status         string   `json:"status"`
		AMName         string   `json:"am_name"`
		LastActionDate string   `json:"last_action_date"`
		Details        string   `json:"details"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if input.OppID == "" && input.OppName == "" {
		return "", fmt.Errorf("either opp_id or opp_name is required")
	}

	id, err := o.store.Update(input.OppID, input.OppName, core.OpportunityUpdate{
		NewOppID:       input.NewOppID,
		NewOppName:     input.NewOppName,
		CustomerName:   input.CustomerName,
		DealSize:       input.DealSize,
		Deadline:       input.Deadline,
		Stage:          input.Stage,
		Status:         input.Status,
		AMName:         input.AMName,
		LastActionDate: input.LastActionDate,
		Details:        input.Details,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Opportunity %s updated.", id), nil
}

func (o *Opportunities) Query(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	expr := strings.TrimSpace(input.SQL)
	if expr == "" {
		expr = DefaultQuery
	}

	rows, err := o.store.Query(expr)
	if err != nil {
		return "", err
	}
	return renderRows(rows), nil
}

// renderRows formats result rows as "column: value" lines with a blank
// line between rows, which small models read back reliably.
func renderRows(rows []core.QueryRow) string {
	if len(rows) == 0 {
		return "No opportunities match the query."
	}

	var sb strings.Builder
	for i, row := range rows {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		for j, col := range row.Columns {
			if j > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(col)
			sb.WriteString(": ")
			sb.WriteString(row.Values[j])
		}
	}
	return sb.String()
}

func (o *Opportunities) GetDefinitions() map[string]Definition {
	return map[string]Definition{
		core.ToolCreateOpportunity: {
			Description: "Add a new sales opportunity to the tracker",
			Schema:      createOpportunitySchema,
			Handler:     o.Create,
		},
		core.ToolUpdateOpportunity: {
			Description: "Update fields of an existing opportunity; details are appended, not replaced",
			Schema:      updateOpportunitySchema,
			Handler:     o.Update,
		},
		core.ToolQueryOpportunities: {
			Description: "Run a read-only SQL query against the opportunities table",
			Schema:      queryOpportunitiesSchema,
			Handler:     o.Query,
		},
	}
}
