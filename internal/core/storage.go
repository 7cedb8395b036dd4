package core

import "context"

// TranscriptRepository persists session turns. Rows are keyed by a
// session id minted per connection, so no session ever reads another
// session's turns.
type TranscriptRepository interface {
	AddMessage(ctx context.Context, sessionID string, msg Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
}

// QueryRow is one result row of a read-only opportunity query,
// projected to the requested columns.
type QueryRow struct {
	Columns []string
	Values  []string
}

// OpportunityStore is the in-memory opportunity table with flat-file
// persistence behind it.
type OpportunityStore interface {
	Create(opp Opportunity) (string, error)
	Update(oppID, oppName string, update OpportunityUpdate) (string, error)
	Query(expr string) ([]QueryRow, error)
}
