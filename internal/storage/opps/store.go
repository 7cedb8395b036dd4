package opps

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/oppsbot/internal/core"
)

// Store keeps the opportunity table in memory and flushes it back to a
// CSV file after every mutation. The flush is atomic (temp file then
// rename) so a crash mid-write never leaves a half-written table.
type Store struct {
	mu   sync.Mutex
	path string
	rows []core.Opportunity
	now  func() time.Time
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path, now: time.Now}
	if err := s.load(); err != nil {
		// A broken backing file should not take the assistant down:
		// start with an empty table and surface the error to the caller.
		s.rows = nil
		return s, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: open %s: %v", core.ErrStorageUnavailable, s.path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", core.ErrStorageUnavailable, s.path, err)
	}
	if len(records) == 0 {
		return nil
	}

	header := records[0]
	if len(header) != len(core.OpportunityColumns) {
		return fmt.Errorf("%w: %s has %d columns, want %d", core.ErrStorageUnavailable, s.path, len(header), len(core.OpportunityColumns))
	}
	for i, col := range core.OpportunityColumns {
		if !strings.EqualFold(header[i], col) {
			return fmt.Errorf("%w: %s column %d is %q, want %q", core.ErrStorageUnavailable, s.path, i, header[i], col)
		}
	}

	rows := make([]core.Opportunity, 0, len(records)-1)
	for _, rec := range records[1:] {
		opp, err := oppFromRecord(rec)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", core.ErrStorageUnavailable, s.path, err)
		}
		rows = append(rows, opp)
	}
	s.rows = rows
	return nil
}

// save is called with s.mu held.
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".opportunities-*.csv")
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(core.OpportunityColumns)
	for _, opp := range s.rows {
		if writeErr != nil {
			break
		}
		writeErr = w.Write(oppToRecord(opp))
	}
	w.Flush()
	if writeErr == nil {
		writeErr = w.Error()
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", core.ErrStorageUnavailable, s.path, writeErr)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", core.ErrStorageUnavailable, s.path, err)
	}
	return nil
}

// Create appends a new opportunity and returns its id. When the caller
// supplied no id, one is assigned from the running number.
func (s *Store) Create(opp core.Opportunity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nextNo := 1
	for _, r := range s.rows {
		if r.No >= nextNo {
			nextNo = r.No + 1
		}
	}

	if opp.OppID != "" {
		if s.findByID(opp.OppID) >= 0 {
			return "", fmt.Errorf("%w: %s", core.ErrDuplicateID, opp.OppID)
		}
	} else {
		// A caller-supplied id may already occupy the next number, so
		// walk forward until the assigned id is free.
		for n := nextNo; ; n++ {
			id := fmt.Sprintf("OPP-%04d", n)
			if s.findByID(id) < 0 {
				opp.OppID = id
				break
			}
		}
	}
	for _, r := range s.rows {
		if strings.EqualFold(r.OppName, opp.OppName) {
			return "", fmt.Errorf("%w: opportunity name %q already exists", core.ErrDuplicateID, opp.OppName)
		}
	}

	opp.No = nextNo
	opp.CreatedAt = s.now().UTC().Format(time.RFC3339)
	if opp.Status == "" {
		opp.Status = "open"
	}
	if opp.LastActionDate == "" {
		opp.LastActionDate = s.now().Format("2006-01-02")
	}

	s.rows = append(s.rows, opp)
	if err := s.save(); err != nil {
		s.rows = s.rows[:len(s.rows)-1]
		return "", err
	}
	return opp.OppID, nil
}

// Update locates exactly one record, by opp_id first and by exact
// (case-insensitive) opp_name when no id matched, and applies only the
// supplied fields. Returns the id of the record it touched.
func (s *Store) Update(oppID, oppName string, update core.OpportunityUpdate) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.locate(oppID, oppName)
	if err != nil {
		return "", err
	}

	prev := s.rows[idx]
	opp := prev

	if update.NewOppID != "" && !strings.EqualFold(update.NewOppID, opp.OppID) {
		if s.findByID(update.NewOppID) >= 0 {
			return "", fmt.Errorf("%w: %s", core.ErrDuplicateID, update.NewOppID)
		}
		opp.OppID = update.NewOppID
	}
	if update.NewOppName != "" {
		for i, r := range s.rows {
			if i != idx && strings.EqualFold(r.OppName, update.NewOppName) {
				return "", fmt.Errorf("%w: opportunity name %q already exists", core.ErrDuplicateID, update.NewOppName)
			}
		}
		opp.OppName = update.NewOppName
	}
	if update.CustomerName != "" {
		opp.CustomerName = update.CustomerName
	}
	if update.DealSize != nil {
		opp.DealSize = *update.DealSize
	}
	if update.Deadline != "" {
		opp.Deadline = update.Deadline
	}
	if update.Stage != "" {
		opp.Stage = update.Stage
	}
	if update.Status != "" {
		opp.Status = update.Status
	}
	if update.AMName != "" {
		opp.AMName = update.AMName
	}
	if update.Details != "" {
		if opp.Details == "" {
			opp.Details = update.Details
		} else {
			opp.Details = opp.Details + "\n" + update.Details
		}
	}
	if update.LastActionDate != "" {
		opp.LastActionDate = update.LastActionDate
	}

	s.rows[idx] = opp
	if err := s.save(); err != nil {
		s.rows[idx] = prev
		return "", err
	}
	return opp.OppID, nil
}

// Query evaluates a read-only SELECT expression against the table.
func (s *Store) Query(expr string) ([]core.QueryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stmt, err := parseQuery(expr, s.now)
	if err != nil {
		return nil, err
	}

	views := make([]rowView, len(s.rows))
	for i, opp := range s.rows {
		views[i] = oppToView(opp)
	}
	return evalQuery(stmt, views)
}

// Len reports the number of records, for startup logging.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) findByID(oppID string) int {
	for i, r := range s.rows {
		if strings.EqualFold(r.OppID, oppID) {
			return i
		}
	}
	return -1
}

func (s *Store) locate(oppID, oppName string) (int, error) {
	if oppID == "" && oppName == "" {
		return -1, fmt.Errorf("%w: no identifier supplied", core.ErrNotFound)
	}
	if oppID != "" {
		if idx := s.findByID(oppID); idx >= 0 {
			return idx, nil
		}
	}
	if oppName != "" {
		matches := make([]int, 0, 1)
		for i, r := range s.rows {
			if strings.EqualFold(r.OppName, oppName) {
				matches = append(matches, i)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
		if len(matches) > 1 {
			return -1, fmt.Errorf("%w: %q", core.ErrAmbiguous, oppName)
		}
	}
	identifier := oppID
	if identifier == "" {
		identifier = oppName
	}
	return -1, fmt.Errorf("%w: %s", core.ErrNotFound, identifier)
}

func oppToRecord(opp core.Opportunity) []string {
	return []string{
		strconv.Itoa(opp.No),
		opp.CreatedAt,
		opp.CustomerName,
		opp.OppID,
		opp.OppName,
		strconv.FormatFloat(opp.DealSize, 'f', -1, 64),
		opp.Deadline,
		opp.Stage,
		opp.Status,
		opp.AMName,
		opp.LastActionDate,
		opp.Details,
	}
}

func oppFromRecord(rec []string) (core.Opportunity, error) {
	if len(rec) != len(core.OpportunityColumns) {
		return core.Opportunity{}, fmt.Errorf("row has %d fields, want %d", len(rec), len(core.OpportunityColumns))
	}
	no, err := strconv.Atoi(rec[0])
	if err != nil {
		return core.Opportunity{}, fmt.Errorf("bad running number %q", rec[0])
	}
	dealSize := 0.0
	if rec[5] != "" {
		dealSize, err = strconv.ParseFloat(rec[5], 64)
		if err != nil {
			return core.Opportunity{}, fmt.Errorf("bad deal size %q", rec[5])
		}
	}
	return core.Opportunity{
		No:             no,
		CreatedAt:      rec[1],
		CustomerName:   rec[2],
		OppID:          rec[3],
		OppName:        rec[4],
		DealSize:       dealSize,
		Deadline:       rec[6],
		Stage:          rec[7],
		Status:         rec[8],
		AMName:         rec[9],
		LastActionDate: rec[10],
		Details:        rec[11],
	}, nil
}

func oppToView(opp core.Opportunity) rowView {
	rec := oppToRecord(opp)
	view := make(rowView, len(rec))
	for i, col := range core.OpportunityColumns {
		view[col] = rec[i]
	}
	return view
}
