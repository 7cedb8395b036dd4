package opps

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/oppsbot/internal/core"
)

// The query tool accepts a read-only subset of SQL:
//
//	SELECT cols FROM opportunities [WHERE pred] [ORDER BY col [ASC|DESC]] [LIMIT n]
//
// evaluated by a hand-rolled recursive-descent parser instead of a
// general SQL engine, so the read-only guarantee stays auditable.
// Mutation keywords are rejected outright before parsing, wherever
// they appear in the expression.

const tableName = "opportunities"

var mutationKeywords = regexp.MustCompile(`(?i)\b(update|delete|insert|drop)\b`)

type rowView map[string]string

type selectStmt struct {
	columns []string // nil means *
	where   predicate
	orderBy string
	desc    bool
	limit   int // -1 means no limit
}

type predicate interface {
	eval(r rowView) (bool, error)
}

type operand interface {
	value(r rowView) (queryValue, error)
}

// queryValue is a cell value. Numeric comparison is used when both
// sides parse as numbers, string comparison otherwise; ISO dates
// compare correctly as strings.
type queryValue struct {
	raw   string
	num   float64
	isNum bool
}

func newQueryValue(raw string) queryValue {
	if n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && strings.TrimSpace(raw) != "" {
		return queryValue{raw: raw, num: n, isNum: true}
	}
	return queryValue{raw: raw}
}

type columnOperand struct{ name string }

func (c columnOperand) value(r rowView) (queryValue, error) {
	raw, ok := r[c.name]
	if !ok {
		return queryValue{}, fmt.Errorf("%w: unknown column %q", core.ErrInvalidQuery, c.name)
	}
	return newQueryValue(raw), nil
}

type literalOperand struct{ v queryValue }

func (l literalOperand) value(rowView) (queryValue, error) {
	return l.v, nil
}

// dateOperand implements the DATE('now', modifier...) builtin the
// model is prompted to emit, mirroring the sqlite function of the same
// shape. Only the 'now' base is supported.
type dateOperand struct {
	modifiers []string
	now       func() time.Time
}

var dateModifierPattern = regexp.MustCompile(`^([+-]?\d+)\s+(day|days|month|months|year|years)$`)

func (d dateOperand) value(rowView) (queryValue, error) {
	t := d.now()
	for _, mod := range d.modifiers {
		m := dateModifierPattern.FindStringSubmatch(strings.TrimSpace(mod))
		if m == nil {
			return queryValue{}, fmt.Errorf("%w: unsupported date modifier %q", core.ErrInvalidQuery, mod)
		}
		n, _ := strconv.Atoi(m[1])
		switch strings.TrimSuffix(m[2], "s") {
		case "day":
			t = t.AddDate(0, 0, n)
		case "month":
			t = t.AddDate(0, n, 0)
		case "year":
			t = t.AddDate(n, 0, 0)
		}
	}
	return queryValue{raw: t.Format("2006-01-02")}, nil
}

type compareNode struct {
	left  operand
	op    string
	right operand
}

func (c compareNode) eval(r rowView) (bool, error) {
	lv, err := c.left.value(r)
	if err != nil {
		return false, err
	}
	rv, err := c.right.value(r)
	if err != nil {
		return false, err
	}

	if c.op == "like" {
		return matchLike(lv.raw, rv.raw), nil
	}

	// An empty cell has no position in an ordering; without this, rows
	// with no deadline sort below every date and answer "due soon".
	switch c.op {
	case "<", "<=", ">", ">=":
		if lv.raw == "" || rv.raw == "" {
			return false, nil
		}
	}

	var cmp int
	if lv.isNum && rv.isNum {
		switch {
		case lv.num < rv.num:
			cmp = -1
		case lv.num > rv.num:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(lv.raw, rv.raw)
	}

	switch c.op {
	case "=", "==":
		return cmp == 0, nil
	case "!=", "<>":
		return cmp != 0, nil
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", core.ErrInvalidQuery, c.op)
}

// matchLike supports the SQL % and _ wildcards, case-insensitively.
func matchLike(s, pattern string) bool {
	var re strings.Builder
	re.WriteString("(?is)^")
	for _, ch := range pattern {
		switch ch {
		case '%':
			re.WriteString(".*")
		case '_':
			re.WriteString(".")
		default:
			re.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	re.WriteString("$")
	matched, err := regexp.MatchString(re.String(), s)
	return err == nil && matched
}

type andNode struct{ left, right predicate }

func (n andNode) eval(r rowView) (bool, error) {
	ok, err := n.left.eval(r)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(r)
}

type orNode struct{ left, right predicate }

func (n orNode) eval(r rowView) (bool, error) {
	ok, err := n.left.eval(r)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(r)
}

type notNode struct{ inner predicate }

func (n notNode) eval(r rowView) (bool, error) {
	ok, err := n.inner.eval(r)
	return !ok, err
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokOperator
	tokComma
	tokLParen
	tokRParen
	tokStar
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t' || l.input[l.pos] == '\n' || l.input[l.pos] == '\r') {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.input[l.pos]

	switch {
	case ch == ',':
		l.pos++
		return token{kind: tokComma, text: ",", pos: start}, nil
	case ch == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ch == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case ch == '*':
		l.pos++
		return token{kind: tokStar, text: "*", pos: start}, nil
	case ch == '\'' || ch == '"':
		quote := ch
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) {
			c := l.input[l.pos]
			if c == quote {
				// '' escapes a quote inside a string
				if l.pos+1 < len(l.input) && l.input[l.pos+1] == quote {
					sb.WriteByte(quote)
					l.pos += 2
					continue
				}
				l.pos++
				return token{kind: tokString, text: sb.String(), pos: start}, nil
			}
			sb.WriteByte(c)
			l.pos++
		}
		return token{}, fmt.Errorf("%w: unterminated string at position %d", core.ErrInvalidQuery, start)
	case ch == '=' || ch == '<' || ch == '>' || ch == '!':
		op := string(ch)
		l.pos++
		if l.pos < len(l.input) {
			two := op + string(l.input[l.pos])
			switch two {
			case "==", "<=", ">=", "<>", "!=":
				l.pos++
				op = two
			}
		}
		if op == "!" {
			return token{}, fmt.Errorf("%w: unexpected character '!' at position %d", core.ErrInvalidQuery, start)
		}
		return token{kind: tokOperator, text: op, pos: start}, nil
	case ch >= '0' && ch <= '9' || ch == '.' || ch == '-':
		l.pos++
		for l.pos < len(l.input) {
			c := l.input[l.pos]
			if (c >= '0' && c <= '9') || c == '.' {
				l.pos++
				continue
			}
			break
		}
		return token{kind: tokNumber, text: l.input[start:l.pos], pos: start}, nil
	case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z'):
		l.pos++
		for l.pos < len(l.input) {
			c := l.input[l.pos]
			if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
				l.pos++
				continue
			}
			break
		}
		return token{kind: tokIdent, text: l.input[start:l.pos], pos: start}, nil
	}
	return token{}, fmt.Errorf("%w: unexpected character %q at position %d", core.ErrInvalidQuery, string(ch), start)
}

// --- parser ---

type parser struct {
	tokens []token
	pos    int
	now    func() time.Time
}

func tokenize(input string) ([]token, error) {
	l := &lexer{input: input}
	var tokens []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
		if t.kind == tokEOF {
			return tokens, nil
		}
	}
}

func parseQuery(input string, now func() time.Time) (*selectStmt, error) {
	if mutationKeywords.MatchString(input) {
		return nil, fmt.Errorf("%w: mutating statements are not allowed", core.ErrInvalidQuery)
	}

	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, now: now}

	stmt, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected token %q", core.ErrInvalidQuery, p.peek().text)
	}
	return stmt, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) advance() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) matchKeyword(kw string) bool {
	t := p.peek()
	if t.kind == tokIdent && strings.EqualFold(t.text, kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.matchKeyword(kw) {
		return fmt.Errorf("%w: expected %s near %q", core.ErrInvalidQuery, strings.ToUpper(kw), p.peek().text)
	}
	return nil
}

func (p *parser) parseSelect() (*selectStmt, error) {
	if err := p.expectKeyword("select"); err != nil {
		return nil, err
	}

	stmt := &selectStmt{limit: -1}

	if p.peek().kind == tokStar {
		p.advance()
	} else {
		for {
			col, err := p.parseColumn()
			if err != nil {
				return nil, err
			}
			stmt.columns = append(stmt.columns, col)
			if p.peek().kind != tokComma {
				break
			}
			p.advance()
		}
	}

	if err := p.expectKeyword("from"); err != nil {
		return nil, err
	}
	t := p.advance()
	if t.kind != tokIdent || !strings.EqualFold(t.text, tableName) {
		return nil, fmt.Errorf("%w: unknown table %q", core.ErrInvalidQuery, t.text)
	}

	if p.matchKeyword("where") {
		pred, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		stmt.where = pred
	}

	if p.matchKeyword("order") {
		if err := p.expectKeyword("by"); err != nil {
			return nil, err
		}
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		stmt.orderBy = col
		if p.matchKeyword("desc") {
			stmt.desc = true
		} else {
			p.matchKeyword("asc")
		}
	}

	if p.matchKeyword("limit") {
		t := p.advance()
		if t.kind != tokNumber {
			return nil, fmt.Errorf("%w: LIMIT expects a number, got %q", core.ErrInvalidQuery, t.text)
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid LIMIT %q", core.ErrInvalidQuery, t.text)
		}
		stmt.limit = n
	}

	return stmt, nil
}

func (p *parser) parseColumn() (string, error) {
	t := p.advance()
	if t.kind != tokIdent {
		return "", fmt.Errorf("%w: expected column name, got %q", core.ErrInvalidQuery, t.text)
	}
	name := strings.ToLower(t.text)
	for _, col := range core.OpportunityColumns {
		if col == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: unknown column %q", core.ErrInvalidQuery, t.text)
}

func (p *parser) parseOr() (predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (predicate, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.matchKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (predicate, error) {
	if p.matchKeyword("not") {
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (predicate, error) {
	// A parenthesis here opens a nested predicate, not an operand
	// group; operands never need grouping in this grammar.
	if p.peek().kind == tokLParen {
		p.advance()
		pred, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.advance().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", core.ErrInvalidQuery)
		}
		return pred, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	t := p.advance()
	var op string
	switch {
	case t.kind == tokOperator:
		op = t.text
	case t.kind == tokIdent && strings.EqualFold(t.text, "like"):
		op = "like"
	default:
		return nil, fmt.Errorf("%w: expected comparison operator, got %q", core.ErrInvalidQuery, t.text)
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compareNode{left: left, op: op, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	t := p.peek()
	switch t.kind {
	case tokString:
		p.advance()
		return literalOperand{v: queryValue{raw: t.text}}, nil
	case tokNumber:
		p.advance()
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid number %q", core.ErrInvalidQuery, t.text)
		}
		return literalOperand{v: queryValue{raw: t.text, num: n, isNum: true}}, nil
	case tokIdent:
		if strings.EqualFold(t.text, "date") {
			return p.parseDateCall()
		}
		col, err := p.parseColumn()
		if err != nil {
			return nil, err
		}
		return columnOperand{name: col}, nil
	}
	return nil, fmt.Errorf("%w: expected operand, got %q", core.ErrInvalidQuery, t.text)
}

func (p *parser) parseDateCall() (operand, error) {
	p.advance() // date
	if p.advance().kind != tokLParen {
		return nil, fmt.Errorf("%w: date expects parentheses", core.ErrInvalidQuery)
	}
	base := p.advance()
	if base.kind != tokString || !strings.EqualFold(base.text, "now") {
		return nil, fmt.Errorf("%w: date supports only the 'now' base", core.ErrInvalidQuery)
	}
	var modifiers []string
	for p.peek().kind == tokComma {
		p.advance()
		mod := p.advance()
		if mod.kind != tokString {
			return nil, fmt.Errorf("%w: date modifier must be a string", core.ErrInvalidQuery)
		}
		modifiers = append(modifiers, mod.text)
	}
	if p.advance().kind != tokRParen {
		return nil, fmt.Errorf("%w: missing closing parenthesis in date()", core.ErrInvalidQuery)
	}
	return dateOperand{modifiers: modifiers, now: p.now}, nil
}

// --- evaluation ---

func evalQuery(stmt *selectStmt, rows []rowView) ([]core.QueryRow, error) {
	matched := make([]rowView, 0, len(rows))
	for _, r := range rows {
		if stmt.where != nil {
			ok, err := stmt.where.eval(r)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, r)
	}

	if stmt.orderBy != "" {
		col := stmt.orderBy
		sort.SliceStable(matched, func(i, j int) bool {
			a, b := newQueryValue(matched[i][col]), newQueryValue(matched[j][col])
			var cmp int
			if a.isNum && b.isNum {
				switch {
				case a.num < b.num:
					cmp = -1
				case a.num > b.num:
					cmp = 1
				}
			} else {
				cmp = strings.Compare(a.raw, b.raw)
			}
			if stmt.desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if stmt.limit >= 0 && len(matched) > stmt.limit {
		matched = matched[:stmt.limit]
	}

	columns := stmt.columns
	if columns == nil {
		columns = core.OpportunityColumns
	}

	out := make([]core.QueryRow, 0, len(matched))
	for _, r := range matched {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = r[col]
		}
		out = append(out, core.QueryRow{Columns: columns, Values: values})
	}
	return out, nil
}
