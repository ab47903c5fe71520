package rules

import (
	"regexp"
	"strings"

	"smartlists/models"
	"smartlists/utils/similarity"
)

// node is a compiled expression: the operator tag, the bound literal and the
// field accessor it reads through.
type node struct {
	op     Operator
	field  *Field
	flags  models.ExpressionFlags
	userID string

	text    string
	tokens  []string
	re      *regexp.Regexp
	boolean bool
	number  float64
	// Inclusive epoch bounds. Equal for instants and relative cutoffs.
	lo, hi int64

	ref       *similarity.Reference
	minShared int
}

func (n *node) eval(o *models.Operand) bool {
	switch n.field.Type {
	case TypeString:
		return n.evalText(n.field.str(o))
	case TypeList:
		return n.evalList(n.field.list(o, n.flags))
	case TypeBool:
		return n.evalBool(n.field.boolean(o))
	case TypeUserBool:
		return n.evalBool(n.field.userBool(o, n.userID, n.flags))
	case TypeNumber:
		return n.evalNumber(n.field.num(o))
	case TypeUserNumber:
		return n.evalNumber(n.field.userNum(o, n.userID))
	case TypeDate:
		v := n.field.date(o)
		return n.evalDate(v, v == 0)
	case TypeUserDate:
		v := n.field.userDate(o, n.userID)
		return n.evalDate(v, v == models.NeverPlayed)
	case TypeSimilarity:
		if n.ref.Contains(o.ItemID) {
			return false
		}
		return n.ref.SharedCount(o.Genres, o.Tags) >= n.minShared
	}
	return false
}

func (n *node) evalText(value string) bool {
	if n.op == OpMatchRegex {
		return n.re.MatchString(value)
	}
	folded := fold(value)
	switch n.op {
	case OpEqual:
		return folded == n.text
	case OpNotEqual:
		return folded != n.text
	case OpContains:
		return strings.Contains(folded, n.text)
	case OpNotContains:
		return !strings.Contains(folded, n.text)
	case OpIsIn:
		return containsAnyToken(folded, n.tokens)
	case OpIsNotIn:
		return !containsAnyToken(folded, n.tokens)
	}
	return false
}

// evalList applies "any element" semantics; the negated operators hold when
// no element matches.
func (n *node) evalList(values []string) bool {
	switch n.op {
	case OpNotEqual:
		return !n.anyElement(values, OpEqual)
	case OpNotContains:
		return !n.anyElement(values, OpContains)
	case OpIsNotIn:
		return !n.anyElement(values, OpIsIn)
	}
	return n.anyElement(values, n.op)
}

func (n *node) anyElement(values []string, op Operator) bool {
	for _, v := range values {
		if op == OpMatchRegex {
			if n.re.MatchString(v) {
				return true
			}
			continue
		}
		folded := fold(v)
		switch op {
		case OpEqual:
			if folded == n.text {
				return true
			}
		case OpContains:
			if strings.Contains(folded, n.text) {
				return true
			}
		case OpIsIn:
			if containsAnyToken(folded, n.tokens) {
				return true
			}
		}
	}
	return false
}

func containsAnyToken(value string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(value, t) {
			return true
		}
	}
	return false
}

func (n *node) evalBool(value bool) bool {
	if n.op == OpNotEqual {
		return value != n.boolean
	}
	return value == n.boolean
}

func (n *node) evalNumber(value float64) bool {
	switch n.op {
	case OpEqual:
		return value == n.number
	case OpNotEqual:
		return value != n.number
	case OpGreaterThan:
		return value > n.number
	case OpLessThan:
		return value < n.number
	case OpGreaterThanOrEqual:
		return value >= n.number
	case OpLessThanOrEqual:
		return value <= n.number
	}
	return false
}

// evalDate compares epoch seconds against [lo, hi], which spans a whole
// day for date-only values. Missing dates only satisfy NotEqual.
func (n *node) evalDate(value int64, missing bool) bool {
	if missing {
		return n.op == OpNotEqual
	}
	switch n.op {
	case OpEqual:
		return value >= n.lo && value <= n.hi
	case OpNotEqual:
		return value < n.lo || value > n.hi
	case OpGreaterThan:
		return value > n.hi
	case OpLessThan:
		return value < n.lo
	case OpGreaterThanOrEqual:
		return value >= n.lo
	case OpLessThanOrEqual:
		return value <= n.hi
	case OpNewerThan:
		return value >= n.lo
	case OpOlderThan:
		return value < n.lo
	}
	return false
}
