package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/cases"

	"smartlists/models"
	"smartlists/utils/similarity"
)

// Operator names a comparison.
type Operator string

const (
	OpEqual              Operator = "Equal"
	OpNotEqual           Operator = "NotEqual"
	OpContains           Operator = "Contains"
	OpNotContains        Operator = "NotContains"
	OpIsIn               Operator = "IsIn"
	OpIsNotIn            Operator = "IsNotIn"
	OpMatchRegex         Operator = "MatchRegex"
	OpGreaterThan        Operator = "GreaterThan"
	OpLessThan           Operator = "LessThan"
	OpGreaterThanOrEqual Operator = "GreaterThanOrEqual"
	OpLessThanOrEqual    Operator = "LessThanOrEqual"
	OpNewerThan          Operator = "NewerThan"
	OpOlderThan          Operator = "OlderThan"
)

var operators = []Operator{
	OpEqual, OpNotEqual, OpContains, OpNotContains, OpIsIn, OpIsNotIn, OpMatchRegex,
	OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual, OpNewerThan, OpOlderThan,
}

// ParseOperator resolves an operator name case-insensitively.
func ParseOperator(s string) (Operator, bool) {
	s = strings.TrimSpace(s)
	for _, op := range operators {
		if strings.EqualFold(string(op), s) {
			return op, true
		}
	}
	return "", false
}

var supported = map[FieldType][]Operator{
	TypeString:     {OpEqual, OpNotEqual, OpContains, OpNotContains, OpIsIn, OpIsNotIn, OpMatchRegex},
	TypeList:       {OpEqual, OpNotEqual, OpContains, OpNotContains, OpIsIn, OpIsNotIn, OpMatchRegex},
	TypeBool:       {OpEqual, OpNotEqual},
	TypeUserBool:   {OpEqual, OpNotEqual},
	TypeNumber:     {OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual},
	TypeUserNumber: {OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual},
	TypeDate:       {OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual, OpNewerThan, OpOlderThan},
	TypeUserDate:   {OpEqual, OpNotEqual, OpGreaterThan, OpLessThan, OpGreaterThanOrEqual, OpLessThanOrEqual, OpNewerThan, OpOlderThan},
	TypeSimilarity: {OpEqual, OpContains, OpIsIn, OpMatchRegex},
}

// Supports reports whether the operator applies to the field type.
func Supports(t FieldType, op Operator) bool {
	for _, candidate := range supported[t] {
		if candidate == op {
			return true
		}
	}
	return false
}

var regexCache, _ = lru.New[string, *regexp.Regexp](512)

func compileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Add(pattern, re)
	return re, nil
}

// fold returns the case-folded form used by every case-insensitive
// comparison. A Caser is not safe for concurrent use, so one is made per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// Options is the evaluation context a rule is compiled for.
type Options struct {
	// ReferenceUserID is the user that user-scoped rules without an explicit
	// user evaluate against, normally the list owner.
	ReferenceUserID string
	Now             func() time.Time
	Similarity      *similarity.Reference
	MinShared       int
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Predicate is one compiled expression.
type Predicate struct {
	Expression models.Expression
	// UserID is the effective user for user-scoped fields, empty otherwise.
	UserID string
	root   node
}

// Matches evaluates the predicate against an operand.
func (p *Predicate) Matches(o *models.Operand) bool {
	return p.root.eval(o)
}

// Compile turns one expression into a predicate. Every problem with the
// expression is reported here as a *CompilationError.
func Compile(expr models.Expression, opts Options) (*Predicate, error) {
	field, ok := Lookup(expr.MemberName)
	if !ok {
		return nil, compileErr(expr.MemberName, expr.Operator, expr.TargetValue, ErrUnknownField)
	}
	op, ok := ParseOperator(expr.Operator)
	if !ok {
		return nil, compileErr(field.Name, expr.Operator, expr.TargetValue, ErrUnknownOperator)
	}
	if !Supports(field.Type, op) {
		return nil, compileErr(field.Name, string(op), expr.TargetValue,
			fmt.Errorf("%w: %s does not support %s", ErrUnsupportedOperator, field.Type, op))
	}

	n := node{op: op, field: field, flags: expr.Flags}
	pred := &Predicate{Expression: expr}

	if field.Type.IsUserScoped() {
		userID := strings.TrimSpace(expr.UserID)
		if userID == "" {
			userID = opts.ReferenceUserID
		}
		if userID == "" {
			return nil, compileErr(field.Name, string(op), expr.TargetValue, ErrNoUser)
		}
		n.userID = userID
		pred.UserID = userID
	}

	if err := n.bind(expr.TargetValue, opts); err != nil {
		return nil, compileErr(field.Name, string(op), expr.TargetValue, err)
	}
	pred.root = n
	return pred, nil
}

// bind parses the literal according to the declared field type.
func (n *node) bind(value string, opts Options) error {
	switch n.field.Type {
	case TypeString, TypeList:
		return n.bindText(value)
	case TypeBool, TypeUserBool:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(value)))
		if err != nil {
			return fmt.Errorf("%w: expected true or false", ErrInvalidValue)
		}
		n.boolean = b
	case TypeNumber, TypeUserNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%w: expected a number", ErrInvalidValue)
		}
		n.number = f
	case TypeDate, TypeUserDate:
		return n.bindDate(value, opts.now())
	case TypeSimilarity:
		n.ref = opts.Similarity
		n.minShared = opts.MinShared
		if n.minShared <= 0 {
			n.minShared = 1
		}
		// The literal selects reference items by name; it is validated the
		// same way a Name rule would be.
		probe := node{op: n.op, field: fields[strings.ToLower(models.FieldName)]}
		return probe.bindText(value)
	}
	return nil
}

func (n *node) bindText(value string) error {
	switch n.op {
	case OpMatchRegex:
		re, err := compileRegex(value)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		n.re = re
	case OpIsIn, OpIsNotIn:
		for _, token := range strings.Split(value, ";") {
			if token = strings.TrimSpace(token); token != "" {
				n.tokens = append(n.tokens, fold(token))
			}
		}
		if len(n.tokens) == 0 {
			return fmt.Errorf("%w: empty value list", ErrInvalidValue)
		}
	default:
		n.text = fold(value)
	}
	return nil
}

func (n *node) bindDate(value string, now time.Time) error {
	switch n.op {
	case OpNewerThan, OpOlderThan:
		cutoff, err := relativeCutoff(value, now)
		if err != nil {
			return err
		}
		n.lo, n.hi = cutoff, cutoff
		return nil
	}

	ts, dateOnly, err := parseDate(value)
	if err != nil {
		return err
	}
	switch {
	case dateOnly || n.op == OpEqual || n.op == OpNotEqual:
		n.lo, n.hi = dayBounds(ts)
	default:
		n.lo, n.hi = ts.Unix(), ts.Unix()
	}
	return nil
}

// RuleSet is a compiled OR of AND-groups.
type RuleSet struct {
	groups [][]*Predicate
}

// CompileRuleSet compiles every expression of every set. All compilation
// errors are returned together.
func CompileRuleSet(sets []models.ExpressionSet, opts Options) (*RuleSet, error) {
	rs := &RuleSet{groups: make([][]*Predicate, 0, len(sets))}
	var errs []error
	for _, set := range sets {
		group := make([]*Predicate, 0, len(set.Expressions))
		for _, expr := range set.Expressions {
			pred, err := Compile(expr, opts)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			group = append(group, pred)
		}
		rs.groups = append(rs.groups, group)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rs, nil
}

// Matches reports whether any group is fully satisfied. A rule set without
// groups, or with an empty group, matches everything.
func (rs *RuleSet) Matches(o *models.Operand) bool {
	if rs == nil || len(rs.groups) == 0 {
		return true
	}
	for _, group := range rs.groups {
		if matchAll(group, o) {
			return true
		}
	}
	return false
}

// Predicates returns the number of compiled expressions.
func (rs *RuleSet) Predicates() int {
	total := 0
	for _, g := range rs.groups {
		total += len(g)
	}
	return total
}

func matchAll(group []*Predicate, o *models.Operand) bool {
	for _, p := range group {
		if !p.Matches(o) {
			return false
		}
	}
	return true
}

// Matcher is anything that decides membership for an operand.
type Matcher interface {
	Matches(*models.Operand) bool
}

// Evaluate applies a compiled predicate or rule set to an operand.
func Evaluate(m Matcher, o *models.Operand) bool {
	return m.Matches(o)
}

// SimilarityMatchers compiles the reference-item selectors of every
// SimilarTo expression as Name predicates.
func SimilarityMatchers(sets []models.ExpressionSet) ([]*Predicate, error) {
	var out []*Predicate
	for _, set := range sets {
		for _, expr := range set.Expressions {
			f, ok := Lookup(expr.MemberName)
			if !ok || f.Type != TypeSimilarity {
				continue
			}
			selector := expr
			selector.MemberName = models.FieldName
			selector.UserID = ""
			pred, err := Compile(selector, Options{})
			if err != nil {
				return nil, compileErr(models.FieldSimilarTo, expr.Operator, expr.TargetValue, errors.Unwrap(err))
			}
			out = append(out, pred)
		}
	}
	return out, nil
}

// OperatorsFor returns the operators a field type accepts.
func OperatorsFor(t FieldType) []Operator {
	return append([]Operator(nil), supported[t]...)
}
