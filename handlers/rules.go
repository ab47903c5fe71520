package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"smartlists/models"
	"smartlists/services/lists"
	"smartlists/services/rules"
)

type ruleProblem struct {
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value,omitempty"`
	Message  string `json:"message"`
}

type fieldInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Operators []string `json:"operators"`
}

type RulesHandler struct {
	now func() time.Time
}

func NewRulesHandler() *RulesHandler {
	return &RulesHandler{now: func() time.Time { return time.Now().UTC() }}
}

// Validate compiles a posted list definition without saving it.
func (h *RulesHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var list models.SmartList
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if err := lists.Validate(list, h.now()); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"valid":  false,
			"errors": describeProblems(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// Fields lists the rule fields with the operators each one accepts.
func (h *RulesHandler) Fields(w http.ResponseWriter, _ *http.Request) {
	all := rules.Fields()
	out := make([]fieldInfo, 0, len(all))
	for _, f := range all {
		ops := rules.OperatorsFor(f.Type)
		names := make([]string, 0, len(ops))
		for _, op := range ops {
			names = append(names, string(op))
		}
		out = append(out, fieldInfo{Name: f.Name, Type: f.Type.String(), Operators: names})
	}
	writeJSON(w, http.StatusOK, out)
}

func describeProblems(err error) []ruleProblem {
	compErrs := rules.CompilationErrors(err)
	if len(compErrs) == 0 {
		return []ruleProblem{{Message: err.Error()}}
	}
	out := make([]ruleProblem, 0, len(compErrs))
	for _, ce := range compErrs {
		msg := ce.Error()
		if ce.Err != nil {
			msg = ce.Err.Error()
		}
		out = append(out, ruleProblem{Field: ce.Field, Operator: ce.Operator, Value: ce.Value, Message: msg})
	}
	return out
}

func isValidationError(err error) bool {
	return len(rules.CompilationErrors(err)) > 0 ||
		errors.Is(err, lists.ErrNameRequired) ||
		errors.Is(err, lists.ErrOwnerRequired) ||
		errors.Is(err, lists.ErrInvalidList)
}
