package http

import "github.com/aretw0/switchboard/pkg/domain"

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Code            string            `json:"code"`
	Silent          bool              `json:"silent,omitempty"`
	CellIndex       *string           `json:"cell_index,omitempty"`
	UserExpressions map[string]string `json:"user_expressions,omitempty"`
}

// ExecuteResponse carries the result of a cell and the events it produced, in order.
type ExecuteResponse struct {
	Result domain.Result  `json:"result"`
	Events []domain.Event `json:"events"`
}

// EnginesResponse is the body of GET /engines.
type EnginesResponse struct {
	Current string     `json:"current"`
	Started []string   `json:"started"`
	Kernels [][]string `json:"kernels"`
}
