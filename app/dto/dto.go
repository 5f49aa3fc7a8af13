// Package dto contains data transfer objects for API requests and responses
package dto

// APIResponse is the uniform envelope for every management API reply
type APIResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail carries the machine-readable error code plus optional
// structured payload (validation fields, slug suggestions, candidates).
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// PaginationResponse describes one page of a list result
type PaginationResponse struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}
