package dto

// ProcessingStatusResponse is the client polling contract.
type ProcessingStatusResponse struct {
	ModuleID string `json:"module_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
}
