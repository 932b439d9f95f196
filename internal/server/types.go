// Package server provides the HTTP transport for the SmartDub API: thin
// handlers over the account and job services, plus media and metrics
// endpoints.
package server

// CreateAccountRequest is the optional body of POST /accounts.
type CreateAccountRequest struct {
	// Plan is the subscription tier; empty selects the default plan.
	Plan string `json:"plan" validate:"omitempty,oneof=trial free starter pro advanced"`
}

// CreateAccountResponse is returned after registering an account.
type CreateAccountResponse struct {
	Code string `json:"code"`
}

// AccountResponse is the entitlement summary of an account.
type AccountResponse struct {
	Authorized                 bool   `json:"authorized"`
	UsageTimeRemaining         int    `json:"usage_time_remaining"`
	SubmissionCreditsRemaining int    `json:"submission_credits_remaining"`
	Plan                       string `json:"plan"`
}

// BindAccountRequest binds an external identity to an account.
type BindAccountRequest struct {
	ExternalID string `json:"external_id" validate:"required,max=128"`
}

// BindAccountResponse is returned after a successful bind.
type BindAccountResponse struct {
	Success            bool `json:"success"`
	UsageTimeRemaining int  `json:"usage_time_remaining"`
}

// TopUpRequest adds submission credits and/or usage time to an account.
// At least one of the two must be positive.
type TopUpRequest struct {
	Credits   int `json:"credits" validate:"min=0,max=100000"`
	UsageTime int `json:"usage_time" validate:"min=0,max=1000000"`
}

// submitForm holds the text fields of the multipart POST /jobs request.
type submitForm struct {
	Code           string `validate:"required,max=64"`
	TargetLanguage string `validate:"required,max=35"`
}

// CreateJobResponse is the HTTP response after admitting a job.
type CreateJobResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

// JobResponse is the HTTP response for GET /jobs/{id}.
type JobResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
	// OutputURL is set only when the job is done.
	OutputURL *string `json:"output_url"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status     string `json:"status"`
	WorkerBusy bool   `json:"worker_busy"`
}
