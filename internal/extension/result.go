package extension

// Status is the outcome reported back to the platform for one event.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkip    Status = "skip"
	StatusFail    Status = "fail"
)

// Result is what an entry point returns for one request.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Done reports a processed request.
func Done() Result {
	return Result{Status: StatusSuccess}
}

// Skip reports a request that was deliberately left alone.
func Skip(msg string) Result {
	return Result{Status: StatusSkip, Message: msg}
}

// Fail reports a request that could not be processed.
func Fail(msg string) Result {
	return Result{Status: StatusFail, Message: msg}
}

// IsSuccess is true for StatusSuccess.
func (r Result) IsSuccess() bool { return r.Status == StatusSuccess }

// IsSkip is true for StatusSkip.
func (r Result) IsSkip() bool { return r.Status == StatusSkip }

// IsFail is true for StatusFail.
func (r Result) IsFail() bool { return r.Status == StatusFail }
