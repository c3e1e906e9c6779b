package types

// API error codes.
const (
	CodeAuthBadRequest  = "AUTH_400"
	CodeUnauthorized    = "AUTH_401"
	CodePumpBadRequest  = "PUMP_400"
	CodePumpNotFound    = "PUMP_404"
	CodePumpUnavailable = "PUMP_503"
	CodeInternal        = "PUMP_500"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be a string, a field error map or any JSON-encodable value.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
