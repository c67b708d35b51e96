package httpapi

// Response classifies a collector call's outcome. Only NoResponse is
// retryable: it means no HTTP answer arrived at all, so delivery is
// indeterminate. Every definite answer, including errors, is terminal for
// the batch.
type Response int

const (
	// NoResponse means transport failure or an empty body: the server may or
	// may not have seen the request.
	NoResponse Response = iota
	// BadResponse means the body arrived but failed shape validation.
	BadResponse
	// RequestTimeout is a timeout surfaced distinctly by the transport.
	RequestTimeout
	// JSONEncodeFailed means the request payload could not be serialized.
	JSONEncodeFailed
	// JSONDecodeFailed means the response body was not valid JSON.
	JSONDecodeFailed
	// Ok is HTTP 200.
	Ok
	// BadRequest is HTTP 400: the server rejected the payload.
	BadRequest
	// Unauthorized is HTTP 401 (or status 0, which proxies produce for 401).
	Unauthorized
	// InternalServerError is HTTP 500.
	InternalServerError
	// UnknownResponseCode is any other definite status.
	UnknownResponseCode
)

// String returns the classification name for logs.
func (r Response) String() string {
	switch r {
	case NoResponse:
		return "NoResponse"
	case BadResponse:
		return "BadResponse"
	case RequestTimeout:
		return "RequestTimeout"
	case JSONEncodeFailed:
		return "JSONEncodeFailed"
	case JSONDecodeFailed:
		return "JSONDecodeFailed"
	case Ok:
		return "Ok"
	case BadRequest:
		return "BadRequest"
	case Unauthorized:
		return "Unauthorized"
	case InternalServerError:
		return "InternalServerError"
	case UnknownResponseCode:
		return "UnknownResponseCode"
	}
	return "Unknown"
}

// ClassifyStatus maps an HTTP status and body presence onto a Response.
// An empty body always classifies as NoResponse regardless of status.
func ClassifyStatus(statusCode int, bodyLen int) Response {
	if bodyLen == 0 {
		return NoResponse
	}
	switch statusCode {
	case 200:
		return Ok
	case 0, 401:
		return Unauthorized
	case 400:
		return BadRequest
	case 500:
		return InternalServerError
	}
	return UnknownResponseCode
}

// ErrorType tags the SDK's internal self-error telemetry.
type ErrorType int

const (
	// ErrorTypeRejected marks a validation rejection of a host-submitted
	// event.
	ErrorTypeRejected ErrorType = iota + 1
)

// String returns the wire value for the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRejected:
		return "rejected"
	}
	return ""
}
