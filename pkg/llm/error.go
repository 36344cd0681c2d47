package llm

// ErrorResponse is the wire shape for error replies from the HTTP API.
type ErrorResponse struct {
	Error string `json:"error"`
}
