package responses

// Success wraps every 2xx body.
type Success struct {
	Data any `json:"data"`
}

// Page is a keyset-paginated list. NextCursor is empty on the last page.
type Page struct {
	Data       any    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type Failure struct {
	Error APIError `json:"error"`
}
