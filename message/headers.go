package message

const (
	// HeaderID is set by Builder and can't be changed with SetHeader.
	HeaderID = "id"
	// HeaderTimestamp is the time when the message was built.
	HeaderTimestamp = "timestamp"

	HeaderCorrelationID  = "correlationId"
	HeaderReturnAddress  = "returnAddress"
	HeaderNextTarget     = "nextTarget"
	HeaderExpirationDate = "expirationDate"
)

// Headers are sent with every message to provide extra context without inspecting the payload.
type Headers map[string]interface{}

func (h Headers) Get(key string) interface{} {
	return h[key]
}

// GetString returns the header as a string, or an empty string when the header is missing or isn't a string.
func (h Headers) GetString(key string) string {
	if v, ok := h[key].(string); ok {
		return v
	}

	return ""
}

func (h Headers) Has(key string) bool {
	_, ok := h[key]
	return ok
}

func (h Headers) Copy() Headers {
	cpy := make(Headers, len(h))
	for k, v := range h {
		cpy[k] = v
	}

	return cpy
}

func isReservedHeader(key string) bool {
	return key == HeaderID || key == HeaderTimestamp
}
