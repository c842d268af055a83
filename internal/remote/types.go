package remote

// errorResponse is the body the storefront service sends with failures.
//
//	HTTP 400
//	{"success": false, "message": "Protected route, Oauth2 Bearer token not found"}
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// response is a successful round trip as seen by the circuit breaker.
type response struct {
	status int
	body   []byte
}
