package gateway

// Notices the gateway sends on the error channel during normal operation:
// market data farm OK (2104), HMDS farm OK (2106), HMDS farm inactive but
// available (2107), sec-def farm OK (2158).
var informationalCodes = map[int]struct{}{
	2104: {},
	2106: {},
	2107: {},
	2158: {},
}

// IsInformational reports whether code is a benign notice rather than an error.
func IsInformational(code int) bool {
	_, ok := informationalCodes[code]
	return ok
}
