// Package twofactor exposes enrollment and login challenges over JSON.
//
// The router does not authenticate anyone itself. RouterOptions.ResolveUser
// returns the identity established by the surrounding application: a full
// session for enrollment endpoints and the password step for starting a
// challenge. Once issued, the challenge id is the only credential needed to
// send an email code and submit the second factor.
//
// Responses use the handler package's JSON body: {"data":...} on success and
// {"error":{...}} on failure. Failures carry a stable code, a
// retry_strategy and, for throttled requests, retry_after in seconds (also
// sent as the Retry-After header). Messages never say which check failed.
//
//	POST /users                       {"email":"..."}, register and open enrollment
//	POST /enrollment                  start or resume enrollment
//	GET  /enrollment                  current enrollment state
//	POST /enrollment/method           {"method":"totp"|"email"}
//	POST /enrollment/resend           new setup email code
//	POST /enrollment/verify           {"code":"..."}, returns recovery codes once
//	POST /recovery-codes/regenerate   replace the recovery code set
//	POST /challenges                  open a login challenge
//	POST /challenges/{id}/email       send a login email code
//	POST /challenges/{id}/verify      {"method":"...","code":"..."}, returns a session
package twofactor
