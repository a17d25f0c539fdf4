// Package handler turns typed handler functions into http.HandlerFunc.
//
// A HandlerFunc receives a Context and a request value already decoded by
// the configured Bind, and returns a Response. Binding failures and
// Responses that fail to render go to one ErrorHandler, so a handler can
// return Error(err) and let the application decide how errors look:
//
//	func verify(ctx handler.Context, req VerifyRequest) handler.Response {
//		session, err := svc.Verify(ctx, req.Code)
//		if err != nil {
//			return handler.Error(err)
//		}
//		return handler.JSON(session, handler.WithJSONHeader("Cache-Control", "no-store"))
//	}
//
// JSON and JSONError render the JSONResponse envelope: {"data": ...} on
// success and {"error": {...}} on failure.
package handler
