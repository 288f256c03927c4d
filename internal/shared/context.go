package shared

import "context"

type (
	sessionKey  struct{}
	operatorKey struct{}
)

// ContextWithSession stores the request session.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the request session or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionKey{}).(*Session)
	return sess
}

// ContextWithOperator records the operator authorised for this request,
// whether they came in through a session or an API token.
func ContextWithOperator(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, operatorKey{}, username)
}

// OperatorFromContext returns the authorised operator or "".
func OperatorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(operatorKey{}).(string)
	return name
}
