package authhttp

import "context"

// attempt describes one send of a logical request. A fresh value is put in
// the context of every send; requests themselves are never mutated.
type attempt struct {
	// n is 0 for the original send and 1 for the replay after a refresh.
	n int
	// override, when set, is the credential the replay must carry.
	override string
	// sent is filled in by the auth layer with the credential it attached.
	sent string
}

type attemptKey struct{}

func withAttempt(ctx context.Context, a *attempt) context.Context {
	return context.WithValue(ctx, attemptKey{}, a)
}

func attemptFrom(ctx context.Context) *attempt {
	a, _ := ctx.Value(attemptKey{}).(*attempt)
	return a
}

// Retried reports whether ctx belongs to a replay after a credential refresh.
// Transports below the pipeline can use it to tag or log replays.
func Retried(ctx context.Context) bool {
	a := attemptFrom(ctx)
	return a != nil && a.n > 0
}
