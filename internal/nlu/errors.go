package nlu

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/hammamikhairi/baskit/internal/domain"
)

// classify maps a transport or provider error to the NLU taxonomy.
// Cancellation of the caller's context is returned unchanged so the
// resolver can stop instead of retrying.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var nluErr *domain.NLUError
	if errors.As(err, &nluErr) {
		return err
	}
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}

	kind := kindOf(err)
	return &domain.NLUError{Kind: kind, Err: err}
}

func kindOf(err error) domain.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	if errors.Is(err, ErrBadResponse) {
		return domain.KindMalformed
	}

	var se *StatusError
	if errors.As(err, &se) {
		return kindForStatus(se.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.KindTimeout
	}
	return domain.KindUnavailable
}

func kindForStatus(code int) domain.ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return domain.KindRateLimited
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return domain.KindUnauthorized
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return domain.KindTimeout
	case code >= 500:
		return domain.KindUnavailable
	case code >= 400:
		return domain.KindMalformed
	default:
		return domain.KindUnavailable
	}
}
