package relay

import (
	"errors"

	"google.golang.org/grpc/codes"

	"github.com/xela07ax/xchain-router/internal/codec"
	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/router"
)

// ErrorCode переводит отказ Router.Receive в gRPC код. Релей повторяет
// доставку только на Unavailable; остальные коды для него окончательные.
func ErrorCode(err error) codes.Code {
	switch {
	case errors.Is(err, codec.ErrMalformed),
		errors.Is(err, codec.ErrUnknownKind),
		errors.Is(err, codec.ErrUnsupportedVersion),
		errors.Is(err, domain.ErrEmptyAccount),
		errors.Is(err, domain.ErrEmptyTarget),
		errors.Is(err, domain.ErrEmptyActionID):
		return codes.InvalidArgument
	case errors.Is(err, router.ErrLedgerUnavailable):
		return codes.Unavailable
	}
	// Недоверенный таргет, условие, пересылка: повтор той же доставки не поможет
	return codes.FailedPrecondition
}
