package registry

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
)

var (
	ErrNotAdmin         = errors.New("registry: caller is not the administrator")
	ErrInvalidAdminCap  = errors.New("registry: invalid admin capability")
	ErrAdminUnavailable = errors.New("registry: administrator is not configured")
)

// Admin: владелец реестров. Вместо проверки "owner" на каждом методе
// мутации требуют явную capability, которую выдает только Admin.
type Admin struct {
	address common.Address
}

func NewAdmin(address common.Address) *Admin {
	return &Admin{address: address}
}

func (a *Admin) Address() common.Address {
	return a.address
}

// AdminCap: право на одну или несколько мутаций реестров. Нулевое значение невалидно.
type AdminCap struct {
	issuer *Admin
}

// Capability выдает AdminCap, если вызывающий из контекста совпадает с администратором.
func (a *Admin) Capability(ctx context.Context) (AdminCap, error) {
	if a == nil || a.address == (common.Address{}) {
		return AdminCap{}, ErrAdminUnavailable
	}
	caller, ok := domain.CallerFrom(ctx)
	if !ok || caller != a.address {
		return AdminCap{}, ErrNotAdmin
	}
	return AdminCap{issuer: a}, nil
}

func (a *Admin) check(c AdminCap) error {
	if c.issuer == nil || c.issuer != a {
		return ErrInvalidAdminCap
	}
	return nil
}
