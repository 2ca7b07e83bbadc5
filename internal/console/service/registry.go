package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xela07ax/xchain-router/internal/domain"
	"github.com/xela07ax/xchain-router/internal/registry"
)

// RegistryService: мутации реестров от имени администратора.
// Capability выдается только если адрес из токена совпадает с админом реестров.
type RegistryService struct {
	admin *registry.Admin
	trust *registry.Trust
	auth  *registry.Authorization
}

func NewRegistryService(admin *registry.Admin, trust *registry.Trust, auth *registry.Authorization) *RegistryService {
	return &RegistryService{admin: admin, trust: trust, auth: auth}
}

func (s *RegistryService) SetTrust(ctx context.Context, chain domain.ChainID, target common.Address) error {
	adminCap, err := s.admin.Capability(ctx)
	if err != nil {
		return err
	}
	return s.trust.Set(ctx, adminCap, chain, target)
}

func (s *RegistryService) ListTrust() []domain.TrustedAdapter {
	return s.trust.List()
}

func (s *RegistryService) SetExecutor(ctx context.Context, caller common.Address, allowed bool) error {
	adminCap, err := s.admin.Capability(ctx)
	if err != nil {
		return err
	}
	return s.auth.Set(ctx, adminCap, caller, allowed)
}

func (s *RegistryService) ListExecutors() []domain.AuthorizedExecutor {
	return s.auth.List()
}
