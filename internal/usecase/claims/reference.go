package claims

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domainclaim "cropclaim/internal/domain/claim"
	"cropclaim/internal/ports"
)

// Reference data is owned by other systems; these operations load it for intake and payout.

type PutPolicyInput struct {
	PolicyID   string          `json:"policyId" validate:"required,max=64"`
	FarmerID   string          `json:"farmerId" validate:"required,max=64"`
	InsurerID  string          `json:"insurerId" validate:"required,max=64"`
	CropType   string          `json:"cropType" validate:"required,max=64"`
	SumInsured decimal.Decimal `json:"sumInsured"`
	Status     string          `json:"status" validate:"required"`
	StartDate  time.Time       `json:"startDate" validate:"required"`
	EndDate    time.Time       `json:"endDate" validate:"required"`
}

type PutFarmerInput struct {
	FarmerID          string `json:"farmerId" validate:"required,max=64"`
	AccountRef        string `json:"accountRef" validate:"max=64"`
	Name              string `json:"name" validate:"required,max=255"`
	BankAccountName   string `json:"bankAccountName" validate:"max=255"`
	BankAccountNumber string `json:"bankAccountNumber" validate:"required,max=64"`
	BankCode          string `json:"bankCode" validate:"required,max=32"`
}

type PutInsurerInput struct {
	InsurerID  string `json:"insurerId" validate:"required,max=64"`
	AccountRef string `json:"accountRef" validate:"max=64"`
	Name       string `json:"name" validate:"required,max=255"`
}

func (s *Service) PutPolicy(ctx context.Context, input PutPolicyInput) (ports.Policy, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Policy{}, err
	}
	if err := s.checkInput(domainclaim.OpSubmitClaim, input); err != nil {
		return ports.Policy{}, err
	}
	status, err := domainclaim.ParsePolicyStatus(input.Status)
	if err != nil {
		return ports.Policy{}, err
	}
	if !input.SumInsured.IsPositive() {
		return ports.Policy{}, domainclaim.Validation(domainclaim.OpSubmitClaim, "sumInsured", "must be greater than zero")
	}
	if domainclaim.Day(input.EndDate).Before(domainclaim.Day(input.StartDate)) {
		return ports.Policy{}, domainclaim.Validation(domainclaim.OpSubmitClaim, "endDate", "ends before it starts")
	}

	policy := ports.Policy{
		PolicyID:   strings.TrimSpace(input.PolicyID),
		FarmerID:   strings.TrimSpace(input.FarmerID),
		InsurerID:  strings.TrimSpace(input.InsurerID),
		CropType:   strings.TrimSpace(input.CropType),
		SumInsured: input.SumInsured,
		Status:     status,
		StartDate:  domainclaim.Day(input.StartDate),
		EndDate:    domainclaim.Day(input.EndDate),
	}
	if err := s.repo.UpsertPolicy(ctx, policy); err != nil {
		return ports.Policy{}, err
	}
	return policy, nil
}

func (s *Service) PutFarmer(ctx context.Context, input PutFarmerInput) (ports.Farmer, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Farmer{}, err
	}
	if err := s.checkInput(domainclaim.OpSubmitClaim, input); err != nil {
		return ports.Farmer{}, err
	}

	farmer := ports.Farmer{
		FarmerID:          strings.TrimSpace(input.FarmerID),
		AccountRef:        strings.TrimSpace(input.AccountRef),
		Name:              strings.TrimSpace(input.Name),
		BankAccountName:   strings.TrimSpace(input.BankAccountName),
		BankAccountNumber: strings.TrimSpace(input.BankAccountNumber),
		BankCode:          strings.TrimSpace(input.BankCode),
	}
	if err := s.repo.UpsertFarmer(ctx, farmer); err != nil {
		return ports.Farmer{}, err
	}
	return farmer, nil
}

func (s *Service) PutInsurer(ctx context.Context, input PutInsurerInput) (ports.Insurer, error) {
	if err := s.ready(ctx); err != nil {
		return ports.Insurer{}, err
	}
	if err := s.checkInput(domainclaim.OpSubmitClaim, input); err != nil {
		return ports.Insurer{}, err
	}

	insurer := ports.Insurer{
		InsurerID:  strings.TrimSpace(input.InsurerID),
		AccountRef: strings.TrimSpace(input.AccountRef),
		Name:       strings.TrimSpace(input.Name),
	}
	if err := s.repo.UpsertInsurer(ctx, insurer); err != nil {
		return ports.Insurer{}, err
	}
	return insurer, nil
}
