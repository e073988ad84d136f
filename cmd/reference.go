package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"cropclaim/internal/bootstrap"
	"cropclaim/internal/bootstrap/logging"
	"cropclaim/internal/errs"
	"cropclaim/internal/usecase/claims"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage policy reference data",
}

var policyPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a policy",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		sumInsured, err := parseAmountFlag(cmd, "sum-insured")
		if err != nil {
			return err
		}
		startDate, err := parseDateFlag(cmd, "start")
		if err != nil {
			return err
		}
		endDate, err := parseDateFlag(cmd, "end")
		if err != nil {
			return err
		}
		policyID, _ := cmd.Flags().GetString("id")
		farmerID, _ := cmd.Flags().GetString("farmer")
		insurerID, _ := cmd.Flags().GetString("insurer")
		cropType, _ := cmd.Flags().GetString("crop")
		status, _ := cmd.Flags().GetString("status")

		policy, err := svc.PutPolicy(ctx, claims.PutPolicyInput{
			PolicyID:   policyID,
			FarmerID:   farmerID,
			InsurerID:  insurerID,
			CropType:   cropType,
			SumInsured: sumInsured,
			Status:     status,
			StartDate:  startDate,
			EndDate:    endDate,
		})
		if err != nil {
			logging.Error(ctx, "put policy failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "put policy")
		}

		if _, err := fmt.Fprintf(
			cmd.OutOrStdout(),
			"policy %s [%s] farmer=%s window=%s..%s sum_insured=%s\n",
			policy.PolicyID,
			policy.Status,
			policy.FarmerID,
			policy.StartDate.Format(time.DateOnly),
			policy.EndDate.Format(time.DateOnly),
			policy.SumInsured.StringFixed(2),
		); err != nil {
			return errs.Wrap(err, "write policy output")
		}
		return nil
	}),
}

var farmerCmd = &cobra.Command{
	Use:   "farmer",
	Short: "Manage farmer reference data",
}

var farmerPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a farmer and their payout account",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		farmerID, _ := cmd.Flags().GetString("id")
		accountRef, _ := cmd.Flags().GetString("account-ref")
		name, _ := cmd.Flags().GetString("name")
		bankAccountName, _ := cmd.Flags().GetString("bank-account-name")
		bankAccountNumber, _ := cmd.Flags().GetString("bank-account-number")
		bankCode, _ := cmd.Flags().GetString("bank-code")

		farmer, err := svc.PutFarmer(ctx, claims.PutFarmerInput{
			FarmerID:          farmerID,
			AccountRef:        accountRef,
			Name:              name,
			BankAccountName:   bankAccountName,
			BankAccountNumber: bankAccountNumber,
			BankCode:          bankCode,
		})
		if err != nil {
			logging.Error(ctx, "put farmer failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "put farmer")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "farmer %s name=%s bank=%s\n", farmer.FarmerID, farmer.Name, farmer.BankCode); err != nil {
			return errs.Wrap(err, "write farmer output")
		}
		return nil
	}),
}

var insurerCmd = &cobra.Command{
	Use:   "insurer",
	Short: "Manage insurer reference data",
}

var insurerPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace an insurer",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *claims.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		insurerID, _ := cmd.Flags().GetString("id")
		accountRef, _ := cmd.Flags().GetString("account-ref")
		name, _ := cmd.Flags().GetString("name")

		insurer, err := svc.PutInsurer(ctx, claims.PutInsurerInput{
			InsurerID:  insurerID,
			AccountRef: accountRef,
			Name:       name,
		})
		if err != nil {
			logging.Error(ctx, "put insurer failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "put insurer")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "insurer %s name=%s\n", insurer.InsurerID, insurer.Name); err != nil {
			return errs.Wrap(err, "write insurer output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(farmerCmd)
	rootCmd.AddCommand(insurerCmd)
	policyCmd.AddCommand(policyPutCmd)
	farmerCmd.AddCommand(farmerPutCmd)
	insurerCmd.AddCommand(insurerPutCmd)

	policyPutCmd.Flags().String("id", "", "Policy id")
	policyPutCmd.Flags().String("farmer", "", "Policy holder farmer id")
	policyPutCmd.Flags().String("insurer", "", "Insurer id")
	policyPutCmd.Flags().String("crop", "", "Insured crop type")
	policyPutCmd.Flags().String("sum-insured", "", "Sum insured (decimal)")
	policyPutCmd.Flags().String("status", "Active", "Policy status (Active|Expired|Pending)")
	policyPutCmd.Flags().String("start", "", "Coverage start date (YYYY-MM-DD)")
	policyPutCmd.Flags().String("end", "", "Coverage end date (YYYY-MM-DD)")
	_ = policyPutCmd.MarkFlagRequired("id")

	farmerPutCmd.Flags().String("id", "", "Farmer id")
	farmerPutCmd.Flags().String("account-ref", "", "Owning account reference")
	farmerPutCmd.Flags().String("name", "", "Farmer name")
	farmerPutCmd.Flags().String("bank-account-name", "", "Payout account holder name")
	farmerPutCmd.Flags().String("bank-account-number", "", "Payout account number")
	farmerPutCmd.Flags().String("bank-code", "", "Payout bank code")
	_ = farmerPutCmd.MarkFlagRequired("id")

	insurerPutCmd.Flags().String("id", "", "Insurer id")
	insurerPutCmd.Flags().String("account-ref", "", "Owning account reference")
	insurerPutCmd.Flags().String("name", "", "Insurer name")
	_ = insurerPutCmd.MarkFlagRequired("id")
}
