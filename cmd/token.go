package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/internal/middleware"
	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

var (
	tokenUser  string
	tokenEmail string
	tokenRole  string
	tokenPlan  string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local development",
	Long: `Signs a bearer token with JWT_SECRET, in the same format the auth
service issues, so the API can be exercised without it.`,
	Example: `  # Free user
  JWT_SECRET=dev codegen token --user u1

  # Premium admin, valid for a day
  JWT_SECRET=dev codegen token --user ops --role admin --plan premium --ttl 24h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		if tokenUser == "" {
			return errors.New("--user is required")
		}

		role := models.Role(strings.ToUpper(tokenRole))
		if role != models.RoleUser && role != models.RoleAdmin {
			return fmt.Errorf("unknown role %q", tokenRole)
		}
		plan := models.Plan(strings.ToUpper(tokenPlan))
		if plan != models.PlanFree && plan != models.PlanPremium {
			return fmt.Errorf("unknown plan %q", tokenPlan)
		}

		tok, err := middleware.IssueToken(secret, models.Principal{
			ID:    tokenUser,
			Email: tokenEmail,
			Role:  role,
			Plan:  plan,
		}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id carried in the token")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email carried in the token")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "Role: user or admin")
	tokenCmd.Flags().StringVar(&tokenPlan, "plan", "free", "Plan: free or premium")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}
