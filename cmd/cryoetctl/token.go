package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the query API",
	Long: `Issue a bearer token for the query API, signed with api_jwt_secret.

Example:
  cryoetctl token --subject analyst --ttl 24h
  curl -H "Authorization: Bearer $(cryoetctl token)" localhost:8080/tomograms/rich`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustApp(cmd)
		if a.cfg.APIJWTSecret == "" {
			a.exit(errors.New("api_jwt_secret is not configured"))
		}

		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			a.exit(fmt.Errorf("invalid --ttl %s", ttl))
		}

		token, err := apiAuth(a).Issue(subject, ttl)
		if err != nil {
			a.exit(err)
		}
		fmt.Println(token)
		a.exit(nil)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("subject", "cryoetctl", "token subject")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}
