package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gophora/discovery-service/internal/matcher"
	"gophora/discovery-service/internal/model"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Print recommendations for a stored user or an ad-hoc skill list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID, _ := cmd.Flags().GetString("user")
		skills, _ := cmd.Flags().GetStringSlice("skills")
		limit, _ := cmd.Flags().GetInt("limit")
		if userID == "" && len(skills) == 0 {
			return errors.New("either --user or --skills is required")
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		c, err := wire(ctx, logger)
		if err != nil {
			return err
		}
		defer c.Close()

		var items []matcher.Scored
		if userID != "" {
			items = c.matcher.RecommendForUser(ctx, userID, limit)
		} else {
			for i := range skills {
				skills[i] = strings.TrimSpace(skills[i])
			}
			items = c.matcher.Recommend(ctx, model.UserProfile{Skills: skills}, limit)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	},
}

func init() {
	recommendCmd.Flags().StringP("user", "u", "", "stored profile user id")
	recommendCmd.Flags().StringSlice("skills", nil, "comma-separated skills")
	recommendCmd.Flags().IntP("limit", "l", 10, "maximum results")
}
