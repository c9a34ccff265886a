package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"osusume/pkg/models"
)

type selectionResponse struct {
	Selection []models.Anime `json:"selection"`
}

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Change the titles selected in this session",
}

var selectToggleCmd = &cobra.Command{
	Use:   "toggle <id>...",
	Short: "Select a title, or unselect it if already selected",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		var resp selectionResponse
		for _, raw := range args {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", raw)
			}
			payload := map[string]int64{"anime_id": id}
			if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodPost, flagAPI+"/session/selection", token, payload, &resp); err != nil {
				return err
			}
		}
		printAnime(cmd.OutOrStdout(), resp.Selection)
		return nil
	},
}

var selectClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Unselect everything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodDelete, flagAPI+"/session/selection", token, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "selection cleared")
		return nil
	},
}

var flagRemoveByID bool

var selectRemoveCmd = &cobra.Command{
	Use:   "remove <position>...",
	Short: "Unselect the titles at the given positions of 'select list' (or ids with --id)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		var payload any
		if flagRemoveByID {
			ids := make([]int64, 0, len(args))
			for _, raw := range args {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid id %q", raw)
				}
				ids = append(ids, id)
			}
			payload = map[string][]int64{"ids": ids}
		} else {
			positions := make([]int, 0, len(args))
			for _, raw := range args {
				n, err := strconv.Atoi(raw)
				if err != nil {
					return fmt.Errorf("invalid position %q", raw)
				}
				positions = append(positions, n)
			}
			payload = map[string][]int{"positions": positions}
		}
		var resp selectionResponse
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodPost, flagAPI+"/session/selection/remove", token, payload, &resp); err != nil {
			return err
		}
		printAnime(cmd.OutOrStdout(), resp.Selection)
		return nil
	},
}

var selectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List selected titles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := fetchState(cmd, false)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), st.Selection)
		}
		printAnime(cmd.OutOrStdout(), st.Selection)
		return nil
	},
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show recommendations for the current selection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := fetchState(cmd, true)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), st.Recommendations)
		}
		if len(st.Selection) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing selected; try 'osusume select toggle <id>'")
			return nil
		}
		printRecommendations(cmd, st)
		return nil
	},
}

func init() {
	selectRemoveCmd.Flags().BoolVar(&flagRemoveByID, "id", false, "arguments are anime ids, not positions")
	selectCmd.AddCommand(selectToggleCmd, selectClearCmd, selectRemoveCmd, selectListCmd)
	rootCmd.AddCommand(selectCmd, recommendCmd)
}
