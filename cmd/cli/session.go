package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"osusume/pkg/models"
)

type stateResponse struct {
	SessionID            string         `json:"session_id"`
	Count                int            `json:"count"`
	Popular              []models.Anime `json:"popular"`
	Keyword              string         `json:"keyword"`
	SearchResults        []models.Anime `json:"search_results"`
	Selection            []models.Anime `json:"selection"`
	Recommendations      []models.Anime `json:"recommendations"`
	RecommendationsError string         `json:"recommendations_error"`
	ListMode             string         `json:"list_mode"`
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start, inspect or end a browse session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new session and store its token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp struct {
			SessionID string        `json:"session_id"`
			Token     string        `json:"token"`
			ExpiresAt string        `json:"expires_at"`
			State     stateResponse `json:"state"`
		}
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodPost, flagAPI+"/sessions", "", nil, &resp); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if err := saveToken(flagTokenPath, tokenData{Token: resp.Token, SessionID: resp.SessionID}); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "session %s started (%d titles in catalog, expires %s)\n", resp.SessionID, resp.State.Count, resp.ExpiresAt)
		fmt.Fprintln(out, "Popular:")
		printAnime(out, resp.State.Popular)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := fetchState(cmd, true)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), st)
		}
		out := cmd.OutOrStdout()
		if st.ListMode == "search_results" {
			fmt.Fprintf(out, "Search %q:\n", st.Keyword)
			printAnime(out, st.SearchResults)
		} else {
			fmt.Fprintln(out, "Popular:")
			printAnime(out, st.Popular)
		}
		fmt.Fprintln(out, "\nSelected:")
		printAnime(out, st.Selection)
		printRecommendations(cmd, st)
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the session and forget its token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodDelete, flagAPI+"/session", token, nil, nil); err != nil {
			// the server may have reaped it already; still drop the token
			if !strings.Contains(err.Error(), "session") {
				return err
			}
		}
		if err := clearToken(flagTokenPath); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "session ended")
		return nil
	},
}

var sessionSearchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search within the session; no keyword goes back to the popular list",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		keyword := ""
		if len(args) == 1 {
			keyword = args[0]
		}
		payload := map[string]string{"keyword": keyword}
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodPut, flagAPI+"/session/search", token, payload, nil); err != nil {
			return err
		}
		st, err := fetchState(cmd, true)
		if err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), st.SearchResults)
		}
		printAnime(cmd.OutOrStdout(), visible(st))
		return nil
	},
}

func visible(st stateResponse) []models.Anime {
	if st.ListMode == "search_results" {
		return st.SearchResults
	}
	return st.Popular
}

func init() {
	sessionCmd.AddCommand(sessionStartCmd, sessionShowCmd, sessionSearchCmd, sessionEndCmd)
	rootCmd.AddCommand(sessionCmd)
}

// fetchState reads the session state; wait blocks until pending search and
// recommendation runs have landed.
func fetchState(cmd *cobra.Command, wait bool) (stateResponse, error) {
	token, err := sessionToken()
	if err != nil {
		return stateResponse{}, err
	}
	endpoint := flagAPI + "/session"
	if wait {
		endpoint += "?wait=true"
	}
	var st stateResponse
	if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodGet, endpoint, token, nil, &st); err != nil {
		return stateResponse{}, err
	}
	return st, nil
}

func printRecommendations(cmd *cobra.Command, st stateResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nRecommended for you:")
	if st.RecommendationsError != "" {
		fmt.Fprintf(out, "(unavailable: %s)\n", st.RecommendationsError)
		return
	}
	printAnime(out, st.Recommendations)
}
