package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"osusume/pkg/models"
)

var flagAnimeLimit int

type itemsResponse struct {
	Items []models.Anime `json:"items"`
}

var animeCmd = &cobra.Command{
	Use:   "anime",
	Short: "Query the catalog without a session",
}

var animePopularCmd = &cobra.Command{
	Use:   "popular",
	Short: "List popular titles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		q := url.Values{"limit": {strconv.Itoa(flagAnimeLimit)}}
		return listAnime(cmd, "/anime/popular?"+q.Encode())
	},
}

var animeSearchCmd = &cobra.Command{
	Use:   "search <keyword>",
	Short: "Find titles containing keyword (case-sensitive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{"q": {args[0]}, "limit": {strconv.Itoa(flagAnimeLimit)}}
		return listAnime(cmd, "/anime/search?"+q.Encode())
	},
}

var animeShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one title",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		var a models.Anime
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodGet, fmt.Sprintf("%s/anime/%d", flagAPI, id), "", nil, &a); err != nil {
			return err
		}
		if flagJSON {
			return printJSON(cmd.OutOrStdout(), a)
		}
		printAnime(cmd.OutOrStdout(), []models.Anime{a})
		return nil
	},
}

var animeCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of titles in the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp struct {
			Count int `json:"count"`
		}
		if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodGet, flagAPI+"/anime/count", "", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Count)
		return nil
	},
}

func init() {
	animeCmd.PersistentFlags().IntVar(&flagAnimeLimit, "limit", 20, "maximum number of results")
	animeCmd.AddCommand(animePopularCmd, animeSearchCmd, animeShowCmd, animeCountCmd)
	rootCmd.AddCommand(animeCmd)
}

func listAnime(cmd *cobra.Command, path string) error {
	var resp itemsResponse
	if err := doJSON(cmd.Context(), newHTTPClient(), http.MethodGet, flagAPI+path, "", nil, &resp); err != nil {
		return err
	}
	if flagJSON {
		return printJSON(cmd.OutOrStdout(), resp.Items)
	}
	printAnime(cmd.OutOrStdout(), resp.Items)
	return nil
}
