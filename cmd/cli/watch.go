package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	flagWatchAddr   string
	flagWatchWS     bool
	flagWatchPretty bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream this session's events (TCP, or websocket with --ws)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		token, err := sessionToken()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		for {
			if flagWatchWS {
				err = runWebSocket(ctx, out, token)
			} else {
				err = runSyncTCP(ctx, out, flagWatchAddr, token)
			}
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "disconnected: %v\n", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second): // auto reconnect
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&flagWatchAddr, "addr", "127.0.0.1:7070", "TCP sync server address")
	watchCmd.Flags().BoolVar(&flagWatchWS, "ws", false, "use the websocket endpoint instead of TCP")
	watchCmd.Flags().BoolVar(&flagWatchPretty, "pretty", true, "pretty print JSON events")
	rootCmd.AddCommand(watchCmd)
}

func runSyncTCP(ctx context.Context, out io.Writer, addr, token string) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if _, err := fmt.Fprintln(conn, token); err != nil {
		return err
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		printEvent(out, sc.Bytes())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}

func runWebSocket(ctx context.Context, out io.Writer, token string) error {
	wsURL, err := websocketURL(flagAPI, "/ws", url.Values{"token": {token}})
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		printEvent(out, msg)
	}
}

func printEvent(out io.Writer, line []byte) {
	if !flagWatchPretty {
		fmt.Fprintln(out, string(line))
		return
	}
	var obj map[string]any
	if err := json.Unmarshal(line, &obj); err != nil {
		// not JSON? print raw
		fmt.Fprintln(out, string(line))
		return
	}
	b, _ := json.MarshalIndent(obj, "", "  ")
	fmt.Fprintln(out, string(b))
}
