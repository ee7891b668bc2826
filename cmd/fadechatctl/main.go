// fadechatctl inspects and maintains a user's local chat data without
// going through the daemon: it opens the same SQLite store directly.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fadeline/chat/internal/session"
	"github.com/fadeline/chat/internal/store"
	"github.com/spf13/cobra"
)

var (
	userFlag string
	jsonFlag bool
)

func main() {
	root := &cobra.Command{
		Use:           "fadechatctl",
		Short:         "Inspect and maintain local chat data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&userFlag, "user", "", "user id (overrides config default)")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")

	root.AddCommand(statsCmd(), pendingCmd(), unreadCmd(), searchCmd(), cleanCmd(), wipeCmd(), loginCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func resolveUser() (string, error) {
	userID := session.Resolve(userFlag)
	if err := session.ValidateUserID(userID); err != nil {
		return "", err
	}
	return userID, nil
}

func openStore() (*store.DB, string, error) {
	userID, err := resolveUser()
	if err != nil {
		return nil, "", err
	}
	db, err := store.Open(session.DBPath(userID))
	if err != nil {
		return nil, "", err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, userID, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store counts and size",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, userID, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			s, err := db.Stats()
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(s)
			}
			fmt.Printf("User:          %s\n", userID)
			fmt.Printf("Conversations: %d\n", s.Conversations)
			fmt.Printf("Messages:      %d\n", s.Messages)
			fmt.Printf("Pending:       %d\n", s.PendingMessages)
			fmt.Printf("Size:          %d KB\n", s.TotalSizeKB)
			return nil
		},
	}
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued and failed outgoing messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, userID, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			queued, err := db.PendingOutbox()
			if err != nil {
				return err
			}
			failed, err := db.FailedOutbox()
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]any{
					"queued": queued,
					"failed": failed,
				})
			}
			if len(queued) == 0 && len(failed) == 0 {
				fmt.Printf("No pending messages for %s.\n", userID)
				return nil
			}
			for _, e := range queued {
				fmt.Printf("%-8s %s -> %s  %q  (retries: %d)\n",
					e.Status, time.UnixMilli(e.CreatedAt).Format(time.RFC3339), e.ReceiverID, e.Content, e.Retries)
			}
			for _, e := range failed {
				fmt.Printf("%-8s %s -> %s  %q  (retries: %d)\n",
					e.Status, time.UnixMilli(e.CreatedAt).Format(time.RFC3339), e.ReceiverID, e.Content, e.Retries)
			}
			return nil
		},
	}
}

func unreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Show the total unread message count",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := db.UnreadTotal()
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]int{"unread": n})
			}
			fmt.Println(n)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var conversation string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over stored messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			hits, err := db.SearchMessages(args[0], conversation, limit)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(hits)
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%s  %s  %s\n",
					time.UnixMilli(h.Message.CreatedAt).Format(time.RFC3339),
					h.Message.ConversationID, h.Snippet)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "limit to one conversation")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	return cmd
}

func cleanCmd() *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Purge messages older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			purged, err := db.CleanOldData(maxAge)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(map[string]int64{"purged": purged})
			}
			fmt.Printf("Purged %d messages.\n", purged)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 30*24*time.Hour, "retention window")
	return cmd
}

func wipeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all local chat data for the user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to wipe without --yes")
			}
			db, userID, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.ClearAll(); err != nil {
				return err
			}
			fmt.Printf("All chat data wiped for %s.\n", userID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}

func loginCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the API token for the user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := resolveUser()
			if err != nil {
				return err
			}
			if token == "" {
				return fmt.Errorf("--token is required")
			}
			if err := session.EnsureDir(userID); err != nil {
				return err
			}
			if err := session.SaveToken(userID, token); err != nil {
				return err
			}
			fmt.Printf("Token stored for %s.\n", userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the API")
	return cmd
}
