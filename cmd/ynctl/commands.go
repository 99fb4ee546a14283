package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ynaut/reward-ledger/api"
	"github.com/ynaut/reward-ledger/catalog"
	"github.com/ynaut/reward-ledger/client"
	"github.com/ynaut/reward-ledger/ledger"
	"github.com/ynaut/reward-ledger/rewards"
)

// =============================================================================
// SESSION
// =============================================================================

func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	var password, displayName string

	cmd := &cobra.Command{
		Use:   "register <username> <email>",
		Short: "Create an account and log in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.Register(cmd.Context(), api.RegisterRequest{
				Username:    args[0],
				Email:       args[1],
				Password:    passwordOrEnv(password),
				DisplayName: displayName,
			})
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "Registered %s.\n", res.User.Username)
				printAccount(w, res.Account)
			})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or YN_PASSWORD)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	return cmd
}

func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <username-or-email>",
		Short: "Log in and cache the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.Login(cmd.Context(), args[0], passwordOrEnv(password))
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "Logged in as %s.\n", res.User.Username)
				printAccount(w, res.Account)
			})
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "password (or YN_PASSWORD)")
	return cmd
}

func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and clear the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(nil, func(w io.Writer) {
				fmt.Fprintln(w, "Logged out.")
			})
		},
	}
}

func NewWhoamiCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Validate the cached session and show the Account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			me, err := c.Resume(cmd.Context())
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(me, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", me.User.DisplayName, me.User.Username)
				printAccount(w, me.Account)
				fmt.Fprintf(w, "themes:      %s\n", joinThemes(me.AvailableThemes))
			})
		},
	}
}

// NewBalanceCommand reads the cache only; it never calls the server.
func NewBalanceCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the cached Account without contacting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			acct, ok := c.Cache().Account()
			if !ok {
				return opts.output(cmd).Success(nil, func(w io.Writer) {
					fmt.Fprintln(w, "balance: unknown (not logged in)")
				})
			}
			return opts.output(cmd).Success(acct, func(w io.Writer) {
				printAccount(w, acct)
				fmt.Fprintf(w, "synced:      %s\n", c.Cache().SyncedAt().Local().Format(time.RFC3339))
			})
		},
	}
}

// =============================================================================
// ENGAGEMENT
// =============================================================================

func NewLikeCommand(opts *RootOptions) *cobra.Command {
	var super bool

	cmd := &cobra.Command{
		Use:   "like <target-id>",
		Short: "Toggle a like on a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.ToggleLike(cmd.Context(), args[0], super)
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(res, func(w io.Writer) {
				verb := "Unliked"
				if res.Liked {
					verb = "Liked"
				}
				fmt.Fprintf(w, "%s %s. Balance: %s YN\n", verb, res.TargetID, res.NewBalance)
			})
		},
	}

	cmd.Flags().BoolVar(&super, "super", false, "spend a super-like")
	return cmd
}

func NewPostCommand(opts *RootOptions) *cobra.Command {
	var req api.CreatePostRequest

	cmd := &cobra.Command{
		Use:   "post [content...]",
		Short: "Create a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			req.Content = strings.Join(args, " ")
			res, err := c.CreatePost(cmd.Context(), req)
			return printCreated(cmd, opts, res, err)
		},
	}

	cmd.Flags().StringVar(&req.ChannelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&req.MediaURL, "media-url", "", "media URL")
	cmd.Flags().StringVar(&req.MediaType, "media-type", "", "image or video")
	return cmd
}

func NewCommentCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <post-id> <body...>",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.CreateComment(cmd.Context(), args[0], strings.Join(args[1:], " "))
			return printCreated(cmd, opts, res, err)
		},
	}
}

func NewStoryCommand(opts *RootOptions) *cobra.Command {
	var mediaType string

	cmd := &cobra.Command{
		Use:   "story <media-url>",
		Short: "Share a story that expires after a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.CreateStory(cmd.Context(), api.CreateStoryRequest{MediaURL: args[0], MediaType: mediaType})
			return printCreated(cmd, opts, res, err)
		},
	}

	cmd.Flags().StringVar(&mediaType, "type", "image", "image or video")
	return cmd
}

func NewChannelCommand(opts *RootOptions) *cobra.Command {
	var req api.CreateChannelRequest

	cmd := &cobra.Command{
		Use:   "channel <name>",
		Short: "Create a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			req.Name = args[0]
			res, err := c.CreateChannel(cmd.Context(), req)
			return printCreated(cmd, opts, res, err)
		},
	}

	cmd.Flags().StringVar(&req.Description, "description", "", "channel description")
	cmd.Flags().BoolVar(&req.IsPrivate, "private", false, "make the channel private")
	return cmd
}

func NewSubscribeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <channel-id>",
		Short: "Join or leave a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.ToggleSubscription(cmd.Context(), args[0])
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(res, func(w io.Writer) {
				verb := "Left"
				if res.Subscribed {
					verb = "Joined"
				}
				fmt.Fprintf(w, "%s %s. Subscribers: %d\n", verb, res.ChannelID, res.SubscribersCount)
			})
		},
	}
}

func NewViewCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <story-id>",
		Short: "View a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			res, err := c.ViewStory(cmd.Context(), args[0])
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "Viewed %s. Views: %d\n", res.StoryID, res.ViewsCount)
			})
		},
	}
}

func printCreated(cmd *cobra.Command, opts *RootOptions, res rewards.Created, err error) error {
	if err != nil {
		return remoteErr(err)
	}
	return opts.output(cmd).Success(res, func(w io.Writer) {
		fmt.Fprintf(w, "Created %s %s. +%d YN, balance %s YN\n", res.Action, createdID(res), res.Reward, res.NewBalance)
	})
}

func createdID(res rewards.Created) string {
	switch {
	case res.Post != nil:
		return res.Post.ID
	case res.Comment != nil:
		return res.Comment.ID
	case res.Story != nil:
		return res.Story.ID
	case res.Channel != nil:
		return res.Channel.ID
	}
	return ""
}

// =============================================================================
// CATALOG & PURCHASES
// =============================================================================

func NewCatalogCommand(opts *RootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List purchasable items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			items, err := c.Catalog(cmd.Context(), catalog.Category(category))
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(items, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPRICE\tCATEGORY\tTITLE")
				for _, it := range items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.ID, it.Price, it.Category, it.Title)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only list one category (premium|cosmetic|bonus)")
	return cmd
}

func NewBuyCommand(opts *RootOptions) *cobra.Command {
	var (
		price int64
		key   string
	)

	cmd := &cobra.Command{
		Use:   "buy <item-id>",
		Short: "Buy a catalog item",
		Long: `Buy a catalog item.

Without --price the current catalog price is fetched and declared. A
declared price that no longer matches the catalog is refused.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}

			declared := ledger.YN(price)
			if price < 0 {
				items, err := c.Catalog(cmd.Context(), "")
				if err != nil {
					return remoteErr(err)
				}
				found := false
				for _, it := range items {
					if it.ID == args[0] {
						declared, found = it.Price, true
						break
					}
				}
				if !found {
					return fmt.Errorf("%w: %s", ledger.ErrUnknownItem, args[0])
				}
			}

			rcpt, err := c.Purchase(cmd.Context(), args[0], declared, key)
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(rcpt, func(w io.Writer) {
				fmt.Fprintf(w, "Bought %s for %s YN.\n", rcpt.Item.Title, rcpt.Item.Price)
				printAccount(w, rcpt.Account)
			})
		},
	}

	cmd.Flags().Int64Var(&price, "price", -1, "declared price (default: current catalog price)")
	cmd.Flags().StringVar(&key, "key", "", "idempotency key")
	return cmd
}

func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show the transaction journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			txs, err := c.Transactions(cmd.Context())
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(txs, func(w io.Writer) { printJournal(w, txs) })
		},
	}
}

func NewPurchasesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purchases",
		Short: "Show purchase history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.connect()
			if err != nil {
				return err
			}
			txs, err := c.Purchases(cmd.Context())
			if err != nil {
				return remoteErr(err)
			}
			return opts.output(cmd).Success(txs, func(w io.Writer) {
				if len(txs) == 0 {
					fmt.Fprintln(w, "No purchases yet.")
					return
				}
				printJournal(w, txs)
			})
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func printAccount(w io.Writer, a ledger.Account) {
	fmt.Fprintf(w, "balance:     %s YN\n", a.Balance)
	fmt.Fprintf(w, "premium:     %t\n", a.IsPremium)
	if a.IsVerified {
		fmt.Fprintf(w, "verified:    %s\n", a.VerificationColor)
	}
	fmt.Fprintf(w, "super-likes: %d\n", a.SuperLikesCount)
	if a.BoostActiveUntil != nil {
		fmt.Fprintf(w, "boost until: %s\n", a.BoostActiveUntil.Local().Format(time.RFC3339))
	}
}

func printJournal(w io.Writer, txs []ledger.Transaction) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tTYPE\tDELTA\tBALANCE\tREASON\tREF")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.CreatedAt.Local().Format(time.DateTime), tx.Type, tx.Delta, tx.BalanceAfter, tx.Reason, tx.ReferenceID)
	}
	tw.Flush()
}

func joinThemes(themes []ledger.Theme) string {
	s := make([]string, len(themes))
	for i, t := range themes {
		s[i] = string(t)
	}
	return strings.Join(s, ", ")
}

func passwordOrEnv(flag string) string {
	if flag != "" {
		return flag
	}
	return envOr("YN_PASSWORD", "")
}

// remoteErr turns a missing session into a command error; server refusals
// keep the default exit code.
func remoteErr(err error) error {
	if errors.Is(err, client.ErrNoSession) {
		return WrapExitError(ExitCommandError, "not logged in", err)
	}
	return err
}
