package lock

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/api"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	acquireCmd = &cobra.Command{
		Use:   "acquire [collection] [resourceId]",
		Short: "Acquire the edit lock of a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			res, err := apiClient.Acquire(ctx, args[0], args[1], api.AcquireRequest{
				TabID:     tabID(),
				LockGroup: viper.GetString("lock-group"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("acquired=%t, resourceKey=%s, expiresAt=%s\n", res.Success, res.ResourceKey, formatTime(res.LockExpiresAt))
			if !res.Success {
				fmt.Printf("message=%q, lockedBy=%s, multiTab=%t, transferable=%t\n",
					res.Message, holder(res.LockedBy, res.LockedByName, res.LockedByEmail), res.IsMultiTabConflict, res.AllowTransfer)
			}
			return nil
		},
	}

	extendCmd = &cobra.Command{
		Use:   "extend [collection] [resourceId]",
		Short: "Extend the lease of a held lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			tab, err := requiredTab("extend")
			if err != nil {
				return err
			}
			req := api.ExtendRequest{
				TabID:     tab,
				LockGroup: viper.GetString("lock-group"),
			}
			if minutes, _ := cmd.Flags().GetFloat64("minutes"); minutes != 0 {
				req.ExtendByMinutes = &minutes
			}

			res, err := apiClient.Extend(ctx, args[0], args[1], req)
			if err != nil {
				return err
			}
			fmt.Printf("extended=%t, message=%q, expiresAt=%s\n", res.Success, res.Message, formatTime(res.LockExpiresAt))
			return nil
		},
	}

	releaseCmd = &cobra.Command{
		Use:   "release [collection] [resourceId]",
		Short: "Release a held lock",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			tab, err := requiredTab("release")
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			res, err := apiClient.Release(ctx, args[0], args[1], api.ReleaseRequest{
				Reason:    reason,
				TabID:     tab,
				LockGroup: viper.GetString("lock-group"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("released=%t, message=%q\n", res.Success, res.Message)
			return nil
		},
	}

	transferCmd = &cobra.Command{
		Use:   "transfer [collection] [resourceId]",
		Short: "Move a lock held by another tab of the same user to --tab",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			tab, err := requiredTab("transfer")
			if err != nil {
				return err
			}
			res, err := apiClient.Transfer(ctx, args[0], args[1], api.TransferRequest{
				TabID:     tab,
				LockGroup: viper.GetString("lock-group"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("transferred=%t, message=%q, expiresAt=%s\n", res.Success, res.Message, formatTime(res.LockExpiresAt))
			return nil
		},
	}

	statusCmd = &cobra.Command{
		Use:   "status [collection] [resourceId]",
		Short: "Show who is editing a resource",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			st, err := apiClient.Status(ctx, args[0], args[1], viper.GetString("tab"), viper.GetString("lock-group"))
			if err != nil {
				return err
			}
			fmt.Printf("resourceKey=%s, locked=%t, canEdit=%t, hasLock=%t\n", st.ResourceKey, st.IsLocked, st.CanEdit, st.HasLock)
			if st.IsLocked {
				fmt.Printf("lockedBy=%s, tab=%s, expiresAt=%s\n",
					holder(st.LockedBy, st.LockedByName, st.LockedByEmail), st.LockedTabID, formatTime(st.LockExpiresAt))
			}
			return nil
		},
	}

	listCmd = &cobra.Command{
		Use:   "list [collection]",
		Short: "List the live locks of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext(cmd)
			defer cancel()

			locks, err := apiClient.List(ctx, args[0])
			if err != nil {
				return err
			}
			if len(locks) == 0 {
				fmt.Println("no locks")
				return nil
			}
			for _, l := range locks {
				expiresAt := l.LockExpiresAt
				fmt.Printf("%-30s %-40s tab=%-12s expiresAt=%s\n",
					l.ResourceKey, holder(l.LockedBy, l.LockedByName, l.LockedByEmail), l.LockedTabID, formatTime(&expiresAt))
			}
			return nil
		},
	}

	tokenCmd = &cobra.Command{
		Use:   "token [userId]",
		Short: "Sign an identity token for an api with DLOCK_AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("auth-jwt-secret")
			if secret == "" {
				return fmt.Errorf("--auth-jwt-secret (or DLOCK_AUTH_JWT_SECRET) is required")
			}
			ttl := viper.GetDuration("ttl")
			if ttl <= 0 {
				return fmt.Errorf("ttl must be positive")
			}

			now := time.Now()
			token, err := api.SignToken(secret, api.Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   args[0],
					Issuer:    viper.GetString("auth-issuer"),
					IssuedAt:  jwt.NewNumericDate(now),
					ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				},
				Email: viper.GetString("email"),
				Name:  viper.GetString("name"),
			})
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
)

func init() {
	extendCmd.Flags().Float64("minutes", 0, "Minutes to extend by (default of the api if 0)")
	releaseCmd.Flags().String("reason", "", "Reason logged with the release")

	tokenCmd.Flags().String("auth-jwt-secret", "", "HS256 secret of the api")
	tokenCmd.Flags().String("auth-issuer", "", "Issuer claim expected by the api")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "Lifetime of the token")
}
