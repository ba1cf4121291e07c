package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/dLock/api"
	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	apiClient *api.Client

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations against a running api",
		Long: `Perform lock operations against a running "dlock api".

Authenticate either with --token (or DLOCK_TOKEN) or, against an api in development mode,
with --user, --email and --name. Every editor tab has its own --tab id. If none is given a
fresh id is generated and printed, pass it to later extend, release and status calls.`,
		PersistentPreRunE: setupLockClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	key := "api-url"
	LockCommands.PersistentFlags().String(key, "http://localhost:8080", util.WrapString("Base url of the lock api"))

	key = "token"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Bearer token sent to the api"))

	key = "user"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("User id sent as X-User-ID (development mode)"))

	key = "email"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Email sent as X-User-Email (development mode)"))

	key = "name"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Display name sent as X-User-Name (development mode)"))

	key = "tab"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Tab id of the caller. Generated by acquire if empty, required by extend, release and transfer"))

	key = "lock-group"
	LockCommands.PersistentFlags().String(key, "", util.WrapString("Field or group hint of the resource"))

	key = "request-timeout"
	LockCommands.PersistentFlags().Duration(key, 10*time.Second, util.WrapString("Timeout of one api request"))

	LockCommands.AddCommand(acquireCmd)
	LockCommands.AddCommand(extendCmd)
	LockCommands.AddCommand(releaseCmd)
	LockCommands.AddCommand(transferCmd)
	LockCommands.AddCommand(statusCmd)
	LockCommands.AddCommand(listCmd)
	LockCommands.AddCommand(tokenCmd)
	LockCommands.AddCommand(benchCmd)
}

// setupLockClient creates the api client from the flags
func setupLockClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	opts := []api.ClientOption{}
	if token := viper.GetString("token"); token != "" {
		opts = append(opts, api.WithToken(token))
	}
	if user := viper.GetString("user"); user != "" {
		opts = append(opts, api.WithIdentity(api.Identity{
			UserID:      user,
			Email:       viper.GetString("email"),
			DisplayName: viper.GetString("name"),
		}))
	}

	apiClient = api.NewClient(viper.GetString("api-url"), opts...)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// tabID returns the configured tab id or a new one, which is printed
func tabID() string {
	if tab := viper.GetString("tab"); tab != "" {
		return tab
	}
	tab := uuid.NewString()
	fmt.Printf("tab=%s (generated)\n", tab)
	return tab
}

// requiredTab returns --tab for operations that only the holding tab may perform
func requiredTab(op string) (string, error) {
	tab := viper.GetString("tab")
	if tab == "" {
		return "", fmt.Errorf("--tab is required for %s (use the tab printed by acquire)", op)
	}
	return tab, nil
}

// requestContext bounds one api call by the request timeout
func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), viper.GetDuration("request-timeout"))
}

// formatTime renders a nullable time for the terminal
func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

// holder renders the lock holder of a response
func holder(id, name, email string) string {
	switch {
	case id == "":
		return "-"
	case name != "" && email != "":
		return fmt.Sprintf("%s (%s, %s)", name, email, id)
	case name != "":
		return fmt.Sprintf("%s (%s)", name, id)
	default:
		return id
	}
}
