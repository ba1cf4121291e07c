package apiserve

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ValentinKolb/dLock/api"
	cmdUtil "github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/ValentinKolb/dLock/lib/db/engines/maple"
	"github.com/ValentinKolb/dLock/lib/lockmgr"
	"github.com/ValentinKolb/dLock/lib/store"
	"github.com/ValentinKolb/dLock/lib/store/lstore"
	"github.com/ValentinKolb/dLock/lib/store/sqlstore"
	"github.com/ValentinKolb/dLock/lib/telemetry"
	"github.com/ValentinKolb/dLock/rpc/client"
	"github.com/ValentinKolb/dLock/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	apiConfig = &api.Config{}
	svcOpts   = lockmgr.DefaultOptions()

	// APICmd starts the REST api
	APICmd = &cobra.Command{
		Use:   "api",
		Short: "Start the lock REST api",
		Long: `Start the REST api for editors. Locks are kept in the store selected with --store:

  memory  in process, lost on restart, single instance only
  sqlite  sqlite file, single instance only
  rpc     a store served by "dlock serve", shared by any number of api instances

Flags can be set as environment variables DLOCK_<flag> (e.g. DLOCK_LEASE_DEFAULT=15m).
Authentication is configured with DLOCK_AUTH_JWT_SECRET, DLOCK_AUTH_ISSUER and DLOCK_AUTH_LEEWAY.
Without a secret the api trusts the X-User-ID, X-User-Email and X-User-Name headers.`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	cobra.OnInitialize(cmdUtil.InitConfig)

	key := "endpoint"
	APICmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the api will listen"))

	key = "store"
	APICmd.Flags().String(key, "memory", cmdUtil.WrapString("Where locks are kept (memory, sqlite, rpc)"))

	key = "sqlite-path"
	APICmd.Flags().String(key, "data/dlock.db", cmdUtil.WrapString("Database file of the sqlite store"))

	key = "lease-default"
	APICmd.Flags().Duration(key, 10*time.Minute, cmdUtil.WrapString("Lease of acquired and transferred locks"))

	key = "lease-overrides"
	APICmd.Flags().String(key, "", cmdUtil.WrapString("Per collection leases, e.g. 'magazine_issues=30m,pages=5m'"))

	key = "lock-groups"
	APICmd.Flags().String(key, "", cmdUtil.WrapString("Fields that share one lock, e.g. 'magazine_issues:basic-info=issue-metadata,magazine_issues:cover-config=issue-metadata'. An entry without 'collection:' applies to all collections"))

	key = "transferable"
	APICmd.Flags().Bool(key, true, cmdUtil.WrapString("Whether a user may move a lock from one of their tabs to another"))

	key = "transfer-grace"
	APICmd.Flags().Duration(key, 0, cmdUtil.WrapString("Refuse a transfer while the holding tab renewed the lock within this period (0 disables the check)"))

	key = "log-level"
	APICmd.Flags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	cmdUtil.SetupRPCClientFlags(APICmd, 100)
}

// processConfig converts flags and environment into the api and service configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	apiConfig.Endpoint = viper.GetString("endpoint")
	apiConfig.LogLevel = viper.GetString("log-level")
	if err := common.ValidateLogLevel(apiConfig.LogLevel); err != nil {
		return err
	}

	overrides, err := lockmgr.ParseLeaseOverrides(viper.GetString("lease-overrides"))
	if err != nil {
		return err
	}
	apiConfig.Leases = lockmgr.LeasePolicy{
		Default:   viper.GetDuration("lease-default"),
		Overrides: overrides,
	}
	if apiConfig.Leases.Default <= 0 {
		return fmt.Errorf("lease-default must be positive")
	}

	groups, err := lockmgr.ParseGroupMapping(viper.GetString("lock-groups"))
	if err != nil {
		return err
	}
	svcOpts.Groups = lockmgr.NewGroupResolver(groups)
	svcOpts.Transferable = viper.GetBool("transferable")
	svcOpts.TransferGrace = viper.GetDuration("transfer-grace")
	if svcOpts.TransferGrace < 0 {
		return fmt.Errorf("transfer-grace must not be negative")
	}

	apiConfig.Auth, err = api.LoadAuthConfigFromEnv()
	return err
}

// run opens the store and serves the api until SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	common.InitLoggers(apiConfig.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelCfg, err := telemetry.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	shutdown, err := telemetry.Setup(ctx, "dlock-api", otelCfg)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	st, closer, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	handler, err := api.NewHandler(lockmgr.NewLockService(st, svcOpts), *apiConfig)
	if err != nil {
		return err
	}

	var p common.ConfigPrinter
	p.Section("Locks")
	p.Field("Store", viper.GetString("store"))
	p.Field("Lock Groups", svcOpts.Groups.String())
	p.Field("Transferable", fmt.Sprintf("%t (grace %s)", svcOpts.Transferable, svcOpts.TransferGrace))
	fmt.Println(apiConfig.String() + p.String())

	return api.ListenAndServe(ctx, apiConfig.Endpoint, handler)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the store selected with --store
func openStore() (store.IStore, io.Closer, error) {
	switch viper.GetString("store") {
	case "memory":
		st := lstore.NewLocalStore(func() db.KVDB { return maple.NewMapleDB(nil) })
		return st, nopCloser{}, nil

	case "sqlite":
		path := viper.GetString("sqlite-path")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create data dir: %w", err)
		}
		st, err := sqlstore.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil

	case "rpc":
		s, err := cmdUtil.GetSerializer()
		if err != nil {
			return nil, nil, err
		}
		t, err := cmdUtil.GetTransport()
		if err != nil {
			return nil, nil, err
		}
		st, err := client.NewRPCStore(cmdUtil.GetShardID(), *cmdUtil.GetClientConfig(), t, s)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to store: %w", err)
		}
		return st, st, nil

	default:
		return nil, nil, fmt.Errorf("invalid store %s (must be one of memory, sqlite, rpc)", viper.GetString("store"))
	}
}
