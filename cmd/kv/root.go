package kv

import (
	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/ValentinKolb/dLock/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore client.RPCStore

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:   "store",
		Short: "Inspect and benchmark a store served by \"dlock serve\"",
		Long: `Raw access to the documents of a store shard. Lock records live under
"lock/{collection}/{resourceKey}" and are JSON encoded.`,
		PersistentPreRunE:  setupStoreClient,
		PersistentPostRunE: closeStoreClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(StoreCommands, 100)

	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(putCmd)
	StoreCommands.AddCommand(putIfCmd)
	StoreCommands.AddCommand(delCmd)
	StoreCommands.AddCommand(delIfCmd)
	StoreCommands.AddCommand(scanCmd)
	StoreCommands.AddCommand(infoCmd)
	StoreCommands.AddCommand(benchCmd)
}

// setupStoreClient connects the RPC store client
func setupStoreClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcStore, err = client.NewRPCStore(
		util.GetShardID(),
		*util.GetClientConfig(),
		t,
		s,
	)
	return err
}

func closeStoreClient(_ *cobra.Command, _ []string) error {
	if rpcStore == nil {
		return nil
	}
	return rpcStore.Close()
}
