package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/ValentinKolb/dLock/cmd/apiserve"
	"github.com/ValentinKolb/dLock/cmd/kv"
	"github.com/ValentinKolb/dLock/cmd/lock"
	"github.com/ValentinKolb/dLock/cmd/serve"
	"github.com/ValentinKolb/dLock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dlock",
		Short: "collaborative edit locks",
		Long: fmt.Sprintf(`dlock (v%s)

Advisory, lease based edit locks for collaborative editors. Several users and
browser tabs can work on the same records without overwriting each other.

  dlock api     REST api for editors
  dlock serve   store server shared by several api instances
  dlock lock    lock operations against a running api
  dlock store   raw access to a store server`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dlock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dlock v%s\n", Version)
		},
	}
)

func init() {
	RootCmd.AddCommand(apiserve.APICmd)
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(kv.StoreCommands)
	RootCmd.AddCommand(versionCmd)

	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer of the store rpc (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport of the store rpc (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
