package kv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dLock/lib/db"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the document of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, ok, err := rpcStore.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("key=%s, found=false\n", args[0])
				return nil
			}
			fmt.Printf("key=%s, found=true, version=%d, value=%s\n", doc.Key, doc.Version, doc.Value)
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes a document unconditionally",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := rpcStore.Put(cmd.Context(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("put successfully, version=%d\n", version)
			return nil
		},
	}
	putIfCmd = &cobra.Command{
		Use:   "put-if [key] [value] [expectedVersion]",
		Short: "Writes a document if its version matches (0 = must not exist)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("expectedVersion must be a number: %w", err)
			}
			version, err := rpcStore.PutIf(cmd.Context(), args[0], []byte(args[1]), expected)
			if err != nil {
				return err
			}
			fmt.Printf("put-if successfully, version=%d\n", version)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a document unconditionally",
		Long:  "Deletes a document unconditionally. Deleting a lock record force-releases the lock.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	delIfCmd = &cobra.Command{
		Use:   "del-if [key] [expectedVersion]",
		Short: "Deletes a document if its version matches",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("expectedVersion must be a number: %w", err)
			}
			if err := rpcStore.DeleteIf(cmd.Context(), args[0], expected); err != nil {
				return err
			}
			fmt.Println("del-if successfully")
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan [prefix]",
		Short: "Lists the documents whose key starts with prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			docs, err := rpcStore.Scan(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printDocuments(docs)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Shows information about the database of the shard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := rpcStore.GetDBInfo(cmd.Context())
			if err != nil {
				return err
			}
			features := make([]string, 0, len(info.SupportedFeatures))
			for _, f := range info.SupportedFeatures {
				features = append(features, f.String())
			}
			fmt.Printf("type=%s, entries=%d, sizeBytes=%d\n", info.DbType, info.Entries, info.SizeBytes)
			fmt.Printf("features=%s\n", strings.Join(features, ","))
			if info.Metadata != nil {
				fmt.Printf("metadata=%v\n", info.Metadata)
			}
			return nil
		},
	}
)

func init() {
	scanCmd.Flags().Int("limit", 0, "Maximum number of documents (0 for all)")
}

func printDocuments(docs []db.Document) {
	if len(docs) == 0 {
		fmt.Println("no documents")
		return
	}
	for _, doc := range docs {
		fmt.Printf("%s (version=%d): %s\n", doc.Key, doc.Version, doc.Value)
	}
}
