// Command mdictcat is a small inspection CLI over the mdict package: list
// keys, dump a record's payload, or print the record index as JSON.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/EricWvi/ldoce/internal/mderr"

	mdict "github.com/EricWvi/ldoce"
)

var (
	encodingFlag string
	noLZOFlag    bool
	verboseFlag  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mdictcat",
		Short: "Inspect MDict (.mdx/.mdd) dictionary archives",
	}
	root.PersistentFlags().StringVar(&encodingFlag, "encoding", "", "override the archive's declared encoding")
	root.PersistentFlags().BoolVar(&noLZOFlag, "no-lzo", false, "disable LZO1X block support")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log parse warnings to stderr")

	root.AddCommand(newKeysCmd(), newGetCmd(), newIndexCmd())
	return root
}

func openArchive(path string) (*mdict.Archive, error) {
	log := logrus.New()
	if !verboseFlag {
		log.SetOutput(os.Stderr)
		log.SetLevel(logrus.ErrorLevel)
	}
	return mdict.Open(path, mdict.Options{
		Encoding: encodingFlag,
		NoLZO:    noLZOFlag,
		Log:      logrus.NewEntry(log),
	})
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys <archive>",
		Short: "Print every key in the archive, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			for _, k := range a.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <archive> <key>",
		Short: "Print the payload(s) for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			key := args[1]
			if a.Kind() == mdict.MDD {
				key = mdict.TranslatePath(key)
				payloads, err := a.Lookup(key)
				if err != nil {
					return err
				}
				if len(payloads) == 0 {
					return fmt.Errorf("%w: %q", mderr.CorruptArchive, key)
				}
				for _, p := range payloads {
					cmd.OutOrStdout().Write(p)
				}
				return nil
			}

			texts, err := a.LookupText(key)
			if err != nil {
				return err
			}
			for _, t := range texts {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newIndexCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "index <archive>",
		Short: "Print the record index as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(args[0])
			if err != nil {
				return err
			}
			defer a.Close()

			idx, err := a.Index(verify)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(idx)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "re-decompress and checksum every record block")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mdictcat:", err)
		os.Exit(1)
	}
}
