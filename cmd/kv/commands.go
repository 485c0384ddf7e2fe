package kv

import (
	"fmt"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if old, replaced, err := session.Map.Put(key, []byte(value)); err != nil {
				return err
			} else if replaced {
				fmt.Printf("updated successfully (old=%s)\n", old)
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if resp, ok, err := session.Map.Get(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, resp=%s\n", key, ok, resp)
			}
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:     "remove [key]",
		Aliases: []string{"del"},
		Short:   "Deletes a key value pair",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if old, ok, err := session.Map.Remove(key); err != nil {
				return err
			} else if ok {
				fmt.Printf("removed successfully (old=%s)\n", old)
			} else {
				fmt.Printf("key=%s not found\n", key)
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if ok, err := session.Map.ContainsKey(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v\n", key, ok)
			}
			return nil
		},
	}
	aboveCmd = &cobra.Command{
		Use:   "above [key]",
		Short: "Lists all entries with a greater key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inclusive, _ := cmd.Flags().GetBool("inclusive")
			refs, err := session.Map.Above(args[0], inclusive)
			if err != nil {
				return err
			}
			return printRefs(refs)
		},
	}
	belowCmd = &cobra.Command{
		Use:   "below [key]",
		Short: "Lists all entries with a smaller key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inclusive, _ := cmd.Flags().GetBool("inclusive")
			refs, err := session.Map.Below(args[0], inclusive)
			if err != nil {
				return err
			}
			return printRefs(refs)
		},
	}
	refCmd = &cobra.Command{
		Use:   "ref [key]",
		Short: "Prints the record reference of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if ref, ok, err := session.Map.GetRecordReference(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, ref=%d\n", key, ok, ref)
			}
			return nil
		},
	}
	derefCmd = &cobra.Command{
		Use:   "deref [ref]",
		Short: "Reads the value of a record reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("ref must be a number: %w", err)
			}
			if resp, ok, err := session.Map.GetByReference(ref); err != nil {
				return err
			} else {
				fmt.Printf("ref=%d, found=%v, resp=%s\n", ref, ok, resp)
			}
			return nil
		},
	}
	lenCmd = &cobra.Command{
		Use:   "len",
		Short: "Prints the number of entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(session.Map.Len())
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes all entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := session.Map.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
)

func init() {
	aboveCmd.Flags().Bool("inclusive", false, "Include the key itself")
	belowCmd.Flags().Bool("inclusive", false, "Include the key itself")
}

// printRefs prints one line per reference with the value it resolves to
func printRefs(refs *roaring64.Bitmap) error {
	it := refs.Iterator()
	for it.HasNext() {
		ref := it.Next()
		value, ok, err := session.Map.GetByReference(ref)
		if err != nil {
			return err
		}
		if ok {
			fmt.Printf("ref=%d, resp=%s\n", ref, value)
		}
	}
	fmt.Printf("%d entries\n", refs.GetCardinality())
	return nil
}
