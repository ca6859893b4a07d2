package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect and modify recorded state",
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources recorded in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <resource-id>",
	Short: "Show a resource's state record",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <resource-id>",
	Short: "Forget a resource without deleting it",
	Long:  `Removes the record from state so the resource is no longer managed. The underlying infrastructure is untouched.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	store, err := newStore()
	if err != nil {
		return err
	}

	st, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	ids := make([]string, 0, len(st.Records))
	for id := range st.Records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := st.Records[id]
		fmt.Printf("%s\t%s\t%s\n", id, rec.Type, rec.Status)
	}
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	store, err := newStore()
	if err != nil {
		return err
	}

	st, err := store.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	rec := st.Record(args[0])
	if rec == nil {
		return fmt.Errorf("resource %s not found in state", args[0])
	}

	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	store, err := newStore()
	if err != nil {
		return err
	}

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	ctx := cmd.Context()

	st, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if st.Record(args[0]) == nil {
		return fmt.Errorf("resource %s not found in state", args[0])
	}

	if err := store.Remove(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove %s from state: %w", args[0], err)
	}
	fmt.Printf("Removed %s from state.\n", args[0])
	return nil
}
