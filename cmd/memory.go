package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or clear remembered solutions",
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered solutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openMemory(newAIClient())
		recs := store.All()
		if len(recs) == 0 {
			fmt.Println("memory is empty")
			return nil
		}
		for _, r := range recs {
			fmt.Printf("%s  %s  [%s]\n", r.CreatedAt.Format("2006-01-02 15:04"), r.Intent, r.ID)
		}
		fmt.Printf("%d entries\n", len(recs))
		return nil
	},
}

var memoryClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all remembered solutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := openMemory(newAIClient())
		n := store.Len()
		if err := store.Clear(); err != nil {
			return err
		}
		fmt.Printf("cleared %d entries\n", n)
		return nil
	},
}

func init() {
	memoryCmd.AddCommand(memoryListCmd)
	memoryCmd.AddCommand(memoryClearCmd)
	rootCmd.AddCommand(memoryCmd)
}
