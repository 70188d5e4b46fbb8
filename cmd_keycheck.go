package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scale-scanner.klederson.com/internal/events"
)

func keycheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keycheck",
		Short: "Validate configured bind keys and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()
			return rt.sinkWith(nil).Emit(events.Status("keys_valid", keycheckMessage(rt.keys.Len())))
		},
	}
}

func keycheckMessage(n int) string {
	if n == 1 {
		return "1 key loaded"
	}
	return fmt.Sprintf("%d keys loaded", n)
}
