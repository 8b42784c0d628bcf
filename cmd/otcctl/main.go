package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"otc-exchange/internal/config"
	"otc-exchange/internal/pda"
)

var RootCmd = &cobra.Command{
	Use:          "otcctl",
	Short:        "Operator tooling for the OTC swap venue.",
	SilenceUsage: true,
}

var programID string

func init() {
	RootCmd.PersistentFlags().StringVar(&programID, "program", config.DefaultProgramID, "Program id the addresses are derived under")
	RootCmd.AddCommand(deriveCmd, migrateCmd)
}

func deriver() (pda.Deriver, error) {
	program, err := pda.ParseAddress(programID)
	if err != nil {
		return pda.Deriver{}, err
	}
	return pda.NewDeriver(program), nil
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
