package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "markr",
	Short: "Classroom attendance backend using face recognition",
	Long: `Markr is the attendance backend for schools: teachers photograph the
classroom, the recognition pipeline proposes who is present, and a teacher
confirms before anything is recorded. It also serves rosters, reports,
analytics, and guardian SMS notifications.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
