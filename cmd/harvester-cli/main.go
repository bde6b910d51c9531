// Harvester CLI — инструмент командной строки для операторского API воркера.
//
// Использование:
//
//	harvester [--api-url URL] [--secret SECRET] [--json] <command> [flags]
//
// Команды:
//
//	ping   Проверка доступности и подписи
//	stats  Счётчики tasks по статусам
//	task   Постановка и просмотр tasks
//
// Секрет по умолчанию берётся из WORKER_SHARED_SECRET.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Harvester/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var secret string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvester CLI — browser automation worker tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8082", "Worker API URL")
	rootCmd.PersistentFlags().StringVar(&secret, "secret", os.Getenv("WORKER_SHARED_SECRET"), "Shared secret for request signing")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, []byte(secret)) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewPingCmd(clientFn, outputFn),
		cli.NewStatsCmd(clientFn, outputFn),
		cli.NewTaskCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
