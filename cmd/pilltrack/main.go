package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pilltrack/pilltrack/internal/app"
	"github.com/pilltrack/pilltrack/internal/cli"
	"github.com/pilltrack/pilltrack/internal/config"
	"github.com/pilltrack/pilltrack/internal/medication"
	"github.com/pilltrack/pilltrack/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	// Handle subcommands before flag parsing
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "add":
			cli.HandleAddCommand(os.Args[2:])
			return
		case "list", "ls":
			cli.HandleListCommand()
			return
		case "take":
			cli.HandleMarkCommand("take", os.Args[2:], medication.StatusTaken)
			return
		case "skip":
			cli.HandleMarkCommand("skip", os.Args[2:], medication.StatusSkipped)
			return
		case "undo":
			cli.HandleUndoCommand()
			return
		case "status":
			cli.HandleStatusCommand()
			return
		case "report":
			cli.HandleReportCommand(os.Args[2:])
			return
		case "refill":
			cli.HandleRefillCommand(os.Args[2:])
			return
		case "export":
			cli.HandleExportCommand(os.Args[2:])
			return
		case "interactions":
			cli.HandleInteractionsCommand()
			return
		case "serve":
			flag.CommandLine.Parse(os.Args[2:])
			runServer()
			return
		case "help", "--help", "-h":
			cli.PrintHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("pilltrack version %s\n", version)
			return
		}
	}

	flag.Parse()
	runServer()
}

func runServer() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting pilltrack", zap.String("version", version))

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	application, err := app.New(cfg, st, logger, version)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}

	application.RunServer()
}
