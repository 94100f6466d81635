package keys

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"gridexecutor/src/database"
	"gridexecutor/src/model"
	"gridexecutor/src/repository"
	"gridexecutor/src/security"
)

type Keys struct{}

func printUsage() {
	fmt.Println("Available commands:")
	fmt.Println("  help                             Show this help message")
	fmt.Println("  shutdown                         Exit the application")
	fmt.Println("  set_key <exchange> <key> <secret>  Store encrypted API credentials")
	fmt.Println("  run_on <exchange>                Enable the stored credential")
	fmt.Println("  run_off <exchange>               Disable the stored credential")
	fmt.Println()
}

// Start runs the interactive credential management CLI.
func (t *Keys) Start() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	credRep := repository.NewCredentialRepository()

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)

	for {
		fmt.Print("cmd> ")

		if !reader.Scan() {
			return reader.Err()
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, " ")
		cmd := parts[0]

		switch cmd {

		case "shutdown":
			fmt.Println("Exiting CLI...")
			return nil

		case "help":
			printUsage()

		case "set_key":
			if len(parts) < 4 {
				printUsage()
				continue
			}
			exchange, key, secret := parts[1], parts[2], parts[3]

			encryptKey, err := security.EncryptString(key)
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt key")
				continue
			}

			encryptSecret, err := security.EncryptString(secret)
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt secret")
				continue
			}

			cred := &model.ExchangeCredential{
				Exchange:      exchange,
				APIKeyHash:    encryptKey,
				APISecretHash: encryptSecret,
				RunOnServer:   true,
			}

			if err := credRep.Upsert(ctx, cred); err != nil {
				logger.WithError(err).Error("Failed to store credential")
			}

		case "run_on", "run_off":
			if len(parts) < 2 {
				printUsage()
				continue
			}
			exchange := parts[1]

			cred, err := credRep.GetByExchange(ctx, exchange)
			if err != nil {
				logger.WithError(err).Error("Failed to get credential")
				continue
			}
			if cred == nil || cred.APIKeyHash == "" || cred.APISecretHash == "" {
				fmt.Println("No key set for exchange", exchange)
				continue
			}

			cred.RunOnServer = cmd == "run_on"

			if err := credRep.Upsert(ctx, cred); err != nil {
				logger.WithError(err).Error("Failed to update credential")
			}

		default:
			fmt.Println("Unknown command:", cmd)
			printUsage()
		}
	}
}
