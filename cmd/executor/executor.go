package executor

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"gridexecutor/src/connectors"
	"gridexecutor/src/controller"
	"gridexecutor/src/database"
	"gridexecutor/src/executors"
	"gridexecutor/src/repository"
	"gridexecutor/src/security"
	"gridexecutor/src/server"
	"gridexecutor/src/store"
)

type Executor struct{}

// Start wires the full engine stack and serves the control API until
// SIGINT or SIGTERM.
func (t *Executor) Start() error {
	config := executors.GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	apiKey, apiSecret, err := resolveCredentials(ctx, config)
	if err != nil {
		return err
	}

	logrus.WithFields(map[string]interface{}{
		"targetExchange": config.TargetExchange,
		"targetSymbol":   config.TargetSymbol,
		"strategyId":     config.StrategyID,
	}).Info("Starting grid executor")

	client := connectors.NewPhemexClient(apiKey, apiSecret, config.BaseURL)
	symbol := controller.NormalizeToUSDT(config.TargetSymbol)
	feed := connectors.NewFillFeed(config.WSBaseURL, apiKey, apiSecret, symbol, config.QueueSize)

	st := store.New(
		repository.NewStatusRepository(),
		repository.NewTradeRepository(),
		repository.NewOperationLogRepository(),
		config.QueueSize,
	)
	defer st.Close()

	engine, err := executors.NewEngine(
		config,
		controller.GetConfig(),
		client,
		st,
		feed,
		repository.NewExceptionRepository(),
	)
	if err != nil {
		logrus.WithError(err).Error("Failed to build engine")
		return err
	}

	if err := engine.Start(ctx); err != nil {
		logrus.WithError(err).Error("Failed to start engine")
		return err
	}

	// Blocks until shutdown signal.
	server.StartServer(server.GetConfig().Port, server.Router(engine, st, config.StrategyID))

	if err := engine.Stop(context.Background()); err != nil {
		logrus.WithError(err).Error("Engine shutdown failed")
		return err
	}

	return nil
}

// resolveCredentials prefers the encrypted database record and falls back
// to plain env vars for development setups.
func resolveCredentials(ctx context.Context, config executors.Config) (string, string, error) {
	cred, err := repository.NewCredentialRepository().GetByExchange(ctx, config.TargetExchange)
	if err != nil {
		return "", "", err
	}

	if cred == nil || cred.APIKeyHash == "" || cred.APISecretHash == "" {
		logrus.Warn("No stored credential, using PHEMEX_API_KEY/PHEMEX_API_SECRET env vars")
		return config.APIKey, config.APISecret, nil
	}

	if !cred.RunOnServer {
		logrus.Warn("Stored credential disabled (run_on_server=false), using env vars")
		return config.APIKey, config.APISecret, nil
	}

	apiKey, err := security.DecryptString(cred.APIKeyHash)
	if err != nil {
		logrus.WithError(err).Error("Failed to decrypt API Key")
		return "", "", err
	}
	apiSecret, err := security.DecryptString(cred.APISecretHash)
	if err != nil {
		logrus.WithError(err).Error("Failed to decrypt API Secret")
		return "", "", err
	}

	return apiKey, apiSecret, nil
}
