package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"airspace-charge-auditor/cmd/auditor/config"
	"airspace-charge-auditor/internal/api"
	"airspace-charge-auditor/pkg/errors"
	"airspace-charge-auditor/pkg/logger"

	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the audit HTTP service",
	Long: `Serve exposes the audit over HTTP. Upload the schedule export as
schedule_file and the charge files as charge_files to POST /audit/eurocontrol.

Examples:
  auditor serve --addr :8080
  auditor serve --addr :9000 --cors-origins https://ops.example.com --max-upload-mb 64
  AUDITOR_ADDR=:8081 auditor serve --log-format json`,

	PreRunE: validateServeFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().StringSlice("cors-origins", []string{"http://localhost:3000"}, "comma-separated allowed CORS origins")
	serveCmd.Flags().Int64("max-upload-mb", 32, "maximum upload size in MB")
	addParsingFlags(serveCmd)
}

func validateServeFlags(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "bind_flags", err)
	}

	if _, err := config.CreateServerConfig(); err != nil {
		return err
	}
	_, err := config.CreateChargeParserConfig()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	serverConfig, err := config.CreateServerConfig()
	if err != nil {
		return err
	}

	service, err := config.CreateAuditService()
	if err != nil {
		return err
	}

	server, err := api.NewServer(serverConfig, service)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "server", serverConfig.Addr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "serve", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.WithComponent("cli").Info("Received shutdown signal")
	if err := server.Shutdown(context.Background()); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "shutdown", err)
	}
	return <-errCh
}
