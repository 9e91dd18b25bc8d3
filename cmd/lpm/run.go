package main

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/lpm/internal/config"
	"github.com/elys-network/lpm/internal/keeper"
	"github.com/elys-network/lpm/internal/types"
	"github.com/elys-network/lpm/internal/web"
)

var (
	runFlags struct {
		interval time.Duration
		simTick  int32
	}
	showFlags struct {
		limit int
	}
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the keeper loop and the dashboard until interrupted (executor)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.sim != nil && cmd.Flags().Changed("sim-tick") {
			if err := rt.sim.SetTick(config.PoolID, runFlags.simTick); err != nil {
				return err
			}
		}

		webPort := os.Getenv("WEB_PORT")
		if webPort == "" {
			webPort = "8080"
		}
		webServer, err := web.NewWebServer(web.Config{
			Port:     webPort,
			GRPCPort: os.Getenv("GRPC_PORT"),
			Store:    rt.store,
			Balances: rt.pools,
			Metrics:  rt.metrics.Handler(),
		})
		if err != nil {
			return err
		}
		webDone := make(chan struct{})
		go func() {
			defer close(webDone)
			log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting LPM web dashboard")
			if err := webServer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Web server stopped with error")
			}
		}()

		k, err := keeper.NewKeeper(keeper.Config{
			Manager:   rt.manager,
			Pools:     rt.pools,
			Router:    rt.router,
			ManagerID: rt.managerID,
			Executor:  rt.executor,
		})
		if err != nil {
			return err
		}

		interval := runFlags.interval
		if interval <= 0 {
			interval = config.Params.LoopInterval
		}
		k.RunLoop(ctx, interval)
		<-webDone
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the manager record and its recent receipts",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.record(cmd.Context())
		if err != nil {
			return err
		}
		receipts, err := rt.store.RecentReceipts(cmd.Context(), rec.ID.String(), showFlags.limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Manager  types.ManagerView        `json:"manager"`
			Receipts []types.OperationReceipt `json:"receipts"`
		}{rec.View(), receipts})
	},
}

func init() {
	runCmd.Flags().DurationVar(&runFlags.interval, "interval", 0, "keeper interval (defaults to LOOP_INTERVAL_SECONDS)")
	runCmd.Flags().Int32Var(&runFlags.simTick, "sim-tick", 0, "simulate mode only: current pool tick at startup")
	showCmd.Flags().IntVar(&showFlags.limit, "limit", 20, "number of receipts to print")

	rootCmd.AddCommand(runCmd, showCmd)
}
