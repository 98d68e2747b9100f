package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/wardenbot/warden/internal/bot"
	"github.com/wardenbot/warden/internal/config"
	"github.com/wardenbot/warden/internal/db/sqlite"
	"github.com/wardenbot/warden/internal/detect"
	"github.com/wardenbot/warden/internal/event"
	"github.com/wardenbot/warden/internal/fingerprint"
	"github.com/wardenbot/warden/internal/history"
	"github.com/wardenbot/warden/internal/infra"
	"github.com/wardenbot/warden/internal/infrastructure/telegram"
	"github.com/wardenbot/warden/internal/lifecycle"
	"github.com/wardenbot/warden/internal/moderation"
	"github.com/wardenbot/warden/internal/observability"
	"github.com/wardenbot/warden/internal/trust"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatalln("cant load config")
	}
	log.SetFormatter(&config.WardenFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	rules, err := config.LoadRules(cfg.RulesPath)
	if err != nil {
		log.WithError(err).Fatalln("cant load rules")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx); err != nil {
		log.WithError(err).Fatalln("cant init observability")
	}

	client, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "warden.db")
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer client.Close()

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Fatalln("cant initialize bot api")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}
	defer botAPI.StopReceivingUpdates()

	service := bot.NewService(botAPI, client)
	ops := telegram.NewOperations(botAPI)

	hist := history.NewStore(cfg.Detection.HistoryRetention, cfg.Detection.HistoryMaxPerUser, client)
	calc := trust.NewCalculator(rules, cfg.Trust)
	scorer := trust.NewScorer(calc, client, cfg.Trust)
	detector := detect.NewDetector(cfg.Detection, rules, hist, calc)
	engine := fingerprint.NewEngine(cfg.Fingerprint, client)
	manager := moderation.NewManager(rules, client, ops)

	worker := event.NewWorker()
	pipeline := bot.NewPipeline(service, detector, scorer, engine, manager, ops, cfg.Fingerprint)
	pipeline.Attach(worker)

	runtime := lifecycle.NewRuntime()
	runtime.Register("history", hist)
	runtime.Register("event_worker", worker)
	runtime.Register("metrics", observability.NewMetricsServer(cfg.MetricsAddr))

	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start runtime")
	}

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateProcessor := bot.NewUpdateProcessor(service)

	infra.GoRecoverable(5, "update_loop", func() {
		updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)
		for {
			select {
			case err := <-errorChan:
				if err != nil && err != context.Canceled {
					log.WithError(err).Errorln("bot api get updates error")
				}
				cancel()
				return
			case update := <-updateChan:
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-ctx.Done():
				return
			}
		}
	})

	<-ctx.Done()
	log.Infoln("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := runtime.Stop(stopCtx); err != nil {
		log.WithError(err).Errorln("shutdown finished with errors")
	}
}
