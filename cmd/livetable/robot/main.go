// The robot is a test harness: it wires the full client against a real
// backend and plays random bets so the reconciliation path can be exercised
// end to end.
package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frankieli/livetable/internal/config"
	"github.com/frankieli/livetable/internal/modules/balance"
	bettingdomain "github.com/frankieli/livetable/internal/modules/betting/domain"
	bettingUC "github.com/frankieli/livetable/internal/modules/betting/usecase"
	mirrordomain "github.com/frankieli/livetable/internal/modules/mirror/domain"
	mirrorDB "github.com/frankieli/livetable/internal/modules/mirror/repository/db"
	mirrorMem "github.com/frankieli/livetable/internal/modules/mirror/repository/memory"
	mirrorRedis "github.com/frankieli/livetable/internal/modules/mirror/repository/redis"
	rounddomain "github.com/frankieli/livetable/internal/modules/round/domain"
	"github.com/frankieli/livetable/internal/modules/round/store"
	"github.com/frankieli/livetable/internal/modules/session"
	"github.com/frankieli/livetable/internal/modules/throttle"
	"github.com/frankieli/livetable/internal/modules/transport/rest"
	"github.com/frankieli/livetable/internal/modules/transport/ws"
	"github.com/frankieli/livetable/pkg/admin"
	"github.com/frankieli/livetable/pkg/logger"
)

func main() {
	token := flag.String("token", "", "session token (falls back to LIVETABLE_TOKEN)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		panic(err)
	}

	if cfg.Log.File != "" {
		logger.InitWithFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
	} else {
		logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	defer logger.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	holder := session.NewHolder()
	if *token != "" {
		holder.Set(*token)
	} else if env := os.Getenv("LIVETABLE_TOKEN"); env != "" {
		holder.Set(env)
	}

	mirror := buildMirror(ctx, cfg)
	st := store.New(cfg.Backend.TableID, store.WithMirror(mirror))

	client := rest.NewClient(cfg.Backend.APIBaseURL, holder)
	chips := bettingdomain.NewChips(cfg.Betting.Chips)
	pipeline := bettingUC.NewPipeline(st, client, chips,
		bettingUC.WithAutoAcceptOdds(cfg.Betting.AutoAcceptOdds),
		bettingUC.WithOnConfirmed(func(bets []rounddomain.Bet) {
			logger.Info(ctx).Int("zones", len(bets)).Msg("🎉 bets confirmed")
		}),
	)

	refresher := balance.NewRefresher(client, st)
	st.RegisterEventHandler(refresher.HandleEvent)

	guard := throttle.NewGuard()
	poller := rest.NewPoller(client, st, guard, pipeline, refresher, rest.Intervals{
		Lobby:   config.Interval(cfg.Polling.LobbySeconds),
		Odds:    config.Interval(cfg.Polling.OddsSeconds),
		Wagers:  config.Interval(cfg.Polling.WagersSeconds),
		Balance: config.Interval(cfg.Polling.BalanceSeconds),
	})
	pushClient := ws.NewClient(cfg.Backend.WSURL, holder, st)

	go poller.Run(ctx)
	go pushClient.Run(ctx)

	if cfg.Admin.Port != "" {
		adminSrv := admin.NewServer(st, holder)
		go func() {
			if err := adminSrv.Run(cfg.Admin.Port); err != nil {
				logger.Error(ctx).Err(err).Msg("admin server failed")
			}
		}()
		defer func() { _ = adminSrv.Shutdown(context.Background()) }()
	}

	// Restore any mid-round context once the first lobby poll has landed.
	go func() {
		time.Sleep(2 * time.Second)
		if err := st.Restore(ctx); err != nil {
			logger.Warn(ctx).Err(err).Msg("mirror restore failed")
		}
	}()

	st.RegisterEventHandler(func(ev store.Event) {
		if ev.Type != store.EventNewRound {
			return
		}
		go playRound(ctx, st, pipeline, chips)
	})

	logger.Info(ctx).
		Str("table_id", cfg.Backend.TableID).
		Str("api", cfg.Backend.APIBaseURL).
		Msg("🤖 robot started")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	logger.Info(ctx).Msg("🛑 robot stopping")
}

// playRound waits a moment into the betting window, stages a random bet and
// confirms it.
func playRound(ctx context.Context, st *store.Store, pipeline *bettingUC.Pipeline, chips *bettingdomain.Chips) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(2+rand.Intn(5)) * time.Second):
	}

	snap := st.Snapshot()
	if snap.Status != rounddomain.StatusBettingOpen || snap.BettingClosed() {
		return
	}

	zones := []string{"M", "W"}
	zone := zones[rand.Intn(len(zones))]
	denominations := chips.Denominations()
	chip := denominations[rand.Intn(len(denominations)/2+1)]

	if err := pipeline.StageBet(ctx, zone, chip); err != nil {
		logger.Warn(ctx).Str("reason", bettingdomain.Reason(err)).Msg("stage rejected")
		return
	}
	if err := pipeline.ConfirmBets(ctx); err != nil {
		logger.Warn(ctx).Str("reason", bettingdomain.Reason(err)).Msg("confirm rejected")
	}
}

// buildMirror selects the mirror repository per config, falling back to
// memory when the durable backends are unreachable.
func buildMirror(ctx context.Context, cfg *config.ClientConfig) mirrordomain.Repository {
	switch cfg.Mirror.RepoType {
	case "db":
		dialector := gorm.Dialector(sqlite.Open(cfg.Mirror.SQLitePath))
		if cfg.Mirror.Database.Host != "" && os.Getenv("MIRROR_DB_DRIVER") == "postgres" {
			dialector = postgres.Open(cfg.Mirror.Database.DSN())
		}
		gdb, err := gorm.Open(dialector, &gorm.Config{Logger: logger.NewGormLogger()})
		if err != nil {
			logger.Warn(ctx).Err(err).Msg("db mirror unavailable, using memory")
			return mirrorMem.NewMirrorRepository()
		}
		repo, err := mirrorDB.NewMirrorRepository(gdb)
		if err != nil {
			logger.Warn(ctx).Err(err).Msg("db mirror migration failed, using memory")
			return mirrorMem.NewMirrorRepository()
		}
		return repo
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Mirror.Redis.Addr()})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn(ctx).Err(err).Msg("redis mirror unavailable, using memory")
			return mirrorMem.NewMirrorRepository()
		}
		return mirrorRedis.NewMirrorRepository(client, "livetable")
	default:
		return mirrorMem.NewMirrorRepository()
	}
}
