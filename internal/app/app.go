// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: открывает хранилище, создаёт сервисы, обработчики,
// маршруты и собирает всё в один объект App.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"wallet-bot/internal/bot"
	"wallet-bot/internal/bot/filters"
	"wallet-bot/internal/cache"
	"wallet-bot/internal/callback"
	"wallet-bot/internal/common"
	"wallet-bot/internal/config"
	"wallet-bot/internal/convo"
	"wallet-bot/internal/db/postgres"
	"wallet-bot/internal/db/sqlite"
	"wallet-bot/internal/features/accounts"
	"wallet-bot/internal/features/admin"
	"wallet-bot/internal/features/deposit"
	"wallet-bot/internal/features/gifts"
	"wallet-bot/internal/features/ledger"
	"wallet-bot/internal/features/referral"
	"wallet-bot/internal/features/settings"
	"wallet-bot/internal/features/support"
	"wallet-bot/internal/features/withdraw"
	"wallet-bot/internal/httpserver"
	"wallet-bot/internal/jobs"
	"wallet-bot/internal/metrics"
	"wallet-bot/internal/store"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	Store     *store.Store
	Redis     *cache.Redis
	HTTP      *httpserver.Server
	BotAPI    *tgbotapi.BotAPI
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	common.Currency = cfg.CurrencyName
	loc := cfg.Location()
	m := metrics.Registry(cfg.MetricsNamespace)

	// === 1. Хранилище ===
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	payments, err := config.LoadPayments(cfg.PaymentsFile)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ошибка загрузки каталога платежей: %w", err)
	}

	a := &App{Store: st}
	checks := map[string]httpserver.Pinger{"store": st}

	// === 2. Состояния диалогов ===
	var (
		states  convo.StateStore
		sweeper *convo.MemoryStore
	)
	switch cfg.ConvoBackend {
	case config.ConvoBackendRedis:
		a.Redis = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := a.Redis.Ping(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		checks["redis"] = a.Redis
		states = convo.NewRedisStore(a.Redis)
	default:
		sweeper = convo.NewMemoryStore(nil)
		states = sweeper
	}
	machine := convo.NewMachine(states, cfg.ConvoTTL, m)

	// === 3. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	a.BotAPI = botAPI
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	sink := bot.NewSink(botAPI, m)

	var gate accounts.Gate
	if cfg.RequiredChannel != "" {
		gate = filters.NewSubscription(botAPI, cfg.RequiredChannel)
	}

	// === 4. Сервисы ===
	proc := ledger.NewProcessor(st, loc, cfg.CounterResetPolicy, m)
	registry := accounts.NewRegistry(st)
	giftRegistry := gifts.NewRegistry(st)
	settingsService := settings.NewService(st)
	referralService := referral.NewService(st, botAPI.Self.UserName)
	adminService := admin.NewService(st, cfg)

	// === 5. Обработчики ===
	accountHandler := accounts.NewHandler(registry, proc, machine, sink, gate, cfg.AdminID, cfg.RegistrationAnimation)
	depositHandler := deposit.NewHandler(proc, settingsService, payments, machine, sink, cfg.AdminID)
	withdrawHandler := withdraw.NewHandler(proc, machine, sink, cfg.AdminID, payments.Withdraw.Payeer.Rate)
	giftHandler := gifts.NewHandler(giftRegistry, proc, machine, sink, cfg.AdminID)
	referralHandler := referral.NewHandler(referralService, sink)
	supportHandler := support.NewHandler(settingsService, machine, sink, gate, cfg.AdminID)
	adminHandler := admin.NewHandler(adminService, registry, proc, giftRegistry, settingsService, sink, loc)

	// === 6. Маршруты ===
	router := bot.NewRouter(machine, registry, sink, m)
	router.SetAdminGate(adminHandler.Authorize)

	router.Command("start", accountHandler.HandleStart)
	router.Command("cancel", accountHandler.HandleCancel)
	router.Command("help", adminHandler.HandleHelp)

	router.Action(callback.MainMenu, accountHandler.HandleMainMenu)
	router.Action(callback.CreateAccount, accountHandler.HandleCreateAccount)
	router.Action(callback.CheckSub, accountHandler.HandleCheckSub)
	router.Action(callback.Cancel, accountHandler.HandleCancel)
	router.Action(callback.Ichancy, accountHandler.HandleIchancy)
	router.Action(callback.IchancyInfo, accountHandler.HandleIchancyInfo)
	router.Action(callback.IchancyDeposit, accountHandler.HandleIchancyDeposit)
	router.Action(callback.IchancyWithdraw, accountHandler.HandleIchancyWithdraw)

	router.Action(callback.DepositMenu, depositHandler.HandleMenu)
	router.Action(callback.DepositSyriatel, depositHandler.HandleSyriatel)
	router.Action(callback.DepositPayeer, depositHandler.HandlePayeer)
	router.Action(callback.DepositCwallet, depositHandler.HandleCwallet)
	router.Action(callback.DepositUSDT, depositHandler.HandleUSDT)
	router.Action(callback.DepositNetwork, depositHandler.HandleNetwork)
	router.Action(callback.DepositUSDTOK, depositHandler.HandleUSDTConfirm)
	router.Action(callback.DepositSham, depositHandler.HandleSham)

	router.Action(callback.WithdrawMenu, withdrawHandler.HandleMenu)
	router.Action(callback.WithdrawSyriatel, withdrawHandler.HandleSyriatel)
	router.Action(callback.WithdrawPayeer, withdrawHandler.HandlePayeer)
	router.Action(callback.WithdrawUSDT, withdrawHandler.HandleUSDT)
	router.Action(callback.WithdrawBemo, withdrawHandler.HandleBemo)
	router.Action(callback.WithdrawConfirm, withdrawHandler.HandleConfirm)

	router.Action(callback.Referral, referralHandler.HandleMenu)
	router.Action(callback.ReferralLink, referralHandler.HandleLink)
	router.Action(callback.ReferralInfo, referralHandler.HandleInfo)
	router.Action(callback.ReferralStats, referralHandler.HandleStats)

	router.Action(callback.GiftRedeem, giftHandler.HandleRedeem)
	router.Action(callback.GiftSend, giftHandler.HandleSend)
	router.Action(callback.GiftConfirm, giftHandler.HandleConfirm)

	router.Action(callback.Support, supportHandler.HandleSupport)
	router.Action(callback.Contact, supportHandler.HandleContact)
	router.Action(callback.Terms, supportHandler.HandleTerms)

	// Админ: кнопки
	router.Action(callback.ApproveDeposit, depositHandler.HandleApprove)
	router.Action(callback.RejectDeposit, depositHandler.HandleReject)
	router.Action(callback.DepositBonus, depositHandler.HandleBonus)
	router.Action(callback.DepositNoBonus, depositHandler.HandleNoBonus)
	router.Action(callback.SupportReply, supportHandler.HandleReply)
	router.Action(callback.SetCredentials, accountHandler.HandleSetCredentials)
	router.Action(callback.GenerateCodes, giftHandler.HandleGenerate)

	// Админ: команды
	adminCommands := map[string]bot.HandlerFunc{
		"login":          adminHandler.HandleLogin,
		"logout":         adminHandler.HandleLogout,
		"broadcast":      adminHandler.HandleBroadcast,
		"send":           adminHandler.HandleSend,
		"adduser":        adminHandler.HandleAddUser,
		"deluser":        adminHandler.HandleDelUser,
		"users":          adminHandler.HandleUsers,
		"history":        adminHandler.HandleHistory,
		"ban":            adminHandler.HandleBan,
		"unban":          adminHandler.HandleUnban,
		"addbalance":     adminHandler.HandleAddBalance,
		"deductbalance":  adminHandler.HandleDeductBalance,
		"listpredefined": adminHandler.HandleListPredefined,
		"addpredefined":  adminHandler.HandleAddPredefined,
		"delpredefined":  adminHandler.HandleDelPredefined,
		"setpayaddr":     adminHandler.HandleSetPayAddr,
		"setcontactaddr": adminHandler.HandleSetContactAddr,
		"giftcode":       adminHandler.HandleGiftCode,
		"giftcodes":      adminHandler.HandleGiftCodes,
	}
	for name, fn := range adminCommands {
		router.AdminCommand(name, fn)
	}

	router.Fallback(accountHandler.HandleMainMenu)

	a.Bot = bot.New(botAPI, botAPI.Self.UserName, cfg, router, m)

	// === 7. Планировщик задач ===
	a.Scheduler = jobs.NewScheduler(loc, m)
	if cfg.CounterResetPolicy == config.CounterResetDaily {
		if err := a.Scheduler.AddCounterReset(ctx, cfg.CounterResetCron, proc); err != nil {
			a.Close()
			return nil, err
		}
	}
	if sweeper != nil {
		if err := a.Scheduler.AddSweep(sweeper); err != nil {
			a.Close()
			return nil, err
		}
	}

	// === 8. Метрики и /healthz ===
	if cfg.MetricsAddr != "" {
		a.HTTP = httpserver.New(cfg.MetricsAddr, checks)
	}

	log.WithFields(log.Fields{
		"db":       st.Dialect().String(),
		"convo":    cfg.ConvoBackend,
		"channel":  cfg.RequiredChannel,
		"counters": cfg.CounterResetPolicy,
	}).Info("Приложение собрано")
	return a, nil
}

// Run запускает бота, планировщик и HTTP-сервер. Блокирует до отмены ctx
// и ждёт, пока обработчики апдейтов закончат работу.
func (a *App) Run(ctx context.Context) {
	a.Scheduler.Start()

	var wg sync.WaitGroup
	if a.HTTP != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.HTTP.Start(); err != nil {
				log.WithError(err).Error("HTTP-сервер метрик упал")
			}
		}()
	}

	a.Bot.Start(ctx)
	a.Bot.Wait()

	a.Scheduler.Stop()
	if a.HTTP != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.HTTP.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("HTTP-сервер остановлен с ошибкой")
		}
	}
	wg.Wait()
}

// Close освобождает ресурсы: лимитер, хранилище, Redis.
func (a *App) Close() {
	if a.Bot != nil {
		a.Bot.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия хранилища")
		}
	}
}

// openStore открывает базу выбранного драйвера.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	var (
		conn    *sql.DB
		dialect store.Dialect
		err     error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		conn, err = postgres.Open(ctx, cfg)
		dialect = store.Postgres
	default:
		conn, err = sqlite.Open(ctx, cfg.SQLitePath)
		dialect = store.SQLite
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	return store.New(conn, dialect), nil
}
