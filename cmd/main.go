package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/apperr"
	"userpay-client/internal/cache"
	"userpay-client/internal/client"
	"userpay-client/internal/config"
	"userpay-client/internal/kafka"
	"userpay-client/internal/logger"
	"userpay-client/internal/metrics"
	"userpay-client/internal/models"
	"userpay-client/internal/reconcile"
	"userpay-client/internal/resolver"
	"userpay-client/internal/service"
	"userpay-client/internal/session"
	"userpay-client/internal/view"
)

const usage = `Usage: userpay [-c config] <command> [flags]

Commands:
  register   -email E -password P     create an account
  resend     -email E                 resend the verification email
  login      -email E [-password P]   sign in and store the token
  logout                              clear the stored token
  whoami                              show the signed-in user (offline)
  profile                             fetch the profile
  balance    [-currency C]            show a balance (NGN, BTC, ETH, USDT, USDC)
  topup      -amount A [-currency C]  top up a wallet
  history    [-currency C]            reconciled transaction summary
  send       -to U -amount A [-currency C] [-note N]
                                      two-phase transfer, prompts for password and code
  dashboard                           profile, balance and recent activity
`

// app зависимости команд
type app struct {
	wallet *service.WalletService
	render *view.Renderer
	in     *bufio.Reader
	out    io.Writer
	log    *logrus.Logger
}

func main() {
	os.Exit(run())
}

// run возвращает код выхода; отложенные Close успевают выполниться
func run() int {
	configPath := flag.String("c", "", "Path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	log := logger.NewCLI(cfg.Logger.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeStorage, err := newTokenStorage(cfg)
	if err != nil {
		log.Errorf("Failed to init token storage: %v", err)
		return 1
	}
	defer closeStorage()

	store := session.NewStore(storage, log)
	store.OnSignOut(func() {
		fmt.Fprintln(os.Stderr, "Signed out. Run `userpay login` to sign in again.")
	})
	if err := store.Restore(ctx); err != nil {
		log.Warnf("Failed to restore session: %v", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	defer metrics.LogSnapshot(registry, log)

	producer := kafka.NewProducer(
		cfg.Kafka.Brokers,
		cfg.Kafka.Topic,
		decimal.NewFromFloat(cfg.Kafka.TransferThreshold),
		log,
	)
	defer producer.Close()

	format := reconcile.NewFormatter(cfg.Dashboard.CurrencySymbol)
	res := resolver.New(
		client.New(cfg.API.BaseURL, cfg.API.Timeout, log),
		cache.NewRouteCache(cfg.Resolver.RouteMemoTTL),
		m,
		log,
	)

	a := &app{
		wallet: service.NewWalletService(
			store,
			res,
			reconcile.New(cfg.Dashboard.SummaryRows, format),
			producer,
			m,
			cfg.Dashboard.HistoryLimit,
			log,
		),
		render: view.NewRenderer(os.Stdout, format),
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		log:    log,
	}

	if err := a.dispatch(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		a.render.Error(err)
		return 1
	}
	return 0
}

func newTokenStorage(cfg *config.Config) (session.TokenStorage, func(), error) {
	switch cfg.Session.Store {
	case "redis":
		r := session.NewRedisStorage(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.TokenKey)
		return r, func() { _ = r.Close() }, nil
	case "memory":
		return session.NewMemoryStorage(), func() {}, nil
	case "file":
		return session.NewFileStorage(cfg.Session.TokenFile), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown token store %q", cfg.Session.Store)
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	currency := fs.String("currency", models.FiatCurrency, "currency code")
	amount := fs.String("amount", "", "amount")
	to := fs.String("to", "", "recipient username")
	note := fs.String("note", "", "transfer note")
	if err := fs.Parse(args); err != nil {
		return apperr.Validation(command, err.Error())
	}

	switch command {
	case "register":
		msg, err := a.wallet.Register(ctx, *email, *password)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, orDefault(msg, "Registration submitted. Check your email to verify the account."))

	case "resend":
		msg, err := a.wallet.ResendVerification(ctx, *email)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, orDefault(msg, "Verification email sent."))

	case "login":
		if *password == "" {
			*password = a.prompt("Password: ")
		}
		result, err := a.wallet.Login(ctx, *email, *password)
		if err != nil {
			return err
		}
		name := *email
		if result.User != nil && result.User.Username != "" {
			name = result.User.Username
		}
		fmt.Fprintf(a.out, "Logged in as %s\n", name)

	case "logout":
		return a.wallet.Logout(ctx)

	case "whoami":
		claims, ok := a.wallet.Whoami()
		if !ok {
			return apperr.New(apperr.KindAuthExpired, command, "not logged in or token is not readable")
		}
		fmt.Fprintf(a.out, "%s <%s>\n", orDefault(claims.Username, reconcile.MissingValue), orDefault(claims.Email, reconcile.MissingValue))
		if !claims.ExpiresAt.IsZero() {
			fmt.Fprintf(a.out, "Token expires %s\n", claims.ExpiresAt.Local().Format("Jan 2, 2006 15:04"))
		}

	case "profile":
		identity, err := a.wallet.Profile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "ID:       %s\nUsername: %s\nEmail:    %s\n", identity.ID, identity.Username, identity.Email)

	case "balance":
		balance, err := a.wallet.Balance(ctx, *currency)
		if err != nil {
			return err
		}
		a.render.Balance(balance)

	case "topup":
		value, err := parseAmount(command, *amount)
		if err != nil {
			return err
		}
		receipt, err := a.wallet.TopUp(ctx, *currency, value)
		if err != nil {
			return err
		}
		a.render.Receipt(models.NormalizeCurrency(*currency), receipt)

	case "history":
		summary, err := a.wallet.Summary(ctx, *currency)
		if err != nil {
			return err
		}
		a.render.Summary(summary, models.NormalizeCurrency(*currency))

	case "send":
		return a.send(ctx, *to, *amount, *currency, *note, *password)

	case "dashboard":
		d, err := a.wallet.Dashboard(ctx)
		a.render.Dashboard(d)
		return err

	default:
		fmt.Fprint(os.Stderr, usage)
		return apperr.Validation(command, fmt.Sprintf("unknown command %q", command))
	}

	return nil
}

// send ведет обе фазы перевода в одном запуске: ожидающие переводы не
// переживают процесс.
func (a *app) send(ctx context.Context, to, amount, currency, note, password string) error {
	value, err := parseAmount("send", amount)
	if err != nil {
		return err
	}
	if password == "" {
		password = a.prompt("Password: ")
	}

	pending, err := a.wallet.Send(ctx, models.TransferRequest{
		Recipient: to,
		Amount:    value,
		Password:  password,
		Note:      note,
		Currency:  currency,
	})
	if err != nil {
		return err
	}
	a.render.Pending(pending)

	for {
		code := a.prompt("Enter the confirmation code (empty to cancel): ")
		if code == "" {
			a.wallet.Abandon(pending.TransactionID)
			fmt.Fprintln(a.out, "Transfer cancelled.")
			return nil
		}

		result, err := a.wallet.Confirm(ctx, pending.TransactionID, code)
		if err == nil {
			a.render.Receipt(pending.Currency, result.Receipt)
			if result.Balance != nil {
				a.render.Balance(result.Balance)
			}
			return nil
		}
		if apperr.KindOf(err) != apperr.KindTransferDenied || ctx.Err() != nil {
			return err
		}
		a.render.Error(err)
	}
}

func (a *app) prompt(label string) string {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		a.log.Warnf("Failed to read input: %v", err)
	}
	return strings.TrimSpace(line)
}

func parseAmount(op, s string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperr.Validation(op, "amount must be a number")
	}
	return value, nil
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
