package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/njrobinson96/InvoiceNinja2/billing"
	"github.com/njrobinson96/InvoiceNinja2/controller"
	"github.com/njrobinson96/InvoiceNinja2/mail"
	"github.com/njrobinson96/InvoiceNinja2/model"
	"github.com/njrobinson96/InvoiceNinja2/payment"
	"github.com/njrobinson96/InvoiceNinja2/recurring"
	"github.com/njrobinson96/InvoiceNinja2/schedule"
)

const usage = `usage: invoicing [-config config.toml] <command> [flags]

commands:
  serve         run the HTTP API and the recurring invoice scheduler
  generate      generate due recurring invoices once (-date, -owner)
  sweep         mark past due invoices as overdue
  migrate       apply SQL migrations (up|down)
  create-user   create an account (-email, -name, -password)
`

type app struct {
	cfg    *model.Config
	store  *model.Store
	logger *slog.Logger
	svc    *billing.Service
	engine *recurring.Engine
}

func newApp(cfg *model.Config) (*app, error) {
	logger := controller.NewLogger(cfg.Mode)
	slog.SetDefault(logger)

	store, err := model.InitDatabase(cfg)
	if err != nil {
		return nil, err
	}

	var sender mail.Sender
	if cfg.MailAPIKey != "" {
		sender = mail.NewMailjetSender(cfg.MailAPIKey, cfg.MailSecret, cfg.MailFromAddress, cfg.MailFromName)
	} else {
		logger.Warn("no mail API key configured, emails are only logged")
		sender = &mail.LogSender{Logger: logger}
	}
	var payments payment.Processor
	if cfg.StripeSecretKey != "" {
		payments = payment.NewStripe(cfg.StripeSecretKey)
	}

	svc := billing.NewService(store, sender, payments, logger)
	svc.FrontendURL = cfg.FrontendURL
	svc.Currency = cfg.Currency
	svc.SendTimeout = cfg.SendTimeout()

	engine := recurring.NewEngine(store, svc, logger, recurring.Options{
		Workers:     cfg.GenerationWorkers,
		SendTimeout: cfg.SendTimeout(),
		Currency:    cfg.Currency,
	})
	return &app{cfg: cfg, store: store, logger: logger, svc: svc, engine: engine}, nil
}

func (a *app) serve(ctx context.Context) error {
	sched := &recurring.Scheduler{
		Engine:   a.engine,
		Interval: a.cfg.SchedulerInterval(),
		Logger:   a.logger.With("component", "scheduler"),
		Maintenance: func(ctx context.Context, now time.Time) error {
			return model.RunMaintenance(ctx, a.store, a.logger, now)
		},
	}
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("scheduler exited", "error", err)
		}
	}()
	a.logger.Info("starting server", "port", a.cfg.Port, "mode", a.cfg.Mode)
	return controller.NewController(ctx, controller.Deps{
		Store:   a.store,
		Billing: a.svc,
		Engine:  a.engine,
		Logger:  a.logger,
	})
}

func (a *app) generate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	date := fs.String("date", "", "reference date YYYY-MM-DD (default today)")
	owner := fs.Uint("owner", 0, "only generate for this owner id")
	_ = fs.Parse(args)

	ref := time.Now()
	if *date != "" {
		d, err := time.Parse(time.DateOnly, *date)
		if err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
		ref = schedule.Day(d)
	}

	var (
		report *recurring.Report
		err    error
	)
	if *owner != 0 {
		report, err = a.engine.GenerateDueForOwner(ctx, uint(*owner), ref)
	} else {
		report, err = a.engine.GenerateDue(ctx, ref)
	}
	if err != nil {
		return err
	}
	for _, r := range report.Results {
		switch {
		case r.Err != nil:
			fmt.Printf("template %d: error: %v\n", r.TemplateID, r.Err)
		case r.Skipped:
			fmt.Printf("template %d: skipped (%s)\n", r.TemplateID, r.SkipReason)
		default:
			fmt.Printf("template %d: invoice %s for %s\n", r.TemplateID, r.Invoice.Number, r.OccurrenceDate.Format(time.DateOnly))
		}
	}
	fmt.Printf("run %s: %d generated, %d failed\n", report.RunID, len(report.Generated()), len(report.Failed()))
	if n := len(report.Failed()); n > 0 {
		return fmt.Errorf("%d templates failed", n)
	}
	return nil
}

func (a *app) sweep(ctx context.Context) error {
	n, err := a.store.SweepOverdue(ctx, time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("%d invoices marked overdue\n", n)
	return nil
}

func (a *app) createUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	email := fs.String("email", "", "login email")
	name := fs.String("name", "", "full name")
	business := fs.String("business", "", "business name printed on invoices")
	password := fs.String("password", os.Getenv("USER_PASSWORD"), "password (or USER_PASSWORD)")
	_ = fs.Parse(args)
	if *password == "" {
		return errors.New("a password is required")
	}
	u := &model.User{Email: *email, FullName: *name, BusinessName: *business}
	if err := a.store.CreateUser(ctx, u, *password); err != nil {
		return err
	}
	fmt.Printf("created user %d (owner %d)\n", u.ID, u.OwnerID)
	return nil
}

func runMigrations(cfg *model.Config, args []string) error {
	dir, dsn := migrationsDir(), migrateDSN(cfg)
	if dir == "" {
		return errors.New("build with -tags postgres or -tags sqlite to run migrations")
	}
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	direction := "up"
	if len(args) > 0 {
		direction = args[0]
	}
	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	default:
		return fmt.Errorf("unknown migrate direction %q", direction)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no change")
		return nil
	}
	return err
}

func run() error {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cmd == "migrate" {
		return runMigrations(cfg, args)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.store.Close()

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "generate":
		return a.generate(ctx, args)
	case "sweep":
		return a.sweep(ctx)
	case "create-user":
		return a.createUser(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
