package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/antoniostano/viola/internal/config"
	"github.com/antoniostano/viola/internal/contacts"
	"github.com/antoniostano/viola/internal/dialer"
	"github.com/antoniostano/viola/internal/telephony"
)

type options struct {
	from           string
	contactsSource string
	campaign       string
	voiceURL       string
	statusCallback string
	rate           float64
}

func main() {
	opts, cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dialbatch: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "dialbatch: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return options{}, config.Config{}, err
	}

	var opts options
	flag.StringVar(&opts.from, "from", cfg.TwilioFrom, "origin number in E.164 format")
	flag.StringVar(&opts.contactsSource, "contacts", cfg.ContactsSource, "contact list: CSV file path or postgres:// URL")
	flag.StringVar(&opts.campaign, "campaign", "", "campaign filter for postgres contact sources")
	flag.StringVar(&opts.voiceURL, "voice-url", cfg.VoiceURL, "webhook URL placed calls are pointed at")
	flag.StringVar(&opts.statusCallback, "status-callback", cfg.StatusCallback, "optional status callback URL")
	flag.Float64Var(&opts.rate, "rate", cfg.DialRatePerMin, "requested calls per minute (clamped to the platform cap)")
	flag.Parse()

	if strings.TrimSpace(opts.from) == "" {
		return options{}, config.Config{}, fmt.Errorf("-from (or TWILIO_FROM_NUMBER) is required")
	}
	if strings.TrimSpace(opts.contactsSource) == "" {
		return options{}, config.Config{}, fmt.Errorf("-contacts (or CONTACTS_SOURCE) is required")
	}
	if strings.TrimSpace(opts.voiceURL) == "" {
		return options{}, config.Config{}, fmt.Errorf("-voice-url (or VOICE_WEBHOOK_URL) is required")
	}
	if opts.rate <= 0 {
		return options{}, config.Config{}, fmt.Errorf("-rate must be positive")
	}
	return opts, cfg, nil
}

func run(opts options, cfg config.Config) error {
	if err := cfg.RequireTelephony(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	list, err := loadContacts(ctx, opts)
	if err != nil {
		return err
	}

	client, err := telephony.NewClient(telephony.Config{
		AccountSID:     cfg.TwilioAccountSID,
		AuthToken:      cfg.TwilioAuthToken,
		From:           opts.from,
		VoiceURL:       opts.voiceURL,
		StatusCallback: opts.statusCallback,
	})
	if err != nil {
		return err
	}

	d, err := dialer.New(client, dialer.Config{RatePerMinute: opts.rate})
	if err != nil {
		return err
	}

	usable := contacts.Filter(list)
	fmt.Printf("dialing %d contacts at %.1f/min (interval %s)\n", len(usable), opts.rate, d.Interval())
	jobs, err := d.Run(ctx, usable)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		switch job.Result {
		case dialer.ResultPlaced:
			fmt.Printf("  %3d  %-16s placed  %s\n", job.AttemptIndex, job.Contact.Number, job.CallID)
		case dialer.ResultFailed:
			fmt.Printf("  %3d  %-16s FAILED  %s\n", job.AttemptIndex, job.Contact.Number, job.Reason)
		}
	}
	fmt.Printf("batch complete: %s\n", dialer.Summarize(jobs))
	return nil
}

func loadContacts(ctx context.Context, opts options) ([]contacts.Contact, error) {
	source := strings.TrimSpace(opts.contactsSource)
	if strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://") {
		src, err := contacts.NewPostgresSource(ctx, source)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		return src.List(ctx, opts.campaign)
	}
	return contacts.ReadCSVFile(source)
}
