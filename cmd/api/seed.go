package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/zatekoja/triage-dispatch/backend/internal/application/services"
	"github.com/zatekoja/triage-dispatch/backend/internal/domain/entities"
	"github.com/zatekoja/triage-dispatch/backend/internal/infrastructure/observability"
	"github.com/zatekoja/triage-dispatch/backend/pkg/config"
)

var seedComplaints = []string{
	"chest pain radiating to left arm",
	"shortness of breath",
	"persistent headache",
	"high fever and chills",
	"abdominal pain",
	"sprained ankle",
	"mild cough",
	"follow-up for blood pressure",
	"skin rash",
	"dizziness on standing",
}

var seedNames = []string{
	"Amara Okafor", "Tunde Bello", "Grace Adeyemi", "Samuel Eze",
	"Ngozi Nwosu", "Ibrahim Musa", "Chidi Obi", "Funke Ajayi",
}

func seedCmd() *cobra.Command {
	var count, days int
	var start string
	var seed int64

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Register sample patients across upcoming dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), count, days, start, seed)
		},
	}

	cmd.Flags().IntVar(&count, "count", 40, "number of registrations to create")
	cmd.Flags().IntVar(&days, "days", 3, "number of consecutive dates to spread bookings over")
	cmd.Flags().StringVar(&start, "start", "", "first booking date (YYYY-MM-DD); defaults to today")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}

func runSeed(ctx context.Context, count, days int, start string, seed int64) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if count <= 0 || days <= 0 {
		return fmt.Errorf("count and days must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	observability.InitLogger(cfg.App.Name, cfg.App.Env)
	logger := observability.GetLogger()

	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn().Msg("Seeding the in-memory store has no lasting effect; set STORE_DRIVER")
	}

	firstDate := time.Now()
	if start != "" {
		firstDate, err = time.ParseInLocation(entities.DateLayout, start, time.Local)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", start, err)
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	ledger := services.NewBookingLedger(cfg.Dispatch.CapacityPerDay, cfg.Dispatch.EnforceCapacity)
	if err := ledger.Rebuild(ctx, st.patients); err != nil {
		return fmt.Errorf("failed to rebuild booking ledger: %w", err)
	}
	registrations := services.NewRegistrationService(st.patients, st.visits, ledger, nil, nil)

	rng := rand.New(rand.NewSource(seed))
	categories := entities.Categories
	created := 0
	for i := 0; i < count; i++ {
		date := firstDate.AddDate(0, 0, i%days)
		arrival := time.Date(date.Year(), date.Month(), date.Day(), 8+rng.Intn(8), rng.Intn(4)*15, 0, 0, time.Local)

		req := &entities.RegistrationRequest{
			Name:             seedNames[rng.Intn(len(seedNames))],
			Age:              18 + rng.Intn(70),
			Gender:           []string{"F", "M"}[rng.Intn(2)],
			Complaint:        seedComplaints[rng.Intn(len(seedComplaints))],
			Vitals:           seedVitals(rng),
			ScheduledArrival: arrival.Format(entities.TimestampLayout),
			Category:         string(categories[rng.Intn(len(categories))]),
		}

		result, err := registrations.Register(ctx, req)
		if err != nil {
			logger.Warn().Err(err).Str("arrival", req.ScheduledArrival).Msg("Skipping sample registration")
			continue
		}
		created++
		if result.DateFull {
			logger.Info().Str("date", arrival.Format(entities.DateLayout)).Int("booked", result.BookedOnDate).Msg("Date is at capacity")
		}
	}

	logger.Info().Int("created", created).Int("requested", count).Msg("Seeding complete")
	return nil
}

func seedVitals(rng *rand.Rand) entities.Vitals {
	return entities.Vitals{
		SBP:  float64(100 + rng.Intn(60)),
		DBP:  float64(60 + rng.Intn(35)),
		Temp: 36.2 + float64(rng.Intn(30))/10,
		HR:   float64(55 + rng.Intn(60)),
		RR:   float64(12 + rng.Intn(14)),
		O2:   float64(88 + rng.Intn(12)),
	}
}
