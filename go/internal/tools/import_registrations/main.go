// Command import_registrations loads a JSON array of registration forms and
// inserts each one with its confirmation outbox entry in a single transaction.
// Rows that collide with an existing registration are skipped.
//
//	import_registrations -file registrations.json [-dry-run]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/srkrcodingclub/iconcoderz/go/internal/config"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/outbox"
	"github.com/srkrcodingclub/iconcoderz/go/internal/registration"
)

var errSkipped = errors.New("registration already exists")

type summary struct {
	total, inserted, skipped, invalid, errs int
}

func main() {
	file := flag.String("file", "registrations.json", "JSON array of registration forms")
	dryRun := flag.Bool("dry-run", false, "validate only")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	inputs, err := readInputs(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var pool *pgxpool.Pool
	if !*dryRun {
		pool, err = pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	s := summary{total: len(inputs)}
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "row %d (%s): %v\n", i, in.Email, err)
			s.invalid++
			continue
		}
		if *dryRun {
			continue
		}

		err := importOne(ctx, pool, cfg.Event.Tag, in, time.Now().UTC())
		switch {
		case errors.Is(err, errSkipped):
			s.skipped++
		case err != nil:
			fmt.Fprintf(os.Stderr, "row %d (%s): %v\n", i, in.Email, err)
			s.errs++
		default:
			s.inserted++
		}
	}

	fmt.Printf(
		"Registration import complete: %d total, %d inserted, %d skipped, %d invalid, %d errors\n",
		s.total, s.inserted, s.skipped, s.invalid, s.errs,
	)
	if s.errs > 0 {
		os.Exit(1)
	}
}

func readInputs(path string) ([]registration.UserInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}
	var inputs []registration.UserInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return inputs, nil
}

func importOne(ctx context.Context, pool *pgxpool.Pool, eventTag string, in registration.UserInput, now time.Time) error {
	reg := &models.Registration{
		ID:                 uuid.New(),
		RegistrationCode:   registration.NewCode(eventTag),
		FullName:           in.FullName,
		RegistrationNumber: in.RegistrationNumber,
		Email:              in.Email,
		Phone:              in.Phone,
		Branch:             in.Branch,
		YearOfStudy:        in.YearOfStudy,
		CodechefHandle:     in.CodechefHandle,
		LeetcodeHandle:     in.LeetcodeHandle,
		CodeforcesHandle:   in.CodeforcesHandle,
	}
	payload, err := json.Marshal(outbox.NewSendConfirmation(registration.ConfirmationPayload(reg)))
	if err != nil {
		return fmt.Errorf("marshal confirmation payload: %w", err)
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO registrations (
              id, registration_code, full_name, registration_number, email, phone,
              college_name, year_of_study, branch, gender, is_coding_club_affiliate,
              affiliate_id, codechef_handle, leetcode_handle, codeforces_handle,
              transaction_id, screenshot_url, payment_status, created_at, updated_at
            ) VALUES (
              $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,'PENDING',$18,$18
            )
            ON CONFLICT DO NOTHING
        `,
			reg.ID, reg.RegistrationCode, in.FullName, in.RegistrationNumber, in.Email, in.Phone,
			in.CollegeName, in.YearOfStudy, in.Branch, in.Gender, in.IsCodingClubAffiliate,
			in.AffiliateID, in.CodechefHandle, in.LeetcodeHandle, in.CodeforcesHandle,
			in.TransactionID, in.ScreenshotURL, now,
		)
		if err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errSkipped
		}

		_, err = tx.Exec(ctx, `
            INSERT INTO outbox (id, aggregate_type, aggregate_id, type, payload, status, attempts, created_at)
            VALUES ($1, $2, $3, $4, $5, 'PENDING', 0, $6)
        `, uuid.New(), outbox.AggregateUser, reg.ID.String(), string(outbox.TypeSendConfirmation), payload, now)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
}
