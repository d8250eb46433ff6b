package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srkrcodingclub/iconcoderz/go/internal/cache"
	"github.com/srkrcodingclub/iconcoderz/go/internal/events"
	"github.com/srkrcodingclub/iconcoderz/go/internal/models"
	"github.com/srkrcodingclub/iconcoderz/go/internal/qr"
	"github.com/srkrcodingclub/iconcoderz/go/internal/validation"
)

var now = time.Date(2026, 2, 23, 13, 30, 0, 0, time.UTC)

type fakeRepo struct {
	mu       sync.Mutex
	regs     map[uuid.UUID]*models.Registration
	checkIns []CheckIn
	lostRace bool
	counts   Stats
	countN   int
	limit    int
	queries  []ListQuery
	total    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{regs: map[uuid.UUID]*models.Registration{}}
}

func (r *fakeRepo) add(code string, status models.PaymentStatus) *models.Registration {
	reg := &models.Registration{
		ID:               uuid.New(),
		RegistrationCode: code,
		FullName:         "A B",
		Email:            code + "@test.com",
		Phone:            "9876543210",
		Branch:           "CSE",
		YearOfStudy:      "SECOND_YEAR",
		PaymentStatus:    status,
	}
	r.regs[reg.ID] = reg
	return reg
}

func (r *fakeRepo) FindByCodeAndID(_ context.Context, code string, id uuid.UUID) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[id]
	if !ok || reg.RegistrationCode != code {
		return nil, errNoRegistration
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRepo) FindForCheckIn(_ context.Context, in ManualInput) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if (in.RegistrationCode != "" && reg.RegistrationCode == in.RegistrationCode) ||
			(in.Email != "" && reg.Email == in.Email) ||
			(in.Phone != "" && reg.Phone == in.Phone) {
			cp := *reg
			return &cp, nil
		}
	}
	return nil, errNoRegistration
}

func (r *fakeRepo) CheckIn(_ context.Context, c CheckIn) (CheckInOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := r.regs[c.RegistrationID]
	if reg.Attended || r.lostRace {
		reg.Attended = true
		cp := *reg
		return CheckInOutcome{Registration: &cp, AlreadyAttended: true}, nil
	}
	at := c.At
	reg.Attended = true
	reg.AttendedAt = &at
	reg.AttendedBy = &c.AdminID
	reg.CheckInCount++
	r.checkIns = append(r.checkIns, c)
	cp := *reg
	return CheckInOutcome{Registration: &cp}, nil
}

func (r *fakeRepo) Counts(context.Context) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countN++
	return r.counts, nil
}

func (r *fakeRepo) RecentScans(_ context.Context, limit int) ([]models.AttendanceScan, error) {
	r.limit = limit
	return []models.AttendanceScan{}, nil
}

func (r *fakeRepo) List(_ context.Context, q ListQuery) ([]*models.Registration, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, q)
	var out []*models.Registration
	for _, reg := range r.regs {
		if reg.PaymentStatus == models.PaymentVerified {
			cp := *reg
			out = append(out, &cp)
		}
	}
	return out, r.total, nil
}

type recordingPublisher struct {
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.events = append(p.events, e)
	return p.err
}

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) SendAttendance(_ context.Context, to, _ string) {
	m.sent = append(m.sent, to)
}

type fixture struct {
	app       *App
	repo      *fakeRepo
	gen       *qr.Generator
	cache     *cache.TTL
	publisher *recordingPublisher
	mailer    *recordingMailer
	clock     *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	clock := clockwork.NewFakeClockAt(now)
	f := &fixture{
		repo:      newFakeRepo(),
		gen:       qr.NewGenerator(qr.Config{SecretKey: "secret", EventID: "iconcoderz-2k26"}, clock),
		cache:     cache.New(clock, time.Minute),
		publisher: &recordingPublisher{},
		mailer:    &recordingMailer{},
		clock:     clock,
	}
	t.Cleanup(f.cache.Close)
	f.app = NewApp(f.repo, f.gen, f.cache, 15*time.Second, f.publisher, f.mailer, clock)
	return f
}

func (f *fixture) qrData(t *testing.T, reg *models.Registration) string {
	t.Helper()
	data, err := json.Marshal(f.gen.Sign(reg.RegistrationCode, reg.ID.String()))
	require.NoError(t, err)
	return string(data)
}

func TestScanQRChecksIn(t *testing.T) {
	f := newFixture(t)
	reg := f.repo.add("IC2K26-AB12", models.PaymentVerified)
	f.cache.Set(statsKey, Stats{Total: 1}, time.Minute)
	ip := "10.0.0.1"

	res, err := f.app.ScanQR(context.Background(), ScanInput{QRData: f.qrData(t, reg), IPAddress: &ip}, "admin-1")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.AlreadyAttended)
	assert.Equal(t, "Check-in successful", res.Message)
	assert.Equal(t, reg.ID, res.User.ID)
	require.NotNil(t, res.User.AttendedAt)
	assert.Equal(t, now, *res.User.AttendedAt)

	require.Len(t, f.repo.checkIns, 1)
	assert.Equal(t, "admin-1", f.repo.checkIns[0].AdminID)
	assert.Equal(t, &ip, f.repo.checkIns[0].IPAddress)

	_, cached := f.cache.Get(statsKey)
	assert.False(t, cached, "check-in invalidates attendance keys")

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, events.TypeCheckedIn, f.publisher.events[0].Type)
	var payload events.CheckedIn
	require.NoError(t, json.Unmarshal(f.publisher.events[0].Payload, &payload))
	assert.Equal(t, MethodQR, payload.Method)
	assert.Equal(t, "IC2K26-AB12", payload.RegistrationCode)

	assert.Equal(t, []string{reg.Email}, f.mailer.sent)
}

func TestScanQRAlreadyAttended(t *testing.T) {
	f := newFixture(t)
	reg := f.repo.add("IC2K26-AB12", models.PaymentVerified)
	data := f.qrData(t, reg)

	_, err := f.app.ScanQR(context.Background(), ScanInput{QRData: data}, "admin-1")
	require.NoError(t, err)

	res, err := f.app.ScanQR(context.Background(), ScanInput{QRData: data}, "admin-2")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, res.AlreadyAttended)
	assert.Equal(t, "Already checked in", res.Message)
	assert.Len(t, f.repo.checkIns, 1)
	assert.Len(t, f.publisher.events, 1)
	assert.Len(t, f.mailer.sent, 1)
}

func TestScanQRLosingConcurrentScan(t *testing.T) {
	f := newFixture(t)
	reg := f.repo.add("IC2K26-AB12", models.PaymentVerified)
	f.repo.lostRace = true

	res, err := f.app.ScanQR(context.Background(), ScanInput{QRData: f.qrData(t, reg)}, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.AlreadyAttended)
	assert.Empty(t, f.publisher.events)
	assert.Empty(t, f.mailer.sent)
}

func TestScanQRRejections(t *testing.T) {
	f := newFixture(t)
	verified := f.repo.add("IC2K26-AAAA", models.PaymentVerified)
	pending := f.repo.add("IC2K26-BBBB", models.PaymentPending)

	foreign := qr.NewGenerator(qr.Config{SecretKey: "secret", EventID: "other-event"}, f.clock)
	foreignData, err := json.Marshal(foreign.Sign(verified.RegistrationCode, verified.ID.String()))
	require.NoError(t, err)

	tampered := f.gen.Sign(verified.RegistrationCode, verified.ID.String())
	tampered.RegistrationCode = "IC2K26-CCCC"
	tamperedData, err := json.Marshal(tampered)
	require.NoError(t, err)

	unknown := f.gen.Sign("IC2K26-DDDD", uuid.NewString())
	unknownData, err := json.Marshal(unknown)
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		want error
	}{
		{"not json", "hello", qr.ErrInvalidFormat},
		{"tampered", string(tamperedData), qr.ErrVerification},
		{"other event", string(foreignData), ErrWrongEvent},
		{"unknown registration", string(unknownData), ErrRegistrationNotFound},
		{"payment pending", f.qrData(t, pending), ErrPaymentNotVerified},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.app.ScanQR(context.Background(), ScanInput{QRData: tt.data}, "admin-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.repo.checkIns)
}

func TestScanQRRequiresData(t *testing.T) {
	f := newFixture(t)
	_, err := f.app.ScanQR(context.Background(), ScanInput{}, "admin-1")
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestManualCheckIn(t *testing.T) {
	f := newFixture(t)
	reg := f.repo.add("IC2K26-AB12", models.PaymentVerified)

	res, err := f.app.ManualCheckIn(context.Background(), ManualInput{Phone: reg.Phone}, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Manual check-in successful", res.Message)

	var payload events.CheckedIn
	require.NoError(t, json.Unmarshal(f.publisher.events[0].Payload, &payload))
	assert.Equal(t, MethodManual, payload.Method)

	_, err = f.app.ManualCheckIn(context.Background(), ManualInput{}, "admin-1")
	var vErr *validation.Error
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, ErrMissingLookup.Error(), vErr.Message)

	_, err = f.app.ManualCheckIn(context.Background(), ManualInput{Email: "nobody@test.com"}, "admin-1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = f.app.ManualCheckIn(context.Background(), ManualInput{Email: "not-an-email"}, "admin-1")
	assert.ErrorIs(t, err, validation.ErrInvalid)
}

func TestCheckInSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("nats: no responders")
	reg := f.repo.add("IC2K26-AB12", models.PaymentVerified)

	res, err := f.app.ManualCheckIn(context.Background(), ManualInput{RegistrationCode: reg.RegistrationCode}, "admin-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, f.mailer.sent, 1)
}

func TestStatsCachedAndComputed(t *testing.T) {
	f := newFixture(t)
	f.repo.counts = Stats{Total: 10, Verified: 8, Attended: 3}

	s, err := f.app.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 10, Verified: 8, Attended: 3, Pending: 5, AttendanceRate: 38}, s)

	_, err = f.app.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.countN)

	f.clock.Advance(15 * time.Second)
	_, err = f.app.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.countN)
}

func TestStatsNoVerified(t *testing.T) {
	f := newFixture(t)
	f.repo.counts = Stats{Total: 4}

	s, err := f.app.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, s.AttendanceRate)
	assert.Zero(t, s.Pending)
}

func TestRecentScansLimit(t *testing.T) {
	f := newFixture(t)
	for _, tt := range []struct{ in, want int }{{0, 10}, {-5, 10}, {25, 25}, {500, 100}} {
		_, err := f.app.RecentScans(context.Background(), tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.repo.limit)
	}
}

func TestListAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	reg := f.repo.add("IC2K26-LIST0001", models.PaymentVerified)
	f.repo.add("IC2K26-LIST0002", models.PaymentPending)
	f.repo.total = 41

	page, err := f.app.List(context.Background(), ListQuery{Search: "  list  "})
	require.NoError(t, err)

	require.Len(t, f.repo.queries, 1)
	assert.Equal(t, ListQuery{
		Page:      1,
		Limit:     20,
		Search:    "list",
		Attended:  "all",
		SortBy:    "createdAt",
		SortOrder: "desc",
	}, f.repo.queries[0])
	assert.Nil(t, f.repo.queries[0].attendedFilter())

	require.Len(t, page.Data, 1)
	assert.Equal(t, reg.RegistrationCode, page.Data[0].RegistrationCode)
	assert.False(t, page.Data[0].Attended)
	assert.Equal(t, Pagination{Page: 1, Limit: 20, Total: 41, TotalPages: 3}, page.Pagination)
}

func TestListAttendedFilter(t *testing.T) {
	yes, no := ListQuery{Attended: "true"}, ListQuery{Attended: "false"}
	require.NotNil(t, yes.attendedFilter())
	assert.True(t, *yes.attendedFilter())
	require.NotNil(t, no.attendedFilter())
	assert.False(t, *no.attendedFilter())
}

func TestListEmptyPageHasZeroTotalPages(t *testing.T) {
	f := newFixture(t)

	page, err := f.app.List(context.Background(), ListQuery{Page: 3, Limit: 50, Attended: "true", SortBy: "fullName", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Empty(t, page.Data)
	assert.Equal(t, Pagination{Page: 3, Limit: 50}, page.Pagination)
}

func TestListRejectsInvalidQuery(t *testing.T) {
	tests := []struct {
		name  string
		query ListQuery
		field string
	}{
		{"negative page", ListQuery{Page: -1}, "page"},
		{"limit too large", ListQuery{Limit: 101}, "limit"},
		{"attended", ListQuery{Attended: "maybe"}, "attended"},
		{"sort by", ListQuery{SortBy: "email"}, "sortBy"},
		{"sort order", ListQuery{SortOrder: "up"}, "sortOrder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.app.List(context.Background(), tt.query)
			var vErr *validation.Error
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Empty(t, f.repo.queries)
		})
	}
}
