//go:build integration

package tickets_test

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-checkin/internal/database/migrations"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
	tickets "ms-checkin/internal/tickets/service"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "checkin",
				"POSTGRES_PASSWORD": "checkin",
				"POSTGRES_DB":       "checkin",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://checkin:checkin@%s:%s/checkin?sslmode=disable", host, port.Port())
}

func openMigratedStore(t *testing.T, dsn string) *db.DB {
	t.Helper()
	log := logger.NewLoggerWithWriter(io.Discard)

	migrationDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	runner := migrations.NewRunner(bun.NewDB(migrationDB, pgdialect.New()), migrations.MigrateOptions{
		MigrationsDir: "../../../migrations",
	}, log)
	require.NoError(t, runner.RunMigrations())
	require.NoError(t, runner.Close())

	sqldb, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(20)
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = bunDB.Close() })
	return db.New(bunDB)
}

func TestPostgresConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}
	store := openMigratedStore(t, startPostgres(t))
	svc := tickets.NewTicketService(store, logger.NewLoggerWithWriter(io.Discard))
	ctx := context.Background()

	event := &models.Event{
		ID:             uuid.NewString(),
		Name:           "Stadium",
		Status:         models.EventStatusActive,
		Price:          10,
		MaxTickets:     5,
		CreatorAddress: "0xcreator",
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.UpsertEvent(ctx, event))

	t.Run("no oversell", func(t *testing.T) {
		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			receipts []*tickets.PurchaseReceipt
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := svc.RecordPurchaseAndIssue(ctx, tickets.PurchaseRequest{
					EventID:       event.ID,
					HolderAddress: "0xbuyer",
					SettlementRef: uuid.NewString(),
				})
				if err != nil {
					assert.ErrorIs(t, err, tickets.ErrSoldOut)
					return
				}
				mu.Lock()
				receipts = append(receipts, r)
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Len(t, receipts, 5)
		stored, err := store.GetEventByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 5, stored.TicketsSold)
	})

	t.Run("exactly once check-in", func(t *testing.T) {
		list, err := store.GetTicketsByEvent(ctx, event.ID)
		require.NoError(t, err)
		require.NotEmpty(t, list)
		ticket := list[0]

		cred, err := svc.IssueCredential(ctx, ticket.ID, "", "", time.Hour)
		require.NoError(t, err)

		creator := models.Identity{UserID: "door", Addresses: []string{"0xcreator"}}
		var wg sync.WaitGroup
		results := make([]*tickets.ScanResult, 10)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					results[i], err = svc.ScanForCheckIn(ctx, ticket.Code, creator)
				} else {
					results[i], err = svc.ValidateAndCheckIn(ctx, cred.Secret, creator)
				}
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		valid := 0
		for _, res := range results {
			require.NotNil(t, res)
			if res.Status == tickets.StatusValid {
				valid++
			} else {
				assert.Equal(t, tickets.StatusAlreadyCheckedIn, res.Status)
			}
		}
		assert.Equal(t, 1, valid)

		count, err := store.CountCheckInsByEvent(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("concurrent re-issue leaves one live credential", func(t *testing.T) {
		list, err := store.GetTicketsByEvent(ctx, event.ID)
		require.NoError(t, err)
		ticket := list[len(list)-1]

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.IssueCredential(ctx, ticket.ID, "", "", time.Hour)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		tokens, err := store.GetQRTokensByTicket(ctx, ticket.ID)
		require.NoError(t, err)
		live := 0
		for i := range tokens {
			if tokens[i].Live(time.Now().UTC()) {
				live++
			}
		}
		assert.Equal(t, 1, live)
	})
}
