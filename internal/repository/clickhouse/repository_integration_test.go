package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/stretchr/testify/suite"
	tcClickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

const clickhouseImage = "clickhouse/clickhouse-server:25.11"

type noopMetrics struct{}

func (noopMetrics) Observe(string, error, time.Time) {}

type RepositorySuite struct {
	suite.Suite
	ctx        context.Context
	cancel     context.CancelFunc
	container  *tcClickhouse.ClickHouseContainer
	dsn        string
	repo       *Repository
	testCtx    context.Context
	testCancel context.CancelFunc
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 5*time.Minute)

	container, err := tcClickhouse.Run(s.ctx,
		clickhouseImage,
		tcClickhouse.WithUsername("default"),
		tcClickhouse.WithDatabase("default"),
	)
	s.Require().NoError(err)

	s.container = container

	dsn, err := container.ConnectionString(s.ctx)
	s.Require().NoError(err)
	s.dsn = dsn
}

func (s *RepositorySuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *RepositorySuite) SetupTest() {
	s.testCtx, s.testCancel = context.WithTimeout(context.Background(), time.Minute)
	s.Require().NoError(applyMigrationsUp(s.dsn))

	repo, err := NewRepository(s.dsn, noopMetrics{})
	s.Require().NoError(err)
	s.repo = repo
}

func (s *RepositorySuite) TearDownTest() {
	if s.testCancel != nil {
		s.testCancel()
	}
	s.Require().NoError(applyMigrationsDown(s.dsn))
}

func (s *RepositorySuite) TestProvedBlocks_InsertListCount() {
	proving := uint32(17)
	inputGen := uint32(3)
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := s.repo.InsertProvedBlock(s.testCtx, ProvedBlock{
		BlockNumber:                    21500100,
		ProvedAt:                       now,
		ProvingDurationSeconds:         &proving,
		InputGenerationDurationSeconds: &inputGen,
	})
	s.Require().NoError(err)

	err = s.repo.InsertProvedBlock(s.testCtx, ProvedBlock{BlockNumber: 21500100, ProvedAt: now})
	s.Require().ErrorIs(err, ErrDuplicate)

	count, err := s.repo.CountProvedBlocks(s.testCtx)
	s.Require().NoError(err)
	s.Equal(uint64(1), count)

	rows, err := s.repo.ListProvedBlocks(s.testCtx, 100)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal(uint64(21500100), rows[0].BlockNumber)
	s.Require().NotNil(rows[0].ProvingDurationSeconds)
	s.Equal(uint32(17), *rows[0].ProvingDurationSeconds)
}

func (s *RepositorySuite) TestProvedBlocks_OrderingAndCap() {
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := uint64(1); i <= 105; i++ {
		err := s.repo.InsertProvedBlock(s.testCtx, ProvedBlock{
			BlockNumber: i,
			ProvedAt:    base.Add(time.Duration(i) * time.Second),
		})
		s.Require().NoError(err)
	}

	count, err := s.repo.CountProvedBlocks(s.testCtx)
	s.Require().NoError(err)
	s.Equal(uint64(105), count)

	rows, err := s.repo.ListProvedBlocks(s.testCtx, 100)
	s.Require().NoError(err)
	s.Require().Len(rows, 100)
	s.Equal(uint64(105), rows[0].BlockNumber)
	s.Equal(uint64(6), rows[99].BlockNumber)
}

func (s *RepositorySuite) TestMissedBlocks_InsertListCount() {
	now := time.Now().UTC().Truncate(time.Millisecond)

	err := s.repo.InsertMissedBlock(s.testCtx, MissedBlock{
		BlockNumber: 21500200,
		FailedAt:    now,
		Stage:       "Proving",
		Reason:      "Prover crashed: signal: killed",
	})
	s.Require().NoError(err)

	err = s.repo.InsertMissedBlock(s.testCtx, MissedBlock{BlockNumber: 21500200, FailedAt: now})
	s.Require().ErrorIs(err, ErrDuplicate)

	count, err := s.repo.CountMissedBlocks(s.testCtx)
	s.Require().NoError(err)
	s.Equal(uint64(1), count)

	rows, err := s.repo.ListMissedBlocks(s.testCtx, 100)
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("Proving", rows[0].Stage)
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working dir: %w", err)
	}

	for {
		if _, statErr := os.Stat(filepath.Join(dir, "go.mod")); statErr == nil {
			return dir, nil
		}
		next := filepath.Dir(dir)
		if next == dir {
			return "", fmt.Errorf("go.mod not found from %s", dir)
		}
		dir = next
	}
}

func applyMigrationsUp(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = closeMigrator(m) }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func applyMigrationsDown(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = closeMigrator(m) }()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	root, err := moduleRoot()
	if err != nil {
		return nil, err
	}

	sourceURL := fmt.Sprintf("file://%s", filepath.Join(root, "migrations", "clickhouse"))
	m, err := migrate.New(sourceURL, withMultiStatement(dsn))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

func withMultiStatement(dsn string) string {
	if strings.Contains(dsn, "x-multi-statement=") {
		return dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "x-multi-statement=true"
}

func closeMigrator(m *migrate.Migrate) error {
	if m == nil {
		return nil
	}
	sourceErr, dbErr := m.Close()
	if sourceErr != nil && dbErr != nil {
		return fmt.Errorf("close migrator: source: %v; database: %v", sourceErr, dbErr)
	}
	if sourceErr != nil {
		return fmt.Errorf("close migrator: source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("close migrator: database: %w", dbErr)
	}
	return nil
}
