package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/payout/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestAutoMigrate(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, AutoMigrate(db))
	for _, table := range []string{"payments", "payment_refunds", "discount_usages", "instructor_earnings", "affiliate_payouts", "payout_job_runs"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}
