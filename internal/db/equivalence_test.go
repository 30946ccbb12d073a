package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// The equivalence suite needs a live PostgreSQL server. Point
// CHATSTATS_TEST_POSTGRES_DSN at one (URL form) to enable it;
// each run works inside a throwaway schema and drops it after.
const postgresDSNEnv = "CHATSTATS_TEST_POSTGRES_DSN"

const pgFixtureSchema = `
CREATE TABLE %[1]s."user" (
    id   TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    role TEXT NOT NULL
);
CREATE TABLE %[1]s.chat (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    title      TEXT,
    chat       JSONB NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);
CREATE TABLE %[1]s.model (
    id        TEXT PRIMARY KEY,
    name      TEXT,
    is_active BOOLEAN NOT NULL DEFAULT TRUE
);`

// equivalenceFixture is statsFixture with every done flag stored
// numerically. The jsonb dialect casts the flag with ::int,
// which errors on a JSON boolean, so cross-backend data has to
// use the numeric form.
func equivalenceFixture() fixture {
	f := statsFixture()
	for _, c := range f.chats {
		for i := range c.msgs {
			for j := range c.msgs[i].StatusHistory {
				st := &c.msgs[i].StatusHistory[j]
				if st.Done == true {
					st.Done = 1
				} else {
					st.Done = 0
				}
			}
		}
	}
	return f
}

// storeDSN rescopes the caller's DSN to the throwaway schema and
// pins the session time zone, since date(to_timestamp(..))
// buckets epochs in session-local time.
func storeDSN(t *testing.T, dsn, schema string) string {
	t.Helper()
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parsing %s: %v", postgresDSNEnv, err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	q.Set("TimeZone", "UTC")
	u.RawQuery = q.Encode()
	return u.String()
}

// openPostgresFixture seeds the fixture into a fresh schema on
// the configured server and opens a Store scoped to it, with the
// test clock pinned like the SQLite side.
func openPostgresFixture(t *testing.T, dsn string, f fixture) *Store {
	t.Helper()
	seed, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("opening postgres seed handle: %v", err)
	}
	t.Cleanup(func() { seed.Close() })
	if err := seed.Ping(); err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}

	schema := fmt.Sprintf("chatstats_eq_%d", time.Now().UnixNano())
	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := seed.Exec(q, args...); err != nil {
			t.Fatalf("postgres fixture: %v", err)
		}
	}

	mustExec("CREATE SCHEMA " + schema)
	t.Cleanup(func() {
		seed.Exec("DROP SCHEMA " + schema + " CASCADE")
	})
	mustExec(fmt.Sprintf(pgFixtureSchema, schema))

	for _, u := range f.users {
		mustExec(fmt.Sprintf(
			`INSERT INTO %s."user" (id, name, role) VALUES ($1, $2, $3)`,
			schema,
		), u[0], u[1], u[2])
	}
	for _, m := range f.models {
		mustExec(fmt.Sprintf(
			`INSERT INTO %s.model (id, name, is_active) VALUES ($1, $2, $3)`,
			schema,
		), m.id, m.id, m.active)
	}
	for _, c := range f.chats {
		mustExec(fmt.Sprintf(
			`INSERT INTO %s.chat
			 (id, user_id, title, chat, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			schema,
		), c.id, c.userID, "chat "+c.id,
			chatJSON(t, c.msgs), c.createdAt, c.updatedAt)
	}

	store, err := Open(storeDSN(t, dsn, schema))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	store.now = func() time.Time { return testNow }
	return store
}

// TestDialectEquivalence runs every aggregation against the same
// fixture on both backends and requires identical results.
func TestDialectEquivalence(t *testing.T) {
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}

	f := equivalenceFixture()
	lite := openFixture(t, f)
	pg := openPostgresFixture(t, dsn, f)
	ctx := context.Background()

	t.Run("overview", func(t *testing.T) {
		a, err := lite.GetOverview(ctx)
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		b, err := pg.GetOverview(ctx)
		if err != nil {
			t.Fatalf("postgres: %v", err)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("overview diverged (-sqlite +postgres):\n%s", diff)
		}
	})

	t.Run("models", func(t *testing.T) {
		a, err := lite.GetModelUsage(ctx)
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		b, err := pg.GetModelUsage(ctx)
		if err != nil {
			t.Fatalf("postgres: %v", err)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("model usage diverged (-sqlite +postgres):\n%s", diff)
		}
	})

	t.Run("activity", func(t *testing.T) {
		for _, days := range []int{30, 0} {
			a, err := lite.GetActivity(ctx, days)
			if err != nil {
				t.Fatalf("sqlite days=%d: %v", days, err)
			}
			b, err := pg.GetActivity(ctx, days)
			if err != nil {
				t.Fatalf("postgres days=%d: %v", days, err)
			}
			if diff := cmp.Diff(a, b); diff != "" {
				t.Errorf("activity days=%d diverged (-sqlite +postgres):\n%s",
					days, diff)
			}
		}
	})

	t.Run("users", func(t *testing.T) {
		a, err := lite.GetUserLeaderboard(ctx)
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		b, err := pg.GetUserLeaderboard(ctx)
		if err != nil {
			t.Fatalf("postgres: %v", err)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("leaderboard diverged (-sqlite +postgres):\n%s", diff)
		}
	})

	t.Run("tools", func(t *testing.T) {
		a, err := lite.GetToolUsage(ctx)
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		b, err := pg.GetToolUsage(ctx)
		if err != nil {
			t.Fatalf("postgres: %v", err)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("tool usage diverged (-sqlite +postgres):\n%s", diff)
		}
	})
}
