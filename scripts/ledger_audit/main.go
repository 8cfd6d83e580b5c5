package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type keyBalance struct {
	StudentID   string `db:"student_id"`
	ServiceType string `db:"service_type"`
	Granted     int    `db:"granted"`
	LedgerNet   int    `db:"ledger_net"`
	Held        int    `db:"held"`
}

type violation struct {
	Key    keyBalance
	Reason string
}

func main() {
	var (
		dsn       string
		staleHold time.Duration
		timeout   time.Duration
	)

	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "Postgres connection string")
	flag.DurationVar(&staleHold, "stale-hold", 24*time.Hour, "Age past which an active hold is reported")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Query timeout")
	flag.Parse()

	if dsn == "" {
		log.Fatal("no DSN: pass -dsn or set DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()
	db.SetConnMaxLifetime(timeout)

	keys, err := loadKeyBalances(db)
	if err != nil {
		log.Fatalf("failed to load balances: %v", err)
	}

	violations := auditKeys(keys)

	stale, err := loadStaleHolds(db, staleHold)
	if err != nil {
		log.Fatalf("failed to load stale holds: %v", err)
	}

	printReport(len(keys), violations, stale)

	if len(violations) > 0 {
		os.Exit(1)
	}
}

// loadKeyBalances aggregates the three quantities that define a
// balance for every (student, service type) key that has a grant.
func loadKeyBalances(db *sqlx.DB) ([]keyBalance, error) {
	const query = `SELECT g.student_id, g.service_type,
        SUM(g.quantity) AS granted,
        COALESCE((SELECT SUM(l.quantity_change) FROM ledger_entries l
            WHERE l.student_id = g.student_id AND l.service_type = g.service_type), 0) AS ledger_net,
        COALESCE((SELECT SUM(h.quantity) FROM service_holds h
            WHERE h.student_id = g.student_id AND h.service_type = g.service_type
            AND h.status = 'active'), 0) AS held
        FROM entitlement_grants g
        GROUP BY g.student_id, g.service_type
        ORDER BY g.student_id, g.service_type`

	var keys []keyBalance
	if err := db.Select(&keys, query); err != nil {
		return nil, err
	}
	return keys, nil
}

func auditKeys(keys []keyBalance) []violation {
	var violations []violation
	for _, k := range keys {
		consumed := -k.LedgerNet
		available := k.Granted - consumed - k.Held
		if consumed < 0 {
			violations = append(violations, violation{Key: k,
				Reason: fmt.Sprintf("net consumed is negative (%d): refunds or credits exceed consumption", consumed)})
		}
		if available < 0 {
			violations = append(violations, violation{Key: k,
				Reason: fmt.Sprintf("available quantity is negative (%d)", available)})
		}
		if k.Held > k.Granted-consumed {
			violations = append(violations, violation{Key: k,
				Reason: fmt.Sprintf("held quantity %d exceeds remaining quantity %d", k.Held, k.Granted-consumed)})
		}
	}
	return violations
}

type staleHoldRow struct {
	ID        string    `db:"id"`
	StudentID string    `db:"student_id"`
	CreatedAt time.Time `db:"created_at"`
}

// loadStaleHolds lists active holds older than the cutoff. These are
// not invariant violations, the sweeper should have expired them, so
// they are reported but do not fail the audit.
func loadStaleHolds(db *sqlx.DB, age time.Duration) ([]staleHoldRow, error) {
	const query = `SELECT id, student_id, created_at FROM service_holds
        WHERE status = 'active' AND created_at < $1 ORDER BY created_at ASC`

	var holds []staleHoldRow
	if err := db.Select(&holds, query, time.Now().UTC().Add(-age)); err != nil {
		return nil, err
	}
	return holds, nil
}

func printReport(total int, violations []violation, stale []staleHoldRow) {
	fmt.Println("Ledger Audit Report")
	fmt.Println("===================")
	fmt.Printf("Keys audited: %d\n", total)

	if len(violations) == 0 {
		fmt.Println("No invariant violations found")
	}
	for _, v := range violations {
		fmt.Printf("[VIOLATION] %s/%s\n", v.Key.StudentID, v.Key.ServiceType)
		fmt.Printf("  granted=%d ledger_net=%d held=%d\n", v.Key.Granted, v.Key.LedgerNet, v.Key.Held)
		fmt.Printf("  %s\n", v.Reason)
	}

	for _, h := range stale {
		fmt.Printf("[STALE HOLD] %s student=%s created=%s\n", h.ID, h.StudentID, h.CreatedAt.Format(time.RFC3339))
	}

	fmt.Printf("Violations: %d, Stale holds: %d\n", len(violations), len(stale))
}
