package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/meresahar/internal/issues"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// CLI flags
var (
	csvPath   = flag.String("csv", "", "Path to the source CSV (required)")
	imagesDir = flag.String("images", ".", "Directory image paths in the CSV are relative to")
	dsn       = flag.String("dsn", "", "Postgres DSN (default: env DATABASE_URL)")
	dryRun    = flag.Bool("dry-run", false, "Parse + validate only; no DB writes")
)

// CSV contract
// username,category,description,latitude,longitude,status,urgency,image,after_image
// Only category is required. status/urgency default to Pending/Low; image
// columns are file paths under --images.
var required = []string{"category"}

type IssueCSV struct {
	Line       int
	Issue      issues.NewIssue
	Status     issues.Status
	Urgency    issues.Urgency
	ImagePath  string
	AfterImage string
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()
	*dsn = orEnv(*dsn, "DATABASE_URL")
	if *csvPath == "" {
		fatalf("--csv is required")
	}

	rows, err := loadCSV(*csvPath)
	if err != nil {
		fatalf("CSV error: %v", err)
	}
	if err := validateRows(rows); err != nil {
		fatalf("CSV validation failed: %v", err)
	}
	fmt.Printf("Loaded %d issues from %s\n", len(rows), *csvPath)

	if *dryRun {
		printPlan(rows)
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if *dsn == "" {
		fatalf("--dsn not provided and DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		fatalf("ping: %v", err)
	}

	// The server's issues.Init owns the schema; the seeder only inserts.
	store := issues.NewSQLStore(db, issues.DialectPostgres)
	images := issues.NewImageService(store, nil, 0)
	svc := issues.NewService(store, images, issues.Permissive)

	before, err := store.Count(ctx)
	if err != nil {
		fatalf("pre-count: %v", err)
	}

	for _, r := range rows {
		id, err := seedRow(ctx, svc, r)
		if err != nil {
			fatalf("line %d: %v", r.Line, err)
		}
		fmt.Printf("  #%d %s (%s/%s)\n", id, r.Issue.Category, r.Status, r.Urgency)
	}

	after, err := store.Count(ctx)
	if err != nil {
		fatalf("post-count: %v", err)
	}
	fmt.Printf("Issues before=%d after=%d\n", before, after)
	fmt.Println("Seed complete ✅")
}

// seedRow submits the issue as a citizen would, then applies the row's
// status and urgency as an administrator update.
func seedRow(ctx context.Context, svc *issues.Service, r IssueCSV) (int64, error) {
	in := r.Issue
	if r.ImagePath != "" {
		data, err := os.ReadFile(filepath.Join(*imagesDir, r.ImagePath))
		if err != nil {
			return 0, fmt.Errorf("read image: %w", err)
		}
		in.Image = data
	}

	id, err := svc.Submit(ctx, in)
	if err != nil {
		return 0, err
	}

	if r.Status == issues.StatusPending && r.Urgency == issues.UrgencyLow && r.AfterImage == "" {
		return id, nil
	}
	t := issues.Transition{ID: id, Status: r.Status, Urgency: r.Urgency}
	if r.AfterImage != "" {
		data, err := os.ReadFile(filepath.Join(*imagesDir, r.AfterImage))
		if err != nil {
			return id, fmt.Errorf("read after image: %w", err)
		}
		t.AfterImage = data
	}
	if err := svc.ApplyTransition(ctx, t); err != nil {
		return id, fmt.Errorf("apply status: %w", err)
	}
	return id, nil
}

func loadCSV(path string) ([]IssueCSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readCSV(bufio.NewReader(f))
}

func readCSV(src io.Reader) ([]IssueCSV, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	headers, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			return nil, fmt.Errorf("missing required column: %s", k)
		}
	}

	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []IssueCSV
	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv read: %w", err)
		}

		row := IssueCSV{
			Line: line,
			Issue: issues.NewIssue{
				Username:    col(rec, "username"),
				Category:    col(rec, "category"),
				Description: col(rec, "description"),
			},
			ImagePath:  col(rec, "image"),
			AfterImage: col(rec, "after_image"),
		}
		if row.Issue.Latitude, err = parseCoord(col(rec, "latitude")); err != nil {
			return nil, fmt.Errorf("line %d: latitude: %w", line, err)
		}
		if row.Issue.Longitude, err = parseCoord(col(rec, "longitude")); err != nil {
			return nil, fmt.Errorf("line %d: longitude: %w", line, err)
		}
		row.Status = issues.NormalizeStatus(col(rec, "status"))
		row.Urgency = issues.NormalizeUrgency(col(rec, "urgency"))
		out = append(out, row)
	}
	return out, nil
}

func parseCoord(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func validateRows(rows []IssueCSV) error {
	if len(rows) == 0 {
		return fmt.Errorf("CSV has no data rows")
	}
	for _, r := range rows {
		if r.Issue.Category == "" {
			return fmt.Errorf("line %d: category is empty", r.Line)
		}
		if _, err := issues.ParseStatus(string(r.Status)); err != nil {
			return fmt.Errorf("line %d: %w", r.Line, err)
		}
		if _, err := issues.ParseUrgency(string(r.Urgency)); err != nil {
			return fmt.Errorf("line %d: %w", r.Line, err)
		}
		if r.AfterImage != "" && r.Status != issues.StatusCompleted {
			return fmt.Errorf("line %d: after_image requires status Completed", r.Line)
		}
	}
	return nil
}

func printPlan(rows []IssueCSV) {
	byStatus := map[issues.Status]int{}
	located, withImages := 0, 0
	for _, r := range rows {
		byStatus[r.Status]++
		if r.Issue.Latitude != nil && r.Issue.Longitude != nil {
			located++
		}
		if r.ImagePath != "" || r.AfterImage != "" {
			withImages++
		}
	}
	fmt.Println("Plan preview:")
	fmt.Printf("  Issues to insert: %d\n", len(rows))
	for _, st := range issues.Statuses {
		fmt.Printf("    %-9s %d\n", st, byStatus[st])
	}
	fmt.Printf("  With coordinates: %d\n", located)
	fmt.Printf("  With images: %d\n", withImages)
}

// orEnv falls back to the environment once .env.local has been loaded.
func orEnv(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
