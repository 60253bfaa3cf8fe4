// Command flightlog prints summaries of recorded landing attempts and exports
// per-tick traces for offline tuning.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/precision.land/internal/flightlog"
	"github.com/banshee-data/precision.land/internal/security"
	"github.com/banshee-data/precision.land/internal/version"
)

var (
	dbPath      = flag.String("db", "flightlog.db", "Flight log database")
	limit       = flag.Int("limit", 20, "Number of most recent sessions to summarise (0 for all)")
	sessionID   = flag.String("session", "", "Print the transition timeline of one session")
	showVersion = flag.Bool("version", false, "Print version and exit")
	export      = flag.String("export", "", "With -session, write its ticks as CSV to this file or directory")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("flightlog"))
		return
	}

	store, err := flightlog.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open flight log: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	switch {
	case *export != "":
		if *sessionID == "" {
			log.Fatalf("-export requires -session")
		}
		var path string
		path, err = exportTicks(ctx, store, *sessionID, *export)
		if err == nil {
			log.Printf("wrote %s", path)
		}
	case *sessionID != "":
		err = printTimeline(ctx, os.Stdout, store, *sessionID)
	default:
		err = printSummaries(ctx, os.Stdout, store, *limit)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

func printSummaries(ctx context.Context, w io.Writer, store *flightlog.Store, limit int) error {
	sessions, err := store.Sessions(ctx, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions recorded")
		return nil
	}
	sums := make([]flightlog.Summary, 0, len(sessions))
	for _, s := range sessions {
		sum, err := store.Summarise(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("failed to summarise %s: %w", s.ID, err)
		}
		sums = append(sums, sum)
	}
	return flightlog.WriteSummaries(w, sums)
}

func printTimeline(ctx context.Context, w io.Writer, store *flightlog.Store, id string) error {
	sess, err := store.Session(ctx, id)
	if err != nil {
		return err
	}
	transitions, err := store.Transitions(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "session %s started %s at N%.2f E%.2f D%.2f yaw %.1f\n",
		sess.ID, sess.StartedAt.UTC().Format(time.RFC3339), sess.Start.North, sess.Start.East, sess.Start.Down, sess.StartYaw)
	for _, tr := range transitions {
		fmt.Fprintf(w, "  +%-8s %-9s %s -> %s at %.2fm\n",
			tr.At.Sub(sess.StartedAt).Round(10*time.Millisecond), tr.Machine, tr.From, tr.To, tr.Altitude)
	}
	if sess.Open() {
		fmt.Fprintln(w, "  (open)")
	} else {
		fmt.Fprintf(w, "  ended +%s: %s\n", sess.EndedAt.Sub(sess.StartedAt).Round(10*time.Millisecond), sess.Outcome)
	}
	return nil
}

// exportPath names the CSV file for session id. A dest that is an existing
// directory gets a file named after the session.
func exportPath(dest, id string) (string, error) {
	path := dest
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		path = filepath.Join(dest, security.Filename(id)+".csv")
	}
	if err := security.ExportPath(path); err != nil {
		return "", err
	}
	return path, nil
}

func exportTicks(ctx context.Context, store *flightlog.Store, id, dest string) (string, error) {
	sess, err := store.Session(ctx, id)
	if err != nil {
		return "", err
	}
	ticks, err := store.Ticks(ctx, id)
	if err != nil {
		return "", err
	}
	path, err := exportPath(dest, id)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := flightlog.WriteTicksCSV(f, sess.StartedAt, ticks); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, f.Close()
}
