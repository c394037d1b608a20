// The ingest command scrapes web pages into the passages table.
//
// Usage:
//
//	ingest [--file urls.txt] [URL ...]
//
// The file holds one URL per line; # starts a comment. DATABASE_URL must be
// set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"rracer/server/internal/v1/ingest"
	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/passages"
)

const (
	fetchTimeout = 20 * time.Second
	maxBodyBytes = 10 << 20
	userAgent    = "rracer-ingest/1.0"
)

func main() {
	_ = godotenv.Load()
	_ = logging.Initialize(false)

	file := flag.String("file", "", "path to a file with one URL per line")
	flag.Parse()

	urls := flag.Args()
	if *file != "" {
		fromFile, err := readURLFile(*file)
		if err != nil {
			slog.Error("Failed to read URL file", "path", *file, "error", err)
			os.Exit(1)
		}
		urls = append(fromFile, urls...)
	}
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [--file urls.txt] [URL ...]")
		os.Exit(1)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		slog.Error("DATABASE_URL must be set")
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := passages.NewStore(ctx, databaseURL)
	if err != nil {
		slog.Error("Failed to initialize passage store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	client := &http.Client{Timeout: fetchTimeout}
	total := 0
	for _, url := range urls {
		n, err := ingestURL(ctx, client, store, url)
		if err != nil {
			slog.Error("Failed to ingest", "url", url, "error", err)
			continue
		}
		slog.Info("Ingested", "url", url, "inserted", n)
		total += n
	}
	slog.Info("Done", "inserted", total)
}

func ingestURL(ctx context.Context, client *http.Client, store *passages.Store, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, err
	}

	extracted, err := ingest.ExtractPassages(string(body))
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, p := range extracted {
		ok, err := store.Insert(ctx, p, url)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// readURLFile parses one URL per line. # starts a comment, full-line or
// inline.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			urls = append(urls, line)
		}
	}
	return urls, scanner.Err()
}
