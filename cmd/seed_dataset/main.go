package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"churnboard/dataset"
	"churnboard/db"
)

func main() {
	csvPath := flag.String("csv", "", "telco customer CSV file")
	driver := flag.String("driver", "sqlite3", "sqlite3 or postgres")
	dsn := flag.String("dsn", "./data/churn.db", "database DSN")
	table := flag.String("table", "customers", "target table")
	flag.Parse()

	if *csvPath == "" {
		log.Fatal("csv is required")
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("failed to open csv: %v", err)
	}
	defer f.Close()

	columns, rows, err := dataset.ReadCSV(f, 0)
	if err != nil {
		log.Fatalf("failed to read csv: %v", err)
	}

	if *driver == "sqlite3" {
		if err := os.MkdirAll(filepath.Dir(*dsn), 0o755); err != nil {
			log.Fatalf("failed to create data dir: %v", err)
		}
	}

	ctx := context.Background()
	store, err := db.Open(ctx, *driver, *dsn, *table)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	if err := store.CreateTable(ctx, columns); err != nil {
		log.Fatalf("failed to create table: %v", err)
	}
	n, err := store.Insert(ctx, columns, rows)
	if err != nil {
		log.Fatalf("failed to insert rows: %v", err)
	}

	fmt.Printf("loaded %d rows into %s\n", n, store.Table())
}
