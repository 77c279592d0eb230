package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/food-api/internal/nutrition"
)

func main() {
	jsonPath := flag.String("json", "data/db.json", "Nutrition JSON file")
	dbPath := flag.String("db", "data/nutrition.db", "SQLite database path")
	flag.Parse()

	fmt.Printf("Importing nutrition facts from %s into %s\n", *jsonPath, *dbPath)

	source, err := nutrition.LoadJSON(*jsonPath)
	if err != nil {
		logrus.Fatalf("Failed to load %s: %v", *jsonPath, err)
	}
	records := source.All()
	if len(records) == 0 {
		fmt.Println("No foods found to import")
		return
	}

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		logrus.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := nutrition.OpenSQLite(*dbPath)
	if err != nil {
		logrus.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	imported, err := db.Import(ctx, records)
	if err != nil {
		logrus.Fatalf("Failed to import foods: %v", err)
	}

	total, err := db.Count(ctx)
	if err != nil {
		logrus.Fatalf("Failed to count foods: %v", err)
	}
	fmt.Printf("Imported %d foods (%d in database)\n", imported, total)
}
