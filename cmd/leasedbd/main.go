// Command leasedbd demonstrates the lease/host database as a standalone
// process: it opens the persistence store, replays any prior state, runs
// the startup expiry pass, and serves the read-only introspection API. It
// declares no topology of its own.
package main

import (
	"context"
	"log"
	"net/http"

	"leasedb"
	"leasedb/adminhttp"
	"leasedb/config"
	"leasedb/internal/dbresult"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Defaults

	db, err := setupDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	log.Printf("leasedb database opened at %s", cfg.GetDatabasePath())
	log.Printf("admin HTTP server starting on port %s", cfg.HTTP.Port)

	router := adminhttp.NewRouter(db)
	return http.ListenAndServe(":"+cfg.HTTP.Port, router)
}

// setupDatabase opens the persistence store and replays any previously
// committed hosts, leases, and classes. Topology declaration (subnets,
// shared networks, pools) is the caller's job per §1's config-syntax
// Non-goal; this demo binary has none configured by default, so Restore
// runs the expiry pass over an empty topology.
func setupDatabase(cfg config.Config) (*leasedb.Database, error) {
	dbresult.Debug = cfg.Debug

	db, err := leasedb.Open(cfg.DB.DBPath, cfg.DB.DBFile, leasedb.Collaborators{})
	if err != nil {
		return nil, err
	}

	if err := db.Restore(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
