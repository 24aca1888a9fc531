// Package dataset stores and loads the microdata simulations run over.
//
// A dataset is one year of survey-style records: a person-to-household
// membership array, the household count, and one float64 array per input
// variable. Datasets are persisted in SQLite with a SHA-256 checksum over
// their canonical encoding so corruption is detected on read.
//
// The Loader keeps loaded datasets in memory and, when the stored copy is
// missing or fails its checksum, fetches a fresh copy once through a Fetcher
// before giving up:
//
//	store, _ := dataset.NewSQLiteStore(&dataset.SQLiteConfig{Path: "data/datasets.db"})
//	loader := dataset.NewLoader(store, fetcher)
//	data, err := loader.Load(ctx, 2024)
package dataset
