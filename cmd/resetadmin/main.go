package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/punchamoorthee/promoledger/internal/service"
	"github.com/punchamoorthee/promoledger/internal/store"
	log "github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()
	email := flag.String("email", "admin@test.com", "Admin account email")
	password := flag.String("password", "", "New password (at least 6 characters)")
	dbURL := flag.String("db", os.Getenv("DB_SOURCE"), "Postgres connection string")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *dbURL == "" {
		log.Fatal("DB_SOURCE is not set and -db was not given")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.NewStore(ctx, *dbURL)
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to database")
	}
	defer db.Close()

	accounts := service.NewAccountService(db, db, nil)
	if err := accounts.ResetAdminPassword(ctx, *email, *password); err != nil {
		log.WithError(err).WithField("email", *email).Fatal("Password reset failed")
	}
	log.WithField("email", *email).Info("Admin password updated")
}
