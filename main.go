package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/postadepo/server/internal/accounts"
	"github.com/postadepo/server/internal/api"
	"github.com/postadepo/server/internal/auth"
	"github.com/postadepo/server/internal/config"
	"github.com/postadepo/server/internal/events"
	"github.com/postadepo/server/internal/models"
	"github.com/postadepo/server/internal/oauth"
	"github.com/postadepo/server/internal/providers/gmail"
	"github.com/postadepo/server/internal/providers/outlook"
	"github.com/postadepo/server/internal/store"
	"github.com/postadepo/server/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	publisher, err := events.NewPublisher(cfg.NATSURL)
	if err != nil {
		log.Printf("event publisher disabled: %v", err)
		publisher = nil
	}
	defer publisher.Close()

	authSvc := auth.NewService(st)
	jwt := auth.NewJWT(cfg.JWTSecret, st)

	oauthClient := oauth.NewClient(cfg)
	states := oauth.NewStateTracker(st, cfg.StateTTL)

	outlookAdapter := outlook.New()
	connector := accounts.NewConnector(st, states, oauthClient, outlookAdapter, publisher)

	engine := sync.NewEngine(st, oauthClient, publisher, cfg.SyncBatchSize)
	engine.Register("outlook", outlookAdapter)
	engine.Register("gmail", gmail.New())

	if email := os.Getenv("ADMIN_EMAIL"); email != "" {
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			log.Fatal("ADMIN_EMAIL is set but ADMIN_PASSWORD is empty")
		}
		if _, created, err := authSvc.EnsureUser(context.Background(), "Admin", email, password, models.UserTypeAdmin); err != nil {
			log.Fatal(err)
		} else if created {
			log.Printf("admin user %s created", email)
		}
	}

	r := gin.Default()
	srv := api.NewServer(cfg, st, authSvc, jwt, states, oauthClient, connector, engine)
	srv.Register(r)

	log.Printf("listening on :%s", cfg.Port)
	log.Fatal(r.Run(":" + cfg.Port))
}
