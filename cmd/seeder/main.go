// cmd/seeder/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/dripsend-backend/internal/config"
	"github.com/unclebandit/dripsend-backend/internal/db"
	"github.com/unclebandit/dripsend-backend/internal/model"
	"github.com/unclebandit/dripsend-backend/internal/repository"
	"github.com/unclebandit/dripsend-backend/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	schema, err := os.ReadFile("seed/schema.sql")
	if err != nil {
		log.Fatalf("failed to read schema: %v", err)
	}
	if _, err := database.Exec(string(schema)); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	fmt.Println("Schema applied")

	svc := service.NewCampaignService(
		&repository.CampaignRepository{DB: database},
		&repository.QueueItemRepository{DB: database},
	)

	for _, in := range demoCampaigns() {
		c, err := svc.CreateCampaign(in)
		if err != nil {
			log.Fatalf("failed to seed campaign %q: %v", in.Name, err)
		}
		fmt.Printf("Seeded: campaign %s (%s, %d recipients)\n", c.Name, c.ID, c.TotalCount)
	}

	// Pre-load health scores so the governor has something to read.
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		ctx := context.Background()
		for identity, score := range map[string]int{
			"acct-fresh":    95,
			"acct-warming":  72,
			"acct-troubled": 45,
		} {
			if err := rdb.Set(ctx, "health:score:"+identity, score, 0).Err(); err != nil {
				log.Fatalf("failed to seed health score for %s: %v", identity, err)
			}
			fmt.Printf("Seeded: health score %s=%d\n", identity, score)
		}
	}

	fmt.Println("Database seeding completed successfully!")
}

func demoCampaigns() []service.CreateCampaignInput {
	welcome := make([]service.RecipientInput, 0, 25)
	for i := 0; i < 25; i++ {
		welcome = append(welcome, service.RecipientInput{
			RecipientRef: fmt.Sprintf("+2547001000%02d", i),
			Payload:      "Welcome aboard! Reply STOP to opt out.",
		})
	}

	promo := make([]service.RecipientInput, 0, 100)
	for i := 0; i < 100; i++ {
		promo = append(promo, service.RecipientInput{
			RecipientRef: fmt.Sprintf("+2547002000%02d", i),
			Payload:      "Mid-season sale: 20% off everything this week.",
		})
	}

	return []service.CreateCampaignInput{
		{
			Name:      "welcome drip",
			OwnerRef:  "demo-owner",
			SenderRef: "acct-fresh",
			Config: model.CampaignConfig{
				Profile: model.ProfileNew,
				BusinessHours: model.BusinessHours{
					Enabled:         true,
					StartHour:       9,
					EndHour:         17,
					ExcludeWeekends: true,
					Timezone:        "Africa/Nairobi",
				},
			},
			Recipients: welcome,
		},
		{
			Name:      "mid-season promo",
			OwnerRef:  "demo-owner",
			SenderRef: "acct-warming",
			Config: model.CampaignConfig{
				Profile:      model.ProfileWarming,
				MessageDelay: &model.Range{Min: 30, Max: 90},
			},
			Recipients: promo,
		},
	}
}
