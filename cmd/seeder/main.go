// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/app"
	"github.com/unclebandit/prospect-outreach/internal/config"
	"github.com/unclebandit/prospect-outreach/internal/logger"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

var timezones = []string{"America/New_York", "America/Chicago", "Europe/London", "Europe/Berlin", "Asia/Singapore"}

var templates = model.MessageTemplates{
	ConnectionRequest: "Hi {first_name}, I work with teams like {company_name} and would love to connect.",
	FollowUps:         []string{"Thanks for connecting, {first_name}. How is the {title} role treating you?"},
	FollowUpDelayDays: []int{3},
}

func main() {
	workspace := flag.String("workspace", "", "workspace id (random when empty)")
	campaigns := flag.Int("campaigns", 3, "campaigns to create")
	prospects := flag.Int("prospects", 25, "prospects per campaign")
	seed := flag.Int64("seed", 0, "faker seed, 0 for random")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "outreach-seeder")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()
	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	faker := gofakeit.New(*seed)
	if *workspace == "" {
		*workspace = faker.UUID()
	}

	if err := seedWorkspace(ctx, store, faker, *workspace, *campaigns, *prospects); err != nil {
		log.Fatal("seeding failed", zap.Error(err))
	}
	fmt.Printf("Seeded workspace %s: %d campaigns, %d prospects each\n", *workspace, *campaigns, *prospects)
}

func seedWorkspace(ctx context.Context, store *app.Store, faker *gofakeit.Faker, workspaceID string, campaigns, prospects int) error {
	account := &model.OutreachAccount{
		WorkspaceID:       workspaceID,
		Provider:          "unipile",
		ExternalAccountID: faker.LetterN(22),
		Name:              faker.Name(),
		DailyLimit:        20,
	}
	if err := store.Accounts.Create(ctx, account); err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	for i := 0; i < campaigns; i++ {
		c := &model.Campaign{
			WorkspaceID:       workspaceID,
			Name:              faker.MonthString() + " " + faker.BuzzWord() + " outreach",
			Channel:           model.ChannelLinkedIn,
			Status:            model.CampaignDraft,
			Timezone:          timezones[faker.Number(0, len(timezones)-1)],
			WorkingHoursStart: 9,
			WorkingHoursEnd:   17,
			SkipWeekends:      true,
			OutreachAccountID: account.ID,
			MessageTemplates:  templates,
			DispatchMode:      model.DispatchDirect,
		}
		if err := store.Campaigns.Create(ctx, c); err != nil {
			return fmt.Errorf("create campaign: %w", err)
		}

		for j := 0; j < prospects; j++ {
			first, last := faker.FirstName(), faker.LastName()
			p := &model.Prospect{
				CampaignID:  c.ID,
				WorkspaceID: workspaceID,
				FirstName:   first,
				LastName:    last,
				CompanyName: faker.Company(),
				Title:       faker.JobTitle(),
				ProfileURL:  "https://www.linkedin.com/in/" + strings.ToLower(first+"-"+last) + "-" + faker.DigitN(6),
				Status:      model.ProspectPending,
			}
			if faker.Bool() {
				p.Status = model.ProspectApproved
			}
			if err := store.Prospects.Create(ctx, p); err != nil {
				return fmt.Errorf("create prospect: %w", err)
			}
		}
	}
	return nil
}
