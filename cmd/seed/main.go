package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/union-registry/internal/config"
	"github.com/iliyamo/union-registry/internal/database"
	"github.com/iliyamo/union-registry/internal/model"
	"github.com/iliyamo/union-registry/internal/repository"
	"github.com/iliyamo/union-registry/internal/service"
	"github.com/iliyamo/union-registry/internal/utils"
)

// sampleAccounts is how many sample members also get a member-role login.
const sampleAccounts = 5

var (
	firstNames  = []string{"Andi", "Budi", "Citra", "Dewi", "Eko", "Fitri", "Gilang", "Hana", "Indra", "Joko"}
	lastNames   = []string{"Pratama", "Santoso", "Wijaya", "Lestari", "Saputra", "Kusuma"}
	companies   = []string{"PT Sinar Jaya", "PT Maju Bersama", "PT Karya Abadi", "CV Mitra Sejahtera"}
	departments = []string{"Production", "Logistics", "Finance", "Maintenance", "Quality Control"}
)

// seed creates the first administrator account and, when
// SEED_SAMPLE_MEMBERS is set, that many sample members.  It is safe to run
// twice: existing accounts and taken employee ids are skipped.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := utils.NewLogger(cfg.Env, cfg.LogLevel)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logger.WithError(err).Fatal("schema setup failed")
	}

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if len(password) < utils.MinPasswordLength {
		logger.Fatalf("SEED_ADMIN_PASSWORD must be at least %d characters", utils.MinPasswordLength)
	}
	adminEmail := envOr("SEED_ADMIN_EMAIL", "admin@union.local")

	accounts := repository.NewAccountRepo(db)
	adminID, err := ensureAccount(ctx, accounts, adminEmail, password, model.RoleAdministrator, nil, cfg.BcryptCost)
	if err != nil {
		logger.WithError(err).Fatal("admin account")
	}
	logger.WithFields(logrus.Fields{"account_id": adminID, "email": adminEmail}).Info("administrator ready")

	count, _ := strconv.Atoi(os.Getenv("SEED_SAMPLE_MEMBERS"))
	if count <= 0 {
		return
	}

	// Events are not published for seed data.
	members := service.NewMemberService(repository.NewMemberRepo(db, logger), nil, logger)
	admin := model.Caller{AccountID: adminID, Role: model.RoleAdministrator}
	created := 0
	for i := 0; i < count; i++ {
		m, err := members.Create(ctx, admin, sampleMember(i, time.Now().UTC()))
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				logger.WithField("index", i).Debug("sample member exists")
				continue
			}
			logger.WithError(err).Fatal("sample member")
		}
		created++
		if i < sampleAccounts {
			email := fmt.Sprintf("member%d@union.local", i+1)
			if _, err := ensureAccount(ctx, accounts, email, password, model.RoleMember, &m.ID, cfg.BcryptCost); err != nil {
				logger.WithError(err).WithField("email", email).Warn("member account")
			}
		}
	}
	logger.WithFields(logrus.Fields{"requested": count, "created": created}).Info("sample members seeded")
}

// ensureAccount creates the account or returns the id of the existing one
// with the same email.
func ensureAccount(ctx context.Context, repo *repository.AccountRepo, email, password, role string, memberRef *uint64, cost int) (uint64, error) {
	id, err := repo.Create(ctx, email, password, role, memberRef, cost)
	if err == nil {
		return id, nil
	}
	var dup *repository.DuplicateKeyError
	if !errors.As(err, &dup) || dup.Field != "email" {
		return 0, err
	}
	a, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return 0, err
	}
	return a.ID, nil
}

// sampleMember builds the i-th sample.  Every fourth sample has left the
// union, which makes it inactive.
func sampleMember(i int, now time.Time) service.MemberInput {
	first := firstNames[i%len(firstNames)]
	last := lastNames[(i/len(firstNames))%len(lastNames)]
	start := now.AddDate(0, -(i%36)-2, 0)
	in := service.MemberInput{
		FullName:            first + " " + last,
		EmployeeID:          fmt.Sprintf("EMP%05d", i+1),
		CompanyName:         companies[i%len(companies)],
		Department:          departments[i%len(departments)],
		PhoneNumber:         fmt.Sprintf("0812%08d", i+1),
		Email:               fmt.Sprintf("sample%d@union.local", i+1),
		MembershipStartDate: start.Format("2006-01-02"),
	}
	if i%4 == 3 {
		end := start.AddDate(0, 1, 0).Format("2006-01-02")
		in.MembershipEndDate = &end
	}
	return in
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
