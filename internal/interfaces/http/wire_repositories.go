package http

import (
	"gorm.io/gorm"

	"github.com/orris-inc/subsync/internal/infrastructure/repository"
	"github.com/orris-inc/subsync/internal/shared/db"
	"github.com/orris-inc/subsync/internal/shared/logger"
)

// repositories holds all repository instances used by the application.
// Types match the return types of the repository constructors.
type repositories struct {
	entitlementRepo *repository.UserSubscriptionRepositoryImpl
	orphanRepo      *repository.OrphanRepositoryImpl
	accountRepo     *repository.UserRepository
	processedEvents *repository.ProcessedEventRepository
	txMgr           *db.TransactionManager
}

func newRepositories(database *gorm.DB, log logger.Interface) *repositories {
	return &repositories{
		entitlementRepo: repository.NewUserSubscriptionRepository(database, log),
		orphanRepo:      repository.NewOrphanRepository(database, log),
		accountRepo:     repository.NewUserRepository(database, log),
		processedEvents: repository.NewProcessedEventRepository(database, log),
		txMgr:           db.NewTransactionManager(database),
	}
}
