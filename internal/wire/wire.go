package wire

import (
	"Amoura/internal/api"
	"Amoura/internal/api/handler"
	"Amoura/internal/im"
	"Amoura/internal/job"
	"Amoura/internal/pkg/cron"
	"Amoura/internal/pkg/minio"
	pkgmongo "Amoura/internal/pkg/mongo"
	"Amoura/internal/repository"
	"Amoura/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router  *gin.Engine
	DB      *gorm.DB
	CronMgr *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database) (*ApplicationContainer, error) {
	userRepo := repository.NewUserRepo(db)
	messageRepo := pkgmongo.NewMessageRepo(mongoDB)

	registry := im.NewRegistry()
	dispatcher := im.NewDispatcher(registry)
	mediaStore := minio.NewMediaStore()

	userService := service.NewUserService(userRepo)
	messageService := service.NewMessageService(messageRepo, userService, dispatcher, mediaStore)

	handlers := &api.HandlersGroup{
		MessageHandler: handler.NewMessageHandler(messageService),
		UserHandler:    handler.NewUserHandler(userService),
		WSHandler:      handler.NewWsHandler(registry, dispatcher, messageService),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewMediaCleanupJob(mediaStore))

	return &ApplicationContainer{
		Router:  router,
		DB:      db,
		CronMgr: cronMgr,
	}, nil
}
