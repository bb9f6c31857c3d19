package main

import (
	"context"
	"log"

	"github.com/MayhemBill/zipline/config"
	"github.com/MayhemBill/zipline/internal/handler"
	"github.com/MayhemBill/zipline/internal/mq"
	"github.com/MayhemBill/zipline/internal/repo"
	"github.com/MayhemBill/zipline/internal/service"
	"github.com/MayhemBill/zipline/internal/storage"
	"github.com/MayhemBill/zipline/internal/worker"
	"github.com/MayhemBill/zipline/router"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	repo.InitMysql()
	repo.InitRedis()
	storage.InitStorage()

	files := repo.NewGormFileRepository(repo.Db)
	folders := repo.NewGormFolderRepository(repo.Db)
	users := repo.NewGormUserRepository(repo.Db)

	var jobs mq.Dispatcher
	inProcessWorker := false
	switch config.AppConfig.QueueDriver {
	case "memory":
		// No broker: the offload worker runs inside this process, still
		// decoupled from the request path by the queue.
		jobs = mq.NewMemoryDispatcher(config.AppConfig.ThumbRetryMax)
		inProcessWorker = true
	default:
		dispatcher, err := mq.NewRabbitPublisher(repo.Redis)
		if err != nil {
			log.Fatal("init rabbitmq fail", err)
		}
		jobs = dispatcher
	}

	fileService := service.NewFileService(files, folders, storage.Default, jobs)
	folderService := service.NewFolderService(folders, files)
	userService := service.NewUserService(users)

	ctx := context.Background()
	go fileService.RunSweeper(ctx, config.AppConfig.SweepInterval)
	if inProcessWorker {
		thumbWorker := worker.NewThumbnailWorker(storage.Default, jobs)
		go func() {
			if err := thumbWorker.Run(ctx); err != nil {
				log.Printf("thumbnail worker stopped: %v", err)
			}
		}()
	}

	h := handler.New(fileService, folderService, userService)
	r := router.InitRouter(h)

	r.Run(":8000")
}
