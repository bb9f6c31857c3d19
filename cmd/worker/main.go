package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MayhemBill/zipline/config"
	"github.com/MayhemBill/zipline/internal/mq"
	"github.com/MayhemBill/zipline/internal/repo"
	"github.com/MayhemBill/zipline/internal/storage"
	"github.com/MayhemBill/zipline/internal/worker"
)

func main() {
	config.InitConfig()
	repo.InitRedis()
	storage.InitStorage()

	jobs, err := mq.NewRabbitDispatcher(repo.Redis)
	if err != nil {
		log.Fatalf("thumbnail worker: dial rabbitmq failed: %v", err)
	}
	defer jobs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("thumbnail worker started")
	thumbWorker := worker.NewThumbnailWorker(storage.Default, jobs)
	if err := thumbWorker.Run(ctx); err != nil {
		log.Fatalf("thumbnail worker stopped: %v", err)
	}
}
