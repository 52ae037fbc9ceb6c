// cmd/worker consumes orchestrator status callbacks and applies them to
// prospects. With -replay it reads newline-delimited callbacks from a file
// instead of RabbitMQ and exits when they are done.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/unclebandit/prospect-outreach/internal/app"
	"github.com/unclebandit/prospect-outreach/internal/config"
	"github.com/unclebandit/prospect-outreach/internal/logger"
	"github.com/unclebandit/prospect-outreach/internal/queue"
	"github.com/unclebandit/prospect-outreach/internal/service"
)

func main() {
	replay := flag.String("replay", "", "apply newline-delimited JSON callbacks from this file and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "outreach-worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()

	worker := service.NewWorker(app.Tracker(cfg, store, log.Named("tracker")), log.Named("worker"))

	if *replay != "" {
		if err := replayFile(ctx, *replay, cfg.StatusQueue, worker, log); err != nil {
			log.Fatal("replay failed", zap.Error(err))
		}
		return
	}

	q, err := queue.DialAMQP(cfg.RabbitURL, log.Named("amqp"))
	if err != nil {
		log.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer q.Close()

	if err := queue.StartStatusCallbackSubscriber(q, cfg.StatusQueue, worker.Handle, log); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("worker running, waiting for messages", zap.String("queue", cfg.StatusQueue))
	<-ctx.Done()
	log.Info("worker stopping")
}

func replayFile(ctx context.Context, path, topic string, worker *service.Worker, log *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	q := queue.NewInMemoryQueue(log.Named("replay"))
	if err := queue.StartStatusCallbackSubscriber(q, topic, worker.Handle, log); err != nil {
		return err
	}

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		body := append([]byte(nil), line...)
		if err := q.Publish(ctx, topic, body); err != nil {
			return err
		}
		n++
	}
	q.Wait()
	log.Info("replay finished", zap.String("file", path), zap.Int("callbacks", n))
	return scanner.Err()
}
