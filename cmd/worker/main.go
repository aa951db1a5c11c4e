package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"punchclock/internal/config"
	"punchclock/internal/queue"
	"punchclock/internal/store"
)

// Worker consumes punch outcomes and keeps per-date attendance tallies in a
// Redis hash, the read model a dashboard polls. Only decisive first punches
// count; duplicates and punch-outs pass through untallied.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "punchclock:outcomes")
	}

	outcomes, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("summary worker started, waiting for outcomes...")
	for out := range outcomes {
		if !out.First {
			continue
		}

		key := "punchclock:summary:" + out.Date
		field := out.Kind + ":" + out.Status

		opCtx, opCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Client.HIncrBy(opCtx, key, field, 1).Err(); err != nil {
			log.Printf("summary increment failed for %s %s: %v", key, field, err)
			opCancel()
			continue
		}
		// summaries expire after the reporting window; the attendance tables
		// remain the durable record
		if err := redisClient.Client.Expire(opCtx, key, 45*24*time.Hour).Err(); err != nil {
			log.Printf("summary expire failed for %s: %v", key, err)
		}
		opCancel()
	}

	log.Println("summary worker stopped")
}
