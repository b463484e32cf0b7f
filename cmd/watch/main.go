// Command watch prints the bulk events an ingester publishes on Redis.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shorturl-analytics/cache"
	"shorturl-analytics/config"
	"shorturl-analytics/pubsub"
)

func main() {
	configPath := flag.String("config", os.Getenv("GUA_CONFIG"), "JSON or YAML configuration file")
	event := flag.String("event", "", "only print this event (bulk_executed or bulk_failed)")
	flag.Parse()

	// Only the redis and events sections matter here; a pipeline section
	// that fails validation must not stop the watcher.
	cfg, err := config.Decode(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redisStore, err := cache.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 0)
	if err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
	}
	defer redisStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ps := pubsub.NewPubSub(redisStore, cfg.Events.Channel)
	err = ps.Subscribe(ctx, *event, func(data map[string]interface{}) {
		line, err := json.Marshal(data)
		if err != nil {
			log.Println("Encode error:", err)
			return
		}
		fmt.Printf("%s %s\n", time.Now().Format(time.RFC3339), line)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	log.Printf("Watching %q on %s", cfg.Events.Channel, cfg.Redis.Addr)
	<-ctx.Done()
}
