package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
	_ "github.com/go-sql-driver/mysql"

	"everydaymoney/gateway"
	"everydaymoney/ledger"
	"everydaymoney/orderstore"
	"everydaymoney/payment"
)

const (
	liveAPIBaseURL = "https://em-api.everydaymoney.app"
	testAPIBaseURL = "https://em-api-staging.everydaymoney.app"
)

func main() {
	dsn := env("MYSQL_DSN", "root:password@tcp(localhost:3306)/payments?parseTime=true&multiStatements=true")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := ledger.InitDB(ctx, db); err != nil {
		log.Fatal("init ledger schema:", err)
	}
	if err := orderstore.InitDB(ctx, db); err != nil {
		log.Fatal("init order schema:", err)
	}

	cfg := payment.Config{
		PublicKey:          env("EM_PUBLIC_KEY", ""),
		APISecret:          env("EM_API_SECRET", ""),
		WebhookSecret:      env("EM_WEBHOOK_SECRET", ""),
		SuccessStatus:      env("EM_SUCCESS_STATUS", "processing"),
		AmountTolerance:    floatEnv("EM_AMOUNT_TOLERANCE", 0.01),
		SignatureTolerance: durationEnv("EM_SIGNATURE_TOLERANCE", 300*time.Second),
		StoreName:          env("STORE_NAME", "Everydaymoney Store"),
		RedirectURL:        env("EM_REDIRECT_URL", "http://localhost:8080/thank-you"),
		WebhookURL:         env("EM_WEBHOOK_URL", "http://localhost:8080/v1/payments/webhook"),
		TestMode:           boolEnv("EM_TEST_MODE", false),
		Debug:              boolEnv("EM_DEBUG", false),
	}
	cfg.APIBaseURL = env("EM_API_BASE_URL", liveAPIBaseURL)
	if cfg.TestMode && os.Getenv("EM_API_BASE_URL") == "" {
		cfg.APIBaseURL = testAPIBaseURL
	}

	logger := gateway.NewLogger(cfg.Debug)
	logger.Infof("API base URL: %s (test mode: %v)", cfg.APIBaseURL, cfg.TestMode)

	client := gateway.NewClient(cfg.APIBaseURL, gateway.Credentials{
		PublicKey: cfg.PublicKey,
		Secret:    cfg.APISecret,
	}, logger)

	var producer sarama.SyncProducer
	if brokers := env("KAFKA_BROKERS", ""); brokers != "" {
		producer, err = initKafkaProducer(strings.Split(brokers, ","))
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		defer producer.Close()
	} else {
		logger.Infof("KAFKA_BROKERS not set, payment events disabled")
	}

	topic := env("KAFKA_TOPIC", "everydaymoney.payments")
	svc := payment.NewService(orderstore.NewStore(db), ledger.NewStore(db), client, producer, topic, cfg, logger)
	engine := payment.NewEngine(svc)

	mux := http.NewServeMux()
	payment.RegisterRoutes(mux, svc, engine)

	port := env("PORT", "8080")
	log.Println("Starting the server on port " + port + "...")
	log.Fatal(http.ListenAndServe(":"+port, mux))
}

func initKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	return sarama.NewSyncProducer(brokers, config)
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return fallback
}
